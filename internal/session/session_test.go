package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/avrel/stompws/internal/frame"
	"github.com/avrel/stompws/internal/transport"
)

type fakeTransport struct {
	mu      sync.Mutex
	sent    []string
	closed  bool
	sendErr error
}

func (f *fakeTransport) Send(text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, text)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) frames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func fakeDial(ft *fakeTransport, hooksOut *transport.Hooks) transport.DialFunc {
	return func(config transport.Config, hooks transport.Hooks) (transport.Transport, error) {
		*hooksOut = hooks
		hooks.OnOpen()
		return ft, nil
	}
}

func waitUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

// openSession starts Open on its own goroutine and hands back the pending
// result channel once the CONNECT frame has gone out.
func openSession(t *testing.T, s *Session, ft *fakeTransport) chan bool {
	t.Helper()
	resCh := make(chan bool, 1)
	go func() {
		ok, _ := s.Open()
		resCh <- ok
	}()
	waitUntil(t, func() bool { return len(ft.frames()) == 1 })
	return resCh
}

func activeSession(t *testing.T, registry *Registry) (*Session, *fakeTransport, *transport.Hooks) {
	t.Helper()
	ft := &fakeTransport{}
	hooks := &transport.Hooks{}
	s := New(Config{
		URL:            "wss://broker:61614",
		ConnectTimeout: 2 * time.Second,
		Dial:           fakeDial(ft, hooks),
	}, registry)
	resCh := openSession(t, s, ft)
	hooks.OnMessage("CONNECTED\nheart-beat:0,0\n\n\x00")
	assert.True(t, <-resCh)
	return s, ft, hooks
}

func TestConnectHandshake(t *testing.T) {
	ft := &fakeTransport{}
	hooks := &transport.Hooks{}
	s := New(Config{
		URL:            "wss://broker:61614",
		Credentials:    Credentials{Username: "user", Passcode: "secret"},
		ConnectTimeout: 2 * time.Second,
		Dial:           fakeDial(ft, hooks),
	}, NewRegistry())

	resCh := openSession(t, s, ft)

	f, err := frame.Unmarshal(ft.frames()[0])
	assert.NoError(t, err)
	assert.Equal(t, frame.CmdConnect, f.Command)
	for header, expected := range map[string]string{
		frame.HdrHost:          "wss://broker:61614",
		frame.HdrAcceptVersion: "1.0,1.1",
		frame.HdrHeartBeat:     "10000,10000",
		frame.HdrLogin:         "user",
		frame.HdrPasscode:      "secret",
	} {
		got, ok := f.Headers.Get(header)
		assert.True(t, ok, header)
		assert.Equal(t, expected, got, header)
	}

	hooks.OnMessage("CONNECTED\nheart-beat:0,0\n\n\x00")
	assert.True(t, <-resCh)
	assert.Equal(t, Active, s.State())
}

func TestAnonymousConnectOmitsCredentials(t *testing.T) {
	ft := &fakeTransport{}
	hooks := &transport.Hooks{}
	s := New(Config{URL: "ws://b", ConnectTimeout: 2 * time.Second, Dial: fakeDial(ft, hooks)}, NewRegistry())
	resCh := openSession(t, s, ft)

	f, _ := frame.Unmarshal(ft.frames()[0])
	_, ok := f.Headers.Get(frame.HdrLogin)
	assert.False(t, ok)
	_, ok = f.Headers.Get(frame.HdrPasscode)
	assert.False(t, ok)

	hooks.OnMessage("CONNECTED\n\n\x00")
	assert.True(t, <-resCh)
}

func TestDuplicateConnectedIsIdempotent(t *testing.T) {
	s, _, hooks := activeSession(t, NewRegistry())
	hooks.OnMessage("CONNECTED\nheart-beat:0,0\n\n\x00")
	assert.Equal(t, Active, s.State())
}

func TestBrokerError(t *testing.T) {
	ft := &fakeTransport{}
	hooks := &transport.Hooks{}
	s := New(Config{URL: "ws://b", ConnectTimeout: 2 * time.Second, Dial: fakeDial(ft, hooks)}, NewRegistry())
	resCh := openSession(t, s, ft)

	hooks.OnMessage("ERROR\nmessage:bad creds\n\n\x00")
	assert.False(t, <-resCh)
	assert.Equal(t, Failed, s.State())
}

func TestConnectTimeout(t *testing.T) {
	ft := &fakeTransport{}
	hooks := &transport.Hooks{}
	s := New(Config{URL: "ws://b", ConnectTimeout: 50 * time.Millisecond, Dial: fakeDial(ft, hooks)}, NewRegistry())

	ok, err := s.Open()
	assert.False(t, ok)
	assert.Equal(t, ErrConnectTimeout, err)
	assert.Equal(t, Failed, s.State())
}

func TestMessageDispatch(t *testing.T) {
	registry := NewRegistry()
	_, _, hooks := activeSession(t, registry)

	var mu sync.Mutex
	var got []string
	registry.Register(&Subscription{
		Destination: "/topic/x",
		ID:          "sub-1",
		Ack:         "client",
		Callback: func(body []byte) {
			mu.Lock()
			got = append(got, string(body))
			mu.Unlock()
		},
	})

	hooks.OnMessage("MESSAGE\ndestination:/topic/x\n\nhello\x00")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hello"}, got)
}

func TestUnroutedMessageIsDropped(t *testing.T) {
	s, _, hooks := activeSession(t, NewRegistry())
	hooks.OnMessage("MESSAGE\ndestination:/topic/nobody\n\nhello\x00")
	assert.Equal(t, uint32(1), s.UnroutedCount())
	assert.Equal(t, Active, s.State())
}

func TestResubscribeOverwritesCallback(t *testing.T) {
	registry := NewRegistry()
	_, _, hooks := activeSession(t, registry)

	var mu sync.Mutex
	var first, second int
	registry.Register(&Subscription{Destination: "/topic/x", Callback: func([]byte) {
		mu.Lock()
		first++
		mu.Unlock()
	}})
	registry.Register(&Subscription{Destination: "/topic/x", Callback: func([]byte) {
		mu.Lock()
		second++
		mu.Unlock()
	}})

	hooks.OnMessage("MESSAGE\ndestination:/topic/x\n\nhi\x00")
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
}

func TestMalformedFrameIsTolerated(t *testing.T) {
	s, _, hooks := activeSession(t, NewRegistry())
	hooks.OnMessage("\nnot a frame\x00")
	hooks.OnMessage("RECEIPT\nreceipt-id:1\n\n\x00")
	assert.Equal(t, Active, s.State())
}

func TestDisconnect(t *testing.T) {
	s, ft, _ := activeSession(t, NewRegistry())

	s.Disconnect()
	frames := ft.frames()
	last, err := frame.Unmarshal(frames[len(frames)-1])
	assert.NoError(t, err)
	assert.Equal(t, frame.CmdDisconnect, last.Command)
	assert.True(t, ft.isClosed())
	assert.Equal(t, Closed, s.State())

	// a second disconnect is a no-op
	s.Disconnect()
	assert.Equal(t, len(frames), len(ft.frames()))
}

func TestTransportCloseEvent(t *testing.T) {
	s, _, hooks := activeSession(t, NewRegistry())
	hooks.OnClose(1006, "abnormal closure")
	assert.Equal(t, Closed, s.State())
}

func TestSendFailureDoesNotKillSession(t *testing.T) {
	s, ft, _ := activeSession(t, NewRegistry())
	ft.mu.Lock()
	ft.sendErr = transport.ErrConnectionLost
	ft.mu.Unlock()

	err := s.Transmit(frame.CmdSend, frame.Headers{{Name: frame.HdrDestination, Value: "/q"}}, []byte("x"))
	assert.Equal(t, transport.ErrConnectionLost, err)
	assert.Equal(t, Active, s.State())
}

func TestValvedTransmit(t *testing.T) {
	registry := NewRegistry()
	ft := &fakeTransport{}
	hooks := &transport.Hooks{}
	s := New(Config{
		URL:            "ws://b",
		ConnectTimeout: 2 * time.Second,
		Valve:          MakeValve(1 << 20),
		Dial:           fakeDial(ft, hooks),
	}, registry)
	resCh := openSession(t, s, ft)
	hooks.OnMessage("CONNECTED\n\n\x00")
	assert.True(t, <-resCh)

	assert.NoError(t, s.Transmit(frame.CmdSend, nil, []byte("throttled")))
	assert.Equal(t, 2, len(ft.frames()))
}

func TestOpenTwice(t *testing.T) {
	s, _, _ := activeSession(t, NewRegistry())
	ok, err := s.Open()
	assert.False(t, ok)
	assert.Error(t, err)
}
