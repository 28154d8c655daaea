package session

import (
	"crypto/tls"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/avrel/stompws/internal/frame"
	"github.com/avrel/stompws/internal/transport"
)

const (
	// protocol versions offered in CONNECT
	acceptVersions = "1.0,1.1"
	// client sends a beat every 10s and expects one every 10s
	heartBeatOffer = "10000,10000"

	defaultConnectTimeout = 30 * time.Second
)

var (
	ErrConnectTimeout = errors.New("timed out waiting for CONNECTED")
	ErrBroker         = errors.New("broker reported an error")

	errAlreadyOpened = errors.New("a session can only be opened once")
)

// Credentials authenticate the CONNECT frame. Empty fields are omitted from
// the frame entirely.
type Credentials struct {
	Username string
	Passcode string
}

type Config struct {
	// URL is the broker endpoint; it doubles as the CONNECT host header.
	URL         string
	TLSConfig   *tls.Config
	Credentials Credentials

	// ConnectTimeout bounds how long Open waits for CONNECTED before the
	// session resolves to Failed. Zero means the 30s default.
	ConnectTimeout time.Duration

	// Valve throttles outbound bytes. Nil is unlimited.
	Valve *Valve

	// Dial opens the transport. Nil means the WebSocket default.
	Dial transport.DialFunc
}

// Session drives the STOMP connection state machine over one Transport. It
// owns the handshake, dispatches inbound control frames to the injected
// registry, and serialises all outbound writes. A Session is single-use:
// once Closed or Failed it stays there, and resilience means building a new
// one.
type Session struct {
	config   Config
	registry *Registry

	stateM  sync.Mutex
	state   State
	trans   transport.Transport
	failure error

	activeOnce sync.Once
	activeCh   chan struct{}
	doneOnce   sync.Once
	doneCh     chan struct{}

	unrouted uint32
}

func New(config Config, registry *Registry) *Session {
	if config.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaultConnectTimeout
	}
	if config.Dial == nil {
		config.Dial = transport.Dial
	}
	return &Session{
		config:   config,
		registry: registry,
		state:    Disconnected,
		activeCh: make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Open dials the transport, performs the STOMP handshake and blocks until
// the session is Active or terminally Failed/Closed. The bool reports
// whether Active was reached.
func (s *Session) Open() (bool, error) {
	s.stateM.Lock()
	if s.state != Disconnected {
		s.stateM.Unlock()
		return false, errAlreadyOpened
	}
	s.state = Connecting
	s.stateM.Unlock()

	hooks := transport.Hooks{
		OnOpen:    func() { log.Debugf("Transport to %v opened", s.config.URL) },
		OnMessage: s.dispatch,
		OnError:   func(err error) { log.Errorf("Transport error: %v", err) },
		OnClose:   s.handleTransportClose,
	}
	trans, err := s.config.Dial(transport.Config{
		URL:       s.config.URL,
		TLSConfig: s.config.TLSConfig,
	}, hooks)
	if err != nil {
		s.handleTransportClose(0, err.Error())
		return false, err
	}

	s.stateM.Lock()
	s.trans = trans
	s.stateM.Unlock()

	s.sendConnect()

	select {
	case <-s.activeCh:
		return true, nil
	case <-s.doneCh:
		return false, s.terminalError()
	case <-time.After(s.config.ConnectTimeout):
		if !s.connectTimeout() && s.State() == Active {
			// CONNECTED slipped in just as the timer fired
			return true, nil
		}
		return false, s.terminalError()
	}
}

// connectTimeout resolves a still-Connecting session to Failed and reports
// whether it did.
func (s *Session) connectTimeout() bool {
	s.stateM.Lock()
	if s.state != Connecting {
		s.stateM.Unlock()
		return false
	}
	s.state = Failed
	if s.failure == nil {
		s.failure = ErrConnectTimeout
	}
	s.stateM.Unlock()
	s.doneOnce.Do(func() { close(s.doneCh) })
	return true
}

func (s *Session) sendConnect() {
	if s.State() != Connecting {
		return
	}
	f := frame.New(frame.CmdConnect)
	f.Headers.Set(frame.HdrHost, s.config.URL)
	f.Headers.Set(frame.HdrAcceptVersion, acceptVersions)
	f.Headers.Set(frame.HdrHeartBeat, heartBeatOffer)
	if s.config.Credentials.Username != "" {
		f.Headers.Set(frame.HdrLogin, s.config.Credentials.Username)
	}
	if s.config.Credentials.Passcode != "" {
		f.Headers.Set(frame.HdrPasscode, s.config.Credentials.Passcode)
	}
	if err := s.transmitFrame(f); err != nil {
		log.Errorf("Failed to transmit CONNECT: %v", err)
	}
}

// dispatch handles every inbound transport message on the transport's read
// goroutine. Nothing here may panic or block for long: faults become log
// lines and state transitions.
func (s *Session) dispatch(text string) {
	log.Debugf("<<< %v", text)
	if frame.IsHeartbeat(text) {
		log.Debug("Heartbeat received")
		return
	}
	f, err := frame.Unmarshal(text)
	if err != nil {
		log.Warnf("Dropping malformed frame: %v", err)
		return
	}

	switch f.Command {
	case frame.CmdConnected:
		s.becomeActive()
	case frame.CmdError:
		msg, _ := f.Headers.Get(frame.HdrMessage)
		if msg == "" {
			msg = "unknown error"
		}
		log.Errorf("Broker error: %v", msg)
		if f.Body != nil {
			log.Errorf("Details: %s", f.Body)
		}
		s.failWith(errors.Wrap(ErrBroker, msg))
	case frame.CmdMessage:
		dest, _ := f.Headers.Get(frame.HdrDestination)
		sub, ok := s.registry.Resolve(dest)
		if !ok {
			atomic.AddUint32(&s.unrouted, 1)
			log.Warnf("No callback registered for destination %v, message dropped", dest)
			return
		}
		sub.Callback(f.Body)
	default:
		log.Debugf("Ignoring %v frame", f.Command)
	}
}

// becomeActive flips Connecting to Active exactly once. Duplicate CONNECTED
// frames are no-ops.
func (s *Session) becomeActive() {
	s.stateM.Lock()
	if s.state != Connecting {
		s.stateM.Unlock()
		return
	}
	s.state = Active
	s.stateM.Unlock()
	log.Info("Successfully connected to STOMP broker")
	s.activeOnce.Do(func() { close(s.activeCh) })
}

// failWith moves the session to Failed unless it is already terminal.
func (s *Session) failWith(err error) {
	s.stateM.Lock()
	if s.state == Closed || s.state == Failed {
		s.stateM.Unlock()
		return
	}
	s.state = Failed
	if s.failure == nil {
		s.failure = err
	}
	s.stateM.Unlock()
	s.doneOnce.Do(func() { close(s.doneCh) })
}

func (s *Session) handleTransportClose(code int, reason string) {
	log.Infof("Transport closed (%v): %v", code, reason)
	s.stateM.Lock()
	switch s.state {
	case Connecting, Active, Failed:
		s.state = Closed
	}
	if s.failure == nil {
		s.failure = transport.ErrConnectionLost
	}
	s.stateM.Unlock()
	s.doneOnce.Do(func() { close(s.doneCh) })
}

// Transmit encodes and writes one frame. A ConnectionLost failure is
// reported to the caller but never tears the session down by itself; the
// transport's close event does that.
func (s *Session) Transmit(command string, headers frame.Headers, body []byte) error {
	return s.transmitFrame(&frame.Frame{Command: command, Headers: headers, Body: body})
}

func (s *Session) transmitFrame(f *frame.Frame) error {
	return s.send(frame.Marshal(f))
}

// SendHeartbeat writes the protocol's distinguished lone-line-feed keepalive.
// Outside Active it is a no-op.
func (s *Session) SendHeartbeat() error {
	if s.State() != Active {
		return nil
	}
	log.Debug("Sending heartbeat")
	return s.send(frame.Heartbeat)
}

func (s *Session) send(wire string) error {
	trans := s.transport()
	if trans == nil {
		return transport.ErrConnectionLost
	}
	s.config.Valve.txWait(len(wire))
	log.Debugf(">>> %v", wire)
	if err := trans.Send(wire); err != nil {
		log.Errorf("Failed to send frame: %v", err)
		return err
	}
	return nil
}

// Disconnect transmits a best-effort DISCONNECT frame and closes the
// transport. Outside Active it is a no-op.
func (s *Session) Disconnect() {
	s.stateM.Lock()
	if s.state != Active {
		s.stateM.Unlock()
		return
	}
	s.state = Closed
	s.stateM.Unlock()

	if err := s.transmitFrame(frame.New(frame.CmdDisconnect)); err != nil {
		log.Warnf("Failed to transmit DISCONNECT: %v", err)
	}
	s.doneOnce.Do(func() { close(s.doneCh) })
	if trans := s.transport(); trans != nil {
		if err := trans.Close(); err != nil {
			log.Warnf("Failed to close transport: %v", err)
		}
	}
	log.Info("Disconnected from STOMP broker")
}

func (s *Session) State() State {
	s.stateM.Lock()
	defer s.stateM.Unlock()
	return s.state
}

func (s *Session) transport() transport.Transport {
	s.stateM.Lock()
	defer s.stateM.Unlock()
	return s.trans
}

func (s *Session) terminalError() error {
	s.stateM.Lock()
	defer s.stateM.Unlock()
	return s.failure
}

// UnroutedCount reports how many MESSAGE frames arrived for destinations
// with no registered callback.
func (s *Session) UnroutedCount() uint32 {
	return atomic.LoadUint32(&s.unrouted)
}
