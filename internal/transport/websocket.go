package transport

import (
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const defaultHandshakeTimeout = 15 * time.Second

// wsTransport carries STOMP text over a gorilla WebSocket connection.
// Writes are serialised behind a mutex so concurrent transmits can never
// interleave partial frames on the wire.
type wsTransport struct {
	conn  *websocket.Conn
	hooks Hooks

	writeM sync.Mutex
	closed uint32
}

// Dial performs the WebSocket handshake and starts the read loop. OnOpen is
// invoked before Dial returns; every later hook fires on the read goroutine.
func Dial(config Config, hooks Hooks) (Transport, error) {
	dialer := websocket.Dialer{
		NetDial:          config.NetDial,
		TLSClientConfig:  config.TLSConfig,
		HandshakeTimeout: config.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = defaultHandshakeTimeout
	}

	conn, _, err := dialer.Dial(config.URL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to dial broker")
	}

	t := &wsTransport{
		conn:  conn,
		hooks: hooks,
	}
	hooks.open()
	go t.readLoop()
	return t, nil
}

func (t *wsTransport) readLoop() {
	for {
		msgType, payload, err := t.conn.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				t.hooks.close(closeErr.Code, closeErr.Text)
			} else {
				if atomic.LoadUint32(&t.closed) == 0 {
					t.hooks.error(err)
				}
				t.hooks.close(websocket.CloseAbnormalClosure, err.Error())
			}
			return
		}
		if msgType != websocket.TextMessage && msgType != websocket.BinaryMessage {
			continue
		}
		// inbound bytes must be UTF-8 text before they can be a frame
		if !utf8.Valid(payload) {
			log.Warnf("Discarding %v byte non-UTF-8 transport message", len(payload))
			continue
		}
		t.hooks.message(string(payload))
	}
}

func (t *wsTransport) Send(text string) error {
	t.writeM.Lock()
	defer t.writeM.Unlock()
	if atomic.LoadUint32(&t.closed) == 1 {
		return ErrConnectionLost
	}
	err := t.conn.WriteMessage(websocket.TextMessage, []byte(text))
	if err != nil {
		atomic.StoreUint32(&t.closed, 1)
		return errors.Wrap(ErrConnectionLost, err.Error())
	}
	return nil
}

func (t *wsTransport) Close() error {
	t.writeM.Lock()
	defer t.writeM.Unlock()
	if !atomic.CompareAndSwapUint32(&t.closed, 0, 1) {
		return nil
	}
	// best effort: tell the peer we are going away before tearing down
	deadline := time.Now().Add(time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return t.conn.Close()
}
