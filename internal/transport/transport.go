package transport

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/pkg/errors"
)

// ErrConnectionLost is returned by Send once the underlying link is down.
var ErrConnectionLost = errors.New("connection to remote host was lost")

// Hooks are the callbacks a Transport invokes from its own read context.
// Any hook may be nil.
type Hooks struct {
	OnOpen    func()
	OnMessage func(text string)
	OnError   func(err error)
	OnClose   func(code int, reason string)
}

func (h Hooks) open() {
	if h.OnOpen != nil {
		h.OnOpen()
	}
}

func (h Hooks) message(text string) {
	if h.OnMessage != nil {
		h.OnMessage(text)
	}
}

func (h Hooks) error(err error) {
	if h.OnError != nil {
		h.OnError(err)
	}
}

func (h Hooks) close(code int, reason string) {
	if h.OnClose != nil {
		h.OnClose(code, reason)
	}
}

// Transport is a duplex text stream to the broker. Inbound traffic and
// lifecycle events arrive through Hooks on the transport's own goroutine.
type Transport interface {
	Send(text string) error
	Close() error
}

// Config describes how to reach the broker.
type Config struct {
	// URL is the full ws:// or wss:// endpoint, see BrokerURL
	URL string

	// TLSConfig carries the trust policy for wss endpoints. Nil means the
	// system default (full verification).
	TLSConfig *tls.Config

	// NetDial, when set, replaces the TCP dial of the WebSocket handshake.
	// Used by tests to run the transport over an in-memory pipe.
	NetDial func(network, address string) (net.Conn, error)

	HandshakeTimeout time.Duration
}

// DialFunc opens a transport. The package default is Dial; tests substitute
// an in-memory fake.
type DialFunc func(config Config, hooks Hooks) (Transport, error)

// BrokerURL builds the broker endpoint from its host:port. The /websocket
// suffix is the SockJS raw-WebSocket convention and is appended only in
// SockJS mode.
func BrokerURL(hostPort string, ssl, sockJS bool) string {
	scheme := "ws://"
	if ssl {
		scheme = "wss://"
	}
	if sockJS {
		return scheme + hostPort + "/websocket"
	}
	return scheme + hostPort
}
