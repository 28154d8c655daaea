package client

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/avrel/stompws/internal/frame"
	"github.com/avrel/stompws/internal/session"
	"github.com/avrel/stompws/internal/transport"
)

// ErrNotConnected is returned by operations that would put a frame on the
// wire out of protocol order. Frames are never queued for later.
var ErrNotConnected = errors.New("client is not connected")

const ackClient = "client"

// StompClient is the high level API exposed to applications: connect,
// subscribe with a per-destination callback, send, disconnect. It owns one
// session/transport pair; after a failure a caller wanting resilience builds
// a new client.
type StompClient struct {
	config    Config
	registry  *session.Registry
	session   *session.Session
	heartbeat *session.HeartbeatScheduler

	connected uint32
}

// NewStompClient assembles a client from a processed Config. dial overrides
// how the transport is opened; nil means the WebSocket default.
func NewStompClient(config Config, dial transport.DialFunc) *StompClient {
	registry := session.NewRegistry()
	var valve *session.Valve
	if config.SendRateBps > 0 {
		valve = session.MakeValve(config.SendRateBps)
	}
	sesh := session.New(session.Config{
		URL:            config.URL,
		TLSConfig:      config.TLSConfig,
		Credentials:    config.Credentials,
		ConnectTimeout: config.ConnectTimeout,
		Valve:          valve,
		Dial:           dial,
	}, registry)

	return &StompClient{
		config:    config,
		registry:  registry,
		session:   sesh,
		heartbeat: session.NewHeartbeatScheduler(sesh, config.HeartbeatInterval),
	}
}

// Connect opens the session and blocks until it is Active or terminally
// failed. The bool reports whether the broker accepted the connection.
func (c *StompClient) Connect() (bool, error) {
	log.Infof("Connecting to STOMP broker at %v", c.config.URL)
	ok, err := c.session.Open()
	if !ok {
		return false, err
	}
	atomic.StoreUint32(&c.connected, 1)
	c.heartbeat.Start()
	return true, nil
}

func (c *StompClient) IsConnected() bool {
	return atomic.LoadUint32(&c.connected) == 1
}

// Subscribe registers callback for destination and transmits the SUBSCRIBE
// frame. Subscribing again to the same destination replaces the callback.
func (c *StompClient) Subscribe(destination string, callback session.Callback) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	id := newSubscriptionID()
	c.registry.Register(&session.Subscription{
		Destination: destination,
		ID:          id,
		Ack:         ackClient,
		Callback:    callback,
	})

	var headers frame.Headers
	headers.Set(frame.HdrId, id)
	headers.Set(frame.HdrAck, ackClient)
	headers.Set(frame.HdrDestination, destination)
	return c.session.Transmit(frame.CmdSubscribe, headers, nil)
}

// Unsubscribe removes the destination's callback and tells the broker to
// stop delivering to it.
func (c *StompClient) Unsubscribe(destination string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	sub, ok := c.registry.Unregister(destination)
	if !ok {
		return fmt.Errorf("no subscription for destination %v", destination)
	}
	var headers frame.Headers
	headers.Set(frame.HdrId, sub.ID)
	return c.session.Transmit(frame.CmdUnsubscribe, headers, nil)
}

// Send publishes message to destination.
func (c *StompClient) Send(destination string, message string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	var headers frame.Headers
	headers.Set(frame.HdrDestination, destination)
	headers.Set(frame.HdrContentLength, strconv.Itoa(len(message)))
	return c.session.Transmit(frame.CmdSend, headers, []byte(message))
}

// Disconnect tears the session down. A no-op unless currently connected.
func (c *StompClient) Disconnect() {
	if !atomic.CompareAndSwapUint32(&c.connected, 1, 0) {
		return
	}
	c.heartbeat.Stop()
	c.session.Disconnect()
}

func newSubscriptionID() string {
	return fmt.Sprintf("sub-%d-%.8s", time.Now().Unix(), uuid.New().String())
}
