package session

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

const defaultHeartbeatInterval = 10 * time.Second

// HeartbeatScheduler emits a keepalive through the session on a fixed
// interval, independent of inbound traffic. Ticks while the session is not
// Active are no-ops, and a failed beat never stops the schedule.
type HeartbeatScheduler struct {
	session  *Session
	interval time.Duration

	startOnce sync.Once
	stopOnce  sync.Once
	stopCh    chan struct{}
}

func NewHeartbeatScheduler(session *Session, interval time.Duration) *HeartbeatScheduler {
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	return &HeartbeatScheduler{
		session:  session,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

func (hb *HeartbeatScheduler) Start() {
	hb.startOnce.Do(func() {
		log.Debugf("Starting heartbeat schedule with interval %v", hb.interval)
		go hb.loop()
	})
}

func (hb *HeartbeatScheduler) loop() {
	ticker := time.NewTicker(hb.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := hb.session.SendHeartbeat(); err != nil {
				log.Errorf("Failed to send heartbeat: %v", err)
			}
		case <-hb.stopCh:
			return
		}
	}
}

// Stop terminates the schedule. Safe to call more than once.
func (hb *HeartbeatScheduler) Stop() {
	hb.stopOnce.Do(func() { close(hb.stopCh) })
}
