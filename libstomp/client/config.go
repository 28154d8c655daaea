package client

import (
	"crypto/tls"
	"encoding/json"
	"io/ioutil"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/avrel/stompws/internal/session"
	"github.com/avrel/stompws/internal/transport"
)

const (
	defaultPort              = 61614
	defaultHeartbeatInterval = 10 * time.Second
	defaultConnectTimeout    = 30 * time.Second
)

// RawConfig represents the fields of the config json file.
// nullable means a default is chosen in ProcessRawConfig when the field is
// empty; commandline flags may override any field before processing.
type RawConfig struct {
	Host     string
	Port     int // nullable
	Username string
	Password string

	SSL      bool
	SockJS   bool
	Insecure bool

	HeartbeatInterval int   // nullable, seconds
	ConnectTimeout    int   // nullable, seconds
	SendRateBps       int64 // nullable, 0 means unlimited
}

// Config is the processed, ready-to-dial form of RawConfig.
type Config struct {
	URL         string
	TLSConfig   *tls.Config
	Credentials session.Credentials

	HeartbeatInterval time.Duration
	ConnectTimeout    time.Duration

	// SendRateBps throttles outbound bytes per second; 0 is unlimited.
	SendRateBps int64
}

// ParseConfig reads a json config file.
func ParseConfig(path string) (*RawConfig, error) {
	content, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	raw := new(RawConfig)
	if err := json.Unmarshal(content, raw); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}
	return raw, nil
}

// ProcessRawConfig validates the raw fields, fills in defaults and builds
// the broker URL and TLS trust policy.
func (raw *RawConfig) ProcessRawConfig() (Config, error) {
	var config Config
	if raw.Host == "" {
		return config, errors.New("Host cannot be empty")
	}

	port := raw.Port
	if port == 0 {
		port = defaultPort
	}
	hostPort := net.JoinHostPort(raw.Host, strconv.Itoa(port))
	config.URL = transport.BrokerURL(hostPort, raw.SSL, raw.SockJS)

	if raw.SSL {
		// Insecure accepts self-signed broker certificates. Testing only.
		config.TLSConfig = &tls.Config{InsecureSkipVerify: raw.Insecure}
	}

	config.Credentials = session.Credentials{
		Username: raw.Username,
		Passcode: raw.Password,
	}

	if raw.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaultHeartbeatInterval
	} else {
		config.HeartbeatInterval = time.Duration(raw.HeartbeatInterval) * time.Second
	}
	if raw.ConnectTimeout <= 0 {
		config.ConnectTimeout = defaultConnectTimeout
	} else {
		config.ConnectTimeout = time.Duration(raw.ConnectTimeout) * time.Second
	}
	config.SendRateBps = raw.SendRateBps

	return config, nil
}
