package client

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestProcessRawConfigDefaults(t *testing.T) {
	raw := &RawConfig{Host: "broker.example.com"}
	config, err := raw.ProcessRawConfig()
	assert.NoError(t, err)
	assert.Equal(t, "ws://broker.example.com:61614", config.URL)
	assert.Nil(t, config.TLSConfig)
	assert.Equal(t, 10*time.Second, config.HeartbeatInterval)
	assert.Equal(t, 30*time.Second, config.ConnectTimeout)
	assert.Equal(t, int64(0), config.SendRateBps)
}

func TestProcessRawConfigURL(t *testing.T) {
	tests := []struct {
		name     string
		raw      RawConfig
		expected string
	}{
		{"ssl", RawConfig{Host: "h", SSL: true}, "wss://h:61614"},
		{"sockjs", RawConfig{Host: "h", SockJS: true}, "ws://h:61614/websocket"},
		{"custom port", RawConfig{Host: "h", Port: 15674}, "ws://h:15674"},
		{"ssl sockjs", RawConfig{Host: "h", SSL: true, SockJS: true}, "wss://h:61614/websocket"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			config, err := tc.raw.ProcessRawConfig()
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, config.URL)
		})
	}
}

func TestProcessRawConfigTrustPolicy(t *testing.T) {
	config, err := (&RawConfig{Host: "h", SSL: true}).ProcessRawConfig()
	assert.NoError(t, err)
	assert.NotNil(t, config.TLSConfig)
	assert.False(t, config.TLSConfig.InsecureSkipVerify)

	config, err = (&RawConfig{Host: "h", SSL: true, Insecure: true}).ProcessRawConfig()
	assert.NoError(t, err)
	assert.True(t, config.TLSConfig.InsecureSkipVerify)
}

func TestProcessRawConfigValidation(t *testing.T) {
	_, err := (&RawConfig{}).ProcessRawConfig()
	assert.Error(t, err)
}

func TestProcessRawConfigCustomIntervals(t *testing.T) {
	raw := &RawConfig{Host: "h", HeartbeatInterval: 3, ConnectTimeout: 5}
	config, err := raw.ProcessRawConfig()
	assert.NoError(t, err)
	assert.Equal(t, 3*time.Second, config.HeartbeatInterval)
	assert.Equal(t, 5*time.Second, config.ConnectTimeout)
}
