package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testConfig() *Config {
	return &Config{
		Enabled:         true,
		DefaultLimit:    100,
		DefaultWindow:   time.Minute,
		CleanupInterval: time.Minute,
		Endpoints: []EndpointConfig{
			{Path: "/run", Method: "POST", Limit: 2, Window: time.Hour, Burst: 2},
		},
	}
}

func TestAllow_BurstThenBlocked(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	ok, _ := l.Allow("1.2.3.4", "/run", "POST")
	assert.True(t, ok)
	ok, _ = l.Allow("1.2.3.4", "/run", "POST")
	assert.True(t, ok)

	ok, info := l.Allow("1.2.3.4", "/run", "POST")
	assert.False(t, ok)
	assert.Positive(t, info.RetryAfter)
}

func TestAllow_ClientsIsolated(t *testing.T) {
	l := NewLimiter(testConfig())
	defer l.Stop()

	l.Allow("1.2.3.4", "/run", "POST")
	l.Allow("1.2.3.4", "/run", "POST")

	ok, _ := l.Allow("5.6.7.8", "/run", "POST")
	assert.True(t, ok, "another client keeps its own bucket")
}

func TestAllow_HealthNeverLimited(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultLimit = 1
	l := NewLimiter(cfg)
	defer l.Stop()

	for i := 0; i < 10; i++ {
		ok, _ := l.Allow("1.2.3.4", "/health", "GET")
		assert.True(t, ok)
	}
}

func TestAllow_Disabled(t *testing.T) {
	l := NewLimiter(&Config{Enabled: false})
	defer l.Stop()
	for i := 0; i < 100; i++ {
		ok, _ := l.Allow("1.2.3.4", "/run", "POST")
		assert.True(t, ok)
	}
}

func TestStop_Idempotent(t *testing.T) {
	l := NewLimiter(testConfig())
	l.Stop()
	l.Stop()
}
