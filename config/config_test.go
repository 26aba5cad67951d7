package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, []string{"tcp://localhost:1883"}, cfg.Broker.Brokers)
	assert.Equal(t, "routemq", cfg.Broker.Group)
	assert.Equal(t, "fast", cfg.Queue.Driver)
	assert.Equal(t, 3, cfg.Worker.SleepSeconds)
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Setenv("ROUTEMQ_BROKER_URLS", "tcp://broker-a:1883,ssl://broker-b:8883")
	os.Setenv("ROUTEMQ_QUEUE_DRIVER", "durable")
	os.Setenv("ROUTEMQ_WORKER_MAX_TRIES", "7")
	defer func() {
		os.Unsetenv("ROUTEMQ_BROKER_URLS")
		os.Unsetenv("ROUTEMQ_QUEUE_DRIVER")
		os.Unsetenv("ROUTEMQ_WORKER_MAX_TRIES")
	}()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"tcp://broker-a:1883", "ssl://broker-b:8883"}, cfg.Broker.Brokers)
	assert.Equal(t, "durable", cfg.Queue.Driver)
	assert.Equal(t, 7, cfg.Worker.MaxTries)
}

func TestLoad_RejectsUnknownQueueDriver(t *testing.T) {
	os.Setenv("ROUTEMQ_QUEUE_DRIVER", "carrier-pigeon")
	defer os.Unsetenv("ROUTEMQ_QUEUE_DRIVER")

	_, err := Load()
	require.Error(t, err)
}

func TestSeconds(t *testing.T) {
	assert.Equal(t, "5s", Seconds(5).String())
}
