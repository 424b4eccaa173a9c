package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"embedqueue/internal/config"
	"embedqueue/internal/domain/messaging"
	"embedqueue/internal/domain/valueobject"
)

func testNATSConfig() config.NATSConfig {
	return config.NATSConfig{
		URL:           "nats://localhost:4222",
		MaxReconnects: 3,
		ReconnectWait: 2 * time.Second,
		TestMode:      true,
	}
}

func claimedEvent() messaging.ItemStateEvent {
	return messaging.NewItemStateEvent(
		uuid.New(),
		"receipts",
		uuid.NewString(),
		valueobject.ItemStatusPending,
		valueobject.ItemStatusProcessing,
		"worker-1",
		0,
	)
}

func TestNewNATSEventPublisher_Validation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*config.NATSConfig)
		wantErr string
	}{
		{
			name:    "empty URL",
			mutate:  func(c *config.NATSConfig) { c.URL = "" },
			wantErr: "NATS URL cannot be empty",
		},
		{
			name:    "wrong scheme",
			mutate:  func(c *config.NATSConfig) { c.URL = "http://localhost:4222" },
			wantErr: "invalid NATS URL scheme",
		},
		{
			name:    "negative max reconnects",
			mutate:  func(c *config.NATSConfig) { c.MaxReconnects = -1 },
			wantErr: "max reconnects cannot be negative",
		},
		{
			name:    "negative reconnect wait",
			mutate:  func(c *config.NATSConfig) { c.ReconnectWait = -time.Second },
			wantErr: "reconnect wait cannot be negative",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testNATSConfig()
			tt.mutate(&cfg)

			publisher, err := NewNATSEventPublisher(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Nil(t, publisher)
		})
	}

	t.Run("valid config", func(t *testing.T) {
		publisher, err := NewNATSEventPublisher(testNATSConfig())
		require.NoError(t, err)
		assert.NotNil(t, publisher)
	})
}

func TestNATSEventPublisher_PublishInTestMode(t *testing.T) {
	publisher, err := NewNATSEventPublisher(testNATSConfig())
	require.NoError(t, err)
	require.NoError(t, publisher.Connect())

	for range 3 {
		require.NoError(t, publisher.PublishItemStateEvent(context.Background(), claimedEvent()))
	}

	metrics := publisher.GetPublishMetrics()
	assert.Equal(t, int64(3), metrics.PublishedCount)
	assert.Zero(t, metrics.FailedCount)
	assert.NotEmpty(t, metrics.AverageLatency)

	health := publisher.GetConnectionHealth()
	assert.True(t, health.Connected)
	assert.Empty(t, health.LastError)
	assert.Zero(t, health.Reconnects)
}

func TestNATSEventPublisher_RefusesInvalidEvent(t *testing.T) {
	publisher, err := NewNATSEventPublisher(testNATSConfig())
	require.NoError(t, err)
	require.NoError(t, publisher.Connect())

	event := claimedEvent()
	event.ItemID = uuid.Nil

	err = publisher.PublishItemStateEvent(context.Background(), event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "refusing to publish invalid event")

	// A refused event counts as neither published nor failed.
	metrics := publisher.GetPublishMetrics()
	assert.Zero(t, metrics.PublishedCount)
	assert.Zero(t, metrics.FailedCount)
}

func TestNATSEventPublisher_PublishWithoutConnect(t *testing.T) {
	cfg := testNATSConfig()
	cfg.TestMode = false

	publisher, err := NewNATSEventPublisher(cfg)
	require.NoError(t, err)

	err = publisher.PublishItemStateEvent(context.Background(), claimedEvent())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not connected to NATS")

	metrics := publisher.GetPublishMetrics()
	assert.Zero(t, metrics.PublishedCount)
	assert.Equal(t, int64(1), metrics.FailedCount)
}

func TestNATSEventPublisher_HealthBeforeConnect(t *testing.T) {
	publisher, err := NewNATSEventPublisher(testNATSConfig())
	require.NoError(t, err)

	health := publisher.GetConnectionHealth()
	assert.False(t, health.Connected)
	assert.False(t, health.JetStreamEnabled)
	assert.Equal(t, "0s", health.Uptime)
	assert.Empty(t, health.LastError)
}

func TestNATSEventPublisher_Disconnect(t *testing.T) {
	publisher, err := NewNATSEventPublisher(testNATSConfig())
	require.NoError(t, err)
	require.NoError(t, publisher.Connect())
	require.NoError(t, publisher.Disconnect())

	health := publisher.GetConnectionHealth()
	assert.False(t, health.Connected)
}
