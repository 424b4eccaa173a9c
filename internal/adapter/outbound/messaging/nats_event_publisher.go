// Package messaging provides the NATS JetStream adapters for the embedding
// queue's event stream.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"embedqueue/internal/application/common/slogger"
	"embedqueue/internal/config"
	"embedqueue/internal/domain/messaging"
	"embedqueue/internal/port/outbound"
)

const (
	// ItemStateSubject carries one event per queue item state transition.
	ItemStateSubject = "embedding.queue.item.state"

	eventsStreamName     = "EMBEDQUEUE_EVENTS"
	eventsSubjectPattern = "embedding.queue.item.>"
	eventsStreamMaxAge   = 24 * time.Hour

	connectTimeout = 5 * time.Second
)

// NATSEventPublisher publishes item state events to JetStream. Events are
// observability fan-out, not queue state: subscribers read them under a
// limits-retention stream and a lost event never affects item processing.
type NATSEventPublisher struct {
	config config.NATSConfig
	logger *slogger.Logger

	mu          sync.RWMutex
	conn        *nats.Conn
	js          nats.JetStreamContext
	connected   bool
	connectedAt time.Time
	reconnects  int
	lastError   error

	publishedCount int64
	failedCount    int64
	avgLatency     time.Duration
}

var (
	_ outbound.EventPublisher       = (*NATSEventPublisher)(nil)
	_ outbound.EventPublisherHealth = (*NATSEventPublisher)(nil)
)

// NewNATSEventPublisher validates the NATS configuration and builds a
// publisher. Connect must be called before events can be published.
func NewNATSEventPublisher(cfg config.NATSConfig) (*NATSEventPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("NATS URL cannot be empty")
	}
	if !strings.HasPrefix(cfg.URL, "nats://") {
		return nil, errors.New("invalid NATS URL scheme")
	}
	if cfg.MaxReconnects < 0 {
		return nil, errors.New("max reconnects cannot be negative")
	}
	if cfg.ReconnectWait < 0 {
		return nil, errors.New("reconnect wait cannot be negative")
	}

	return &NATSEventPublisher{
		config: cfg,
		logger: slogger.WithComponent("nats-event-publisher"),
	}, nil
}

// Connect establishes the NATS connection, the JetStream context and the
// events stream. In test mode the publisher runs without a transport and
// counts publishes as delivered.
func (p *NATSEventPublisher) Connect() error {
	if p.config.TestMode {
		p.mu.Lock()
		p.connected = true
		p.connectedAt = time.Now()
		p.mu.Unlock()
		return nil
	}

	opts := []nats.Option{
		nats.MaxReconnects(p.config.MaxReconnects),
		nats.ReconnectWait(p.config.ReconnectWait),
		nats.Timeout(connectTimeout),
		nats.ReconnectHandler(func(conn *nats.Conn) {
			p.mu.Lock()
			p.reconnects++
			p.connected = true
			p.mu.Unlock()
			p.logger.InfoNoCtx("reconnected to NATS", slogger.Field("url", conn.ConnectedUrl()))
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			p.mu.Lock()
			p.connected = false
			if err != nil {
				p.lastError = err
			}
			p.mu.Unlock()
			p.logger.WarnNoCtx("NATS connection lost", slogger.Field("error", fmt.Sprintf("%v", err)))
		}),
	}

	conn, err := nats.Connect(p.config.URL, opts...)
	if err != nil {
		p.setLastError(err)
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		p.setLastError(err)
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := ensureEventsStream(js); err != nil {
		conn.Close()
		p.setLastError(err)
		return err
	}

	p.mu.Lock()
	p.conn = conn
	p.js = js
	p.connected = true
	p.connectedAt = time.Now()
	p.mu.Unlock()

	return nil
}

// Disconnect closes the NATS connection.
func (p *NATSEventPublisher) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
		p.js = nil
	}
	p.connected = false
	return nil
}

func ensureEventsStream(js nats.JetStreamContext) error {
	if _, err := js.StreamInfo(eventsStreamName); err == nil {
		return nil
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:      eventsStreamName,
		Subjects:  []string{eventsSubjectPattern},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    eventsStreamMaxAge,
		Replicas:  1,
	})
	if err != nil {
		// Lost the creation race: another instance made the stream first.
		if _, infoErr := js.StreamInfo(eventsStreamName); infoErr == nil {
			return nil
		}
		return fmt.Errorf("failed to create events stream: %w", err)
	}
	return nil
}

// PublishItemStateEvent publishes one state-transition event asynchronously.
func (p *NATSEventPublisher) PublishItemStateEvent(ctx context.Context, event messaging.ItemStateEvent) error {
	started := time.Now()

	if err := event.Validate(); err != nil {
		return fmt.Errorf("refusing to publish invalid event: %w", err)
	}

	if p.config.TestMode {
		p.recordPublish(true, time.Since(started))
		return nil
	}

	p.mu.RLock()
	js := p.js
	p.mu.RUnlock()

	if js == nil {
		p.recordPublish(false, time.Since(started))
		return errors.New("not connected to NATS")
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.recordPublish(false, time.Since(started))
		return fmt.Errorf("failed to marshal item state event: %w", err)
	}

	if _, err := js.PublishAsync(ItemStateSubject, data, nats.Context(ctx)); err != nil {
		p.recordPublish(false, time.Since(started))
		return fmt.Errorf("failed to publish item state event: %w", err)
	}

	p.recordPublish(true, time.Since(started))
	return nil
}

// GetConnectionHealth reports the state of the event transport for /health.
func (p *NATSEventPublisher) GetConnectionHealth() outbound.EventPublisherHealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	status := outbound.EventPublisherHealthStatus{
		Connected:        p.connected,
		Reconnects:       p.reconnects,
		JetStreamEnabled: p.js != nil,
		Uptime:           "0s",
	}
	if p.connected && !p.connectedAt.IsZero() {
		status.Uptime = time.Since(p.connectedAt).String()
	}
	if p.lastError != nil {
		status.LastError = p.lastError.Error()
	}
	return status
}

// GetPublishMetrics reports publish counters and the moving average latency.
func (p *NATSEventPublisher) GetPublishMetrics() outbound.EventPublisherMetrics {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return outbound.EventPublisherMetrics{
		PublishedCount: p.publishedCount,
		FailedCount:    p.failedCount,
		AverageLatency: p.avgLatency.String(),
	}
}

func (p *NATSEventPublisher) recordPublish(success bool, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !success {
		p.failedCount++
		return
	}

	p.publishedCount++
	if p.avgLatency == 0 {
		p.avgLatency = latency
		return
	}
	// Exponential moving average, alpha 0.1.
	p.avgLatency = time.Duration(0.9*float64(p.avgLatency) + 0.1*float64(latency))
}

func (p *NATSEventPublisher) setLastError(err error) {
	p.mu.Lock()
	p.lastError = err
	p.connected = false
	p.mu.Unlock()
}
