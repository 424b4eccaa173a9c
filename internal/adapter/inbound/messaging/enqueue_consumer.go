// Package messaging provides the NATS JetStream ingress for the embedding
// queue. Producers publish enqueue requests to a work-queue stream and a
// durable pull consumer feeds them into the queue service.
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
	"embedqueue/internal/application/dto"
	"embedqueue/internal/config"
	domainerrors "embedqueue/internal/domain/errors/domain"
	"embedqueue/internal/port/inbound"
)

const (
	// EnqueueSubject accepts producer enqueue requests.
	EnqueueSubject = "embedding.queue.enqueue"

	ingestStreamName = "EMBEDQUEUE_INGEST"

	defaultDurableName   = "embedqueue-ingress"
	defaultAckWait       = 30 * time.Second
	defaultMaxDeliver    = 5
	defaultMaxAckPending = 256

	fetchBatchSize     = 16
	fetchMaxWait       = 2 * time.Second
	fetchErrorBackoff  = time.Second
	nakRedeliveryDelay = 5 * time.Second
	enqueueTimeout     = 10 * time.Second
	connectTimeout     = 5 * time.Second
)

// msgDisposition tells the fetch loop how to settle one delivery.
type msgDisposition int

const (
	dispositionAck  msgDisposition = iota // stored, or a duplicate of stored work
	dispositionNak                        // transient failure, redeliver
	dispositionTerm                       // poison, never redeliver
)

// EnqueueConsumerConfig configures the ingress consumer. Zero values take the
// package defaults; negative values are rejected.
type EnqueueConsumerConfig struct {
	Subject       string
	Durable       string
	AckWait       time.Duration
	MaxDeliver    int
	MaxAckPending int
}

// EnqueueConsumerStats counts ingress deliveries by outcome.
type EnqueueConsumerStats struct {
	Received   int64
	Enqueued   int64
	Duplicates int64
	Poisoned   int64
	Retried    int64
	LastError  string
}

// EnqueueConsumerHealth reports the ingress transport state.
type EnqueueConsumerHealth struct {
	Running   bool
	Connected bool
	Subject   string
	Durable   string
	Uptime    string
}

// EnqueueConsumer pulls enqueue requests from JetStream and stores them
// through the queue service. Every instance binds the same durable consumer,
// so JetStream balances deliveries across instances the way a queue group
// balances a core NATS subject.
type EnqueueConsumer struct {
	cfg        EnqueueConsumerConfig
	natsConfig config.NATSConfig
	queue      inbound.QueueService
	logger     *slogger.Logger

	mu        sync.RWMutex
	running   bool
	startedAt time.Time
	conn      *nats.Conn
	sub       *nats.Subscription
	stopCh    chan struct{}
	stats     EnqueueConsumerStats

	wg sync.WaitGroup
}

// NewEnqueueConsumer validates the configuration and builds the consumer.
// Start must be called before messages flow.
func NewEnqueueConsumer(
	cfg EnqueueConsumerConfig,
	natsConfig config.NATSConfig,
	queue inbound.QueueService,
) (*EnqueueConsumer, error) {
	if queue == nil {
		return nil, errors.New("queue service cannot be nil")
	}
	if natsConfig.URL == "" {
		return nil, errors.New("NATS URL cannot be empty")
	}
	if !strings.HasPrefix(natsConfig.URL, "nats://") {
		return nil, errors.New("invalid NATS URL scheme")
	}
	if cfg.AckWait < 0 {
		return nil, errors.New("ack wait cannot be negative")
	}
	if cfg.MaxDeliver < 0 {
		return nil, errors.New("max deliver cannot be negative")
	}
	if cfg.MaxAckPending < 0 {
		return nil, errors.New("max ack pending cannot be negative")
	}

	if cfg.Subject == "" {
		cfg.Subject = EnqueueSubject
	}
	if cfg.Durable == "" {
		cfg.Durable = defaultDurableName
	}
	if cfg.AckWait == 0 {
		cfg.AckWait = defaultAckWait
	}
	if cfg.MaxDeliver == 0 {
		cfg.MaxDeliver = defaultMaxDeliver
	}
	if cfg.MaxAckPending == 0 {
		cfg.MaxAckPending = defaultMaxAckPending
	}

	return &EnqueueConsumer{
		cfg:        cfg,
		natsConfig: natsConfig,
		queue:      queue,
		logger:     slogger.WithComponent("enqueue-consumer"),
	}, nil
}

// Start connects to NATS, ensures the ingest stream and durable consumer
// exist, and begins fetching. In test mode the consumer runs without a
// transport.
func (c *EnqueueConsumer) Start(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return fmt.Errorf("ingress consumer already running on %s", c.cfg.Subject)
	}

	if c.natsConfig.TestMode {
		c.running = true
		c.startedAt = time.Now()
		return nil
	}

	conn, err := nats.Connect(
		c.natsConfig.URL,
		nats.MaxReconnects(c.natsConfig.MaxReconnects),
		nats.ReconnectWait(c.natsConfig.ReconnectWait),
		nats.Timeout(connectTimeout),
	)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := ensureIngestStream(js, c.cfg.Subject); err != nil {
		conn.Close()
		return err
	}
	if err := c.ensureDurableConsumer(js); err != nil {
		conn.Close()
		return err
	}

	sub, err := js.PullSubscribe(c.cfg.Subject, c.cfg.Durable, nats.Bind(ingestStreamName, c.cfg.Durable))
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create pull subscription: %w", err)
	}

	stopCh := make(chan struct{})
	c.conn = conn
	c.sub = sub
	c.stopCh = stopCh
	c.running = true
	c.startedAt = time.Now()

	c.wg.Add(1)
	go c.fetchLoop(stopCh, sub)

	c.logger.InfoNoCtx("ingress consumer started", slogger.Fields2(
		"subject", c.cfg.Subject,
		"durable", c.cfg.Durable,
	))
	return nil
}

// Stop shuts the consumer down. Stopping a stopped consumer is a no-op.
// Deliveries fetched but not yet acked redeliver after the ack wait; the
// enqueue is idempotent, so the retry settles as a duplicate.
func (c *EnqueueConsumer) Stop(_ context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	c.running = false
	stopCh := c.stopCh
	conn := c.conn
	c.stopCh = nil
	c.conn = nil
	c.sub = nil
	c.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	// Closing the connection unblocks a fetch in flight.
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	return nil
}

// Stats returns delivery counters.
func (c *EnqueueConsumer) Stats() EnqueueConsumerStats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stats
}

// Health reports the transport state for operational checks.
func (c *EnqueueConsumer) Health() EnqueueConsumerHealth {
	c.mu.RLock()
	defer c.mu.RUnlock()

	health := EnqueueConsumerHealth{
		Running:   c.running,
		Connected: c.natsConfig.TestMode && c.running,
		Subject:   c.cfg.Subject,
		Durable:   c.cfg.Durable,
		Uptime:    "0s",
	}
	if c.conn != nil {
		health.Connected = c.conn.IsConnected()
	}
	if c.running && !c.startedAt.IsZero() {
		health.Uptime = time.Since(c.startedAt).String()
	}
	return health
}

func ensureIngestStream(js nats.JetStreamContext, subject string) error {
	if _, err := js.StreamInfo(ingestStreamName); err == nil {
		return nil
	}

	_, err := js.AddStream(&nats.StreamConfig{
		Name:      ingestStreamName,
		Subjects:  []string{subject},
		Storage:   nats.FileStorage,
		Retention: nats.WorkQueuePolicy,
		Replicas:  1,
	})
	if err != nil {
		// Lost the creation race: another instance made the stream first.
		if _, infoErr := js.StreamInfo(ingestStreamName); infoErr == nil {
			return nil
		}
		return fmt.Errorf("failed to create ingest stream: %w", err)
	}
	return nil
}

func (c *EnqueueConsumer) ensureDurableConsumer(js nats.JetStreamContext) error {
	if _, err := js.ConsumerInfo(ingestStreamName, c.cfg.Durable); err == nil {
		return nil
	}

	_, err := js.AddConsumer(ingestStreamName, &nats.ConsumerConfig{
		Durable:       c.cfg.Durable,
		FilterSubject: c.cfg.Subject,
		AckPolicy:     nats.AckExplicitPolicy,
		AckWait:       c.cfg.AckWait,
		MaxDeliver:    c.cfg.MaxDeliver,
		MaxAckPending: c.cfg.MaxAckPending,
	})
	if err != nil {
		if _, infoErr := js.ConsumerInfo(ingestStreamName, c.cfg.Durable); infoErr == nil {
			return nil
		}
		return fmt.Errorf("failed to create durable consumer %s: %w", c.cfg.Durable, err)
	}
	return nil
}

// fetchLoop pulls batches until the stop channel closes. Fetch timeouts are
// the idle path; other fetch errors back off briefly so a broker outage does
// not spin the loop.
func (c *EnqueueConsumer) fetchLoop(stopCh <-chan struct{}, sub *nats.Subscription) {
	defer c.wg.Done()

	for {
		select {
		case <-stopCh:
			return
		default:
		}

		msgs, err := sub.Fetch(fetchBatchSize, nats.MaxWait(fetchMaxWait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			select {
			case <-stopCh:
				return
			default:
			}
			c.logger.WarnNoCtx("ingress fetch failed", slogger.Field("error", err.Error()))
			select {
			case <-stopCh:
				return
			case <-time.After(fetchErrorBackoff):
			}
			continue
		}

		for _, msg := range msgs {
			c.handleMessage(msg)
		}
	}
}

func (c *EnqueueConsumer) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), enqueueTimeout)
	defer cancel()

	disposition, err := c.decide(ctx, msg.Data)
	c.recordDelivery(disposition, err)

	switch disposition {
	case dispositionAck:
		_ = msg.Ack()
	case dispositionTerm:
		c.logger.WarnNoCtx("dropping poison enqueue message", slogger.Field("error", err.Error()))
		_ = msg.Term()
	case dispositionNak:
		c.logger.WarnNoCtx("enqueue failed, requesting redelivery", slogger.Field("error", err.Error()))
		_ = msg.NakWithDelay(nakRedeliveryDelay)
	}
}

// decide maps one delivery to its disposition. Malformed payloads and
// validation failures are poison: redelivering them can never succeed.
// Duplicates ack because the queue already holds the work.
func (c *EnqueueConsumer) decide(ctx context.Context, data []byte) (msgDisposition, error) {
	var request dto.EnqueueItemRequest
	if err := json.Unmarshal(data, &request); err != nil {
		return dispositionTerm, fmt.Errorf("malformed enqueue message: %w", err)
	}

	_, err := c.queue.EnqueueItem(ctx, request)
	if err == nil {
		return dispositionAck, nil
	}

	var validationErr *domainerrors.ValidationError
	if errors.As(err, &validationErr) {
		return dispositionTerm, err
	}
	if errors.Is(err, domainerrors.ErrItemAlreadyExists) {
		return dispositionAck, err
	}
	return dispositionNak, err
}

func (c *EnqueueConsumer) recordDelivery(disposition msgDisposition, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats.Received++
	if err != nil {
		c.stats.LastError = err.Error()
	}

	switch disposition {
	case dispositionAck:
		if errors.Is(err, domainerrors.ErrItemAlreadyExists) {
			c.stats.Duplicates++
		} else {
			c.stats.Enqueued++
		}
	case dispositionTerm:
		c.stats.Poisoned++
	case dispositionNak:
		c.stats.Retried++
	}
}
