package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/canopyhq/canopy-backend/pkg/config"
	"github.com/canopyhq/canopy-backend/pkg/db/models"
	"github.com/canopyhq/canopy-backend/pkg/enums"
	"github.com/canopyhq/canopy-backend/pkg/logger"
	"github.com/canopyhq/canopy-backend/pkg/metrics"
	"github.com/canopyhq/canopy-backend/pkg/outbox/registry"
)

const (
	fallbackBatchSize   = 50
	fallbackPoll        = 500 * time.Millisecond
	fallbackMaxAttempts = 10
	sendTimeout         = 15 * time.Second
	idleCeiling         = 10 * time.Second
	jitterMax           = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type topicSource interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// messageSender publishes a single message and blocks until the broker acks it.
type messageSender interface {
	Send(ctx context.Context, msg *gcppubsub.Message) error
}

type senderFactory func(topic string) messageSender

// outcome is what happened to one claimed outbox row.
type outcome int

const (
	outcomeDelivered outcome = iota
	outcomeRetry
	outcomeDeadLetter
)

type DispatcherParams struct {
	Outbox     config.OutboxConfig
	Logger     *logger.Logger
	DB         txRunner
	PubSub     topicSource
	Store      outboxStore
	DLQ        deadLetterStore
	Resolver   eventResolver
	NewSender  senderFactory
	Metrics    *metrics.OutboxMetrics
	InstanceID string
}

// Dispatcher drains unpublished outbox rows into Pub/Sub topics.
type Dispatcher struct {
	logg        *logger.Logger
	db          txRunner
	pubsub      topicSource
	store       outboxStore
	dlq         deadLetterStore
	resolver    eventResolver
	metrics     *metrics.OutboxMetrics
	instanceID  string
	batchSize   int
	maxAttempts int
	poll        time.Duration

	newSender senderFactory
	sendersMu sync.Mutex
	senders   map[string]messageSender
}

func NewDispatcher(p DispatcherParams) (*Dispatcher, error) {
	var err error
	if p.Logger == nil {
		err = multierr.Append(err, errors.New("logger is required"))
	}
	if p.DB == nil {
		err = multierr.Append(err, errors.New("database client is required"))
	}
	if p.PubSub == nil {
		err = multierr.Append(err, errors.New("pubsub client is required"))
	}
	if p.Store == nil {
		err = multierr.Append(err, errors.New("outbox store is required"))
	}
	if p.DLQ == nil {
		err = multierr.Append(err, errors.New("dlq store is required"))
	}
	if p.Resolver == nil {
		err = multierr.Append(err, errors.New("event resolver is required"))
	}
	if err != nil {
		return nil, err
	}

	d := &Dispatcher{
		logg:        p.Logger,
		db:          p.DB,
		pubsub:      p.PubSub,
		store:       p.Store,
		dlq:         p.DLQ,
		resolver:    p.Resolver,
		metrics:     p.Metrics,
		instanceID:  p.InstanceID,
		batchSize:   positiveOr(p.Outbox.BatchSize, fallbackBatchSize),
		maxAttempts: positiveOr(p.Outbox.MaxAttempts, fallbackMaxAttempts),
		poll:        fallbackPoll,
		newSender:   p.NewSender,
		senders:     map[string]messageSender{},
	}
	if p.Outbox.PollIntervalMS > 0 {
		d.poll = time.Duration(p.Outbox.PollIntervalMS) * time.Millisecond
	}
	if d.newSender == nil {
		d.newSender = d.gcpSender
	}
	return d, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run polls until ctx is canceled. A full batch is followed immediately by
// another drain; an empty one waits for the poll interval. Errors back off
// exponentially up to idleCeiling.
func (d *Dispatcher) Run(ctx context.Context) error {
	if err := d.db.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := d.pubsub.Ping(ctx); err != nil {
		return fmt.Errorf("pubsub ping failed: %w", err)
	}

	wait := d.poll
	for ctx.Err() == nil {
		claimed, err := d.drain(ctx)
		switch {
		case err != nil:
			d.logg.Error(ctx, "outbox drain failed", err)
			wait = min(wait*2, idleCeiling)
		case claimed > 0:
			wait = d.poll
			continue
		default:
			wait = d.poll
		}

		timer := time.NewTimer(wait + rand.N(jitterMax))
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
	d.logg.Info(ctx, "outbox dispatcher stopping")
	return ctx.Err()
}

// drain claims one batch inside a transaction and settles every row in it.
// It returns the number of rows claimed.
func (d *Dispatcher) drain(ctx context.Context) (int, error) {
	claimed := 0
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		rows, err := d.store.FetchUnpublishedForPublish(tx, d.batchSize, d.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox rows: %w", err)
		}
		claimed = len(rows)
		for _, row := range rows {
			if err := d.settle(ctx, tx, row); err != nil {
				return err
			}
		}
		return nil
	})
	return claimed, err
}

// settle publishes one row and records the outcome. Only bookkeeping failures
// are returned; a failed publish is recorded on the row instead.
func (d *Dispatcher) settle(ctx context.Context, tx *gorm.DB, row models.OutboxEvent) error {
	eventType := string(row.EventType)
	resolved, err := d.resolver.Resolve(row)
	if err == nil {
		err = d.send(ctx, row, resolved)
	}

	ctx = d.logg.WithFields(ctx, d.rowFields(row, resolved))

	switch result, reason := d.classify(row, err); result {
	case outcomeDelivered:
		if err := d.store.MarkPublishedTx(tx, row.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", row.ID, err)
		}
		d.metrics.IncPublished(eventType)
		d.logg.Info(ctx, "outbox event published")
	case outcomeRetry:
		d.logg.Warn(d.logg.WithField(ctx, "error", err.Error()), "outbox publish failed, will retry")
		if err := d.store.MarkFailedTx(tx, row.ID, err); err != nil {
			return fmt.Errorf("mark failed %s: %w", row.ID, err)
		}
		d.metrics.IncFailed(eventType)
	case outcomeDeadLetter:
		if reason == enums.OutboxDLQReasonMaxAttempts {
			err = fmt.Errorf("max publish attempts reached: %w", err)
		}
		return d.deadLetter(ctx, tx, row, reason, err)
	}
	return nil
}

func (d *Dispatcher) classify(row models.OutboxEvent, err error) (outcome, enums.OutboxDLQErrorReason) {
	if err == nil {
		return outcomeDelivered, ""
	}
	var permanent registry.NonRetryableError
	if errors.As(err, &permanent) {
		return outcomeDeadLetter, enums.OutboxDLQReasonNonRetryable
	}
	if row.AttemptCount+1 >= d.maxAttempts {
		return outcomeDeadLetter, enums.OutboxDLQReasonMaxAttempts
	}
	return outcomeRetry, ""
}

func (d *Dispatcher) deadLetter(ctx context.Context, tx *gorm.DB, row models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error) error {
	msg := cause.Error()
	ctx = d.logg.WithFields(ctx, map[string]any{"error_reason": reason, "error": msg})
	d.logg.Warn(ctx, "outbox event dead-lettered")

	entry := models.OutboxDLQ{
		EventID:       row.ID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  row.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := d.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", row.ID, err)
	}
	if err := d.store.MarkTerminalTx(tx, row.ID, cause, d.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", row.ID, err)
	}
	d.metrics.IncDeadLettered(string(row.EventType), string(reason))
	return nil
}

func (d *Dispatcher) send(ctx context.Context, row models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	sender := d.senderFor(topic)
	if sender == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	attrs := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(row.EventType),
		"aggregate_type": string(row.AggregateType),
		"aggregate_id":   row.AggregateID.String(),
		"created_at":     row.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if d.instanceID != "" {
		attrs["publisher"] = d.instanceID
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return sender.Send(sendCtx, &gcppubsub.Message{Data: row.Payload, Attributes: attrs})
}

// senderFor returns the cached sender for topic, creating it on first use.
func (d *Dispatcher) senderFor(topic string) messageSender {
	d.sendersMu.Lock()
	defer d.sendersMu.Unlock()
	if s, ok := d.senders[topic]; ok {
		return s
	}
	s := d.newSender(topic)
	if s != nil {
		d.senders[topic] = s
	}
	return s
}

func (d *Dispatcher) rowFields(row models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      row.ID.String(),
		"event_type":     row.EventType,
		"aggregate_type": row.AggregateType,
		"aggregate_id":   row.AggregateID.String(),
		"attempt_count":  row.AttemptCount,
	}
	if resolved != nil {
		fields["topic"] = resolved.Descriptor.Topic
		fields["event_id"] = resolved.Envelope.EventID
		if !resolved.Envelope.OccurredAt.IsZero() {
			fields["occurred_at"] = resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
		}
	}
	return fields
}

func (d *Dispatcher) gcpSender(topic string) messageSender {
	p := d.pubsub.Publisher(topic)
	if p == nil {
		return nil
	}
	return gcpSender{p: p}
}

type gcpSender struct {
	p *gcppubsub.Publisher
}

func (s gcpSender) Send(ctx context.Context, msg *gcppubsub.Message) error {
	_, err := s.p.Publish(ctx, msg).Get(ctx)
	return err
}
