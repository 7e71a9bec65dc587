package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/canopyhq/canopy-backend/pkg/config"
	"github.com/canopyhq/canopy-backend/pkg/db/models"
	"github.com/canopyhq/canopy-backend/pkg/enums"
	"github.com/canopyhq/canopy-backend/pkg/logger"
	"github.com/canopyhq/canopy-backend/pkg/metrics"
	"github.com/canopyhq/canopy-backend/pkg/outbox"
	"github.com/canopyhq/canopy-backend/pkg/outbox/payloads"
	"github.com/canopyhq/canopy-backend/pkg/outbox/registry"
)

func TestDrainContinuesPastTransientFailure(t *testing.T) {
	first, second := saleRow(t, 0), saleRow(t, 0)
	store := &memStore{rows: []models.OutboxEvent{first, second}}
	sender := &recordingSender{errs: []error{errors.New("deadline exceeded"), nil}}
	d := newTestDispatcher(t, store, &memDLQ{}, resolvedAs("domain-topic", &payloads.POSSaleCompletedEvent{}), sender, config.OutboxConfig{MaxAttempts: 5})

	claimed, err := d.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, claimed)
	assert.Equal(t, []uuid.UUID{first.ID}, store.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, store.published)
	assert.Empty(t, store.terminal)
}

func TestDrainRoutesLoyaltySyncToItsTopic(t *testing.T) {
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventLoyaltySyncRequested,
		AggregateType: enums.AggregateCustomerLoyalty,
		AggregateID:   uuid.New(),
		Payload:       envelopeBytes(t),
	}
	store := &memStore{rows: []models.OutboxEvent{row}}
	sender := &recordingSender{}
	reg := prometheus.NewRegistry()

	var topics []string
	d := newTestDispatcher(t, store, &memDLQ{}, resolvedAs("loyalty-topic", &payloads.LoyaltySyncRequestedEvent{}), sender, config.OutboxConfig{})
	d.metrics = metrics.NewOutboxMetrics(reg)
	d.newSender = func(topic string) messageSender {
		topics = append(topics, topic)
		return sender
	}

	_, err := d.drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"loyalty-topic"}, topics)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, string(enums.EventLoyaltySyncRequested), sender.sent[0].Attributes["event_type"])
	assert.Equal(t, row.AggregateID.String(), sender.sent[0].Attributes["aggregate_id"])
	assert.Equal(t, "test-instance", sender.sent[0].Attributes["publisher"])
	assert.Equal(t, []uuid.UUID{row.ID}, store.published)

	n, err := testutil.GatherAndCount(reg, "canopy_outbox_published_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSenderCachedPerTopic(t *testing.T) {
	store := &memStore{rows: []models.OutboxEvent{saleRow(t, 0), saleRow(t, 0)}}
	sender := &recordingSender{}
	d := newTestDispatcher(t, store, &memDLQ{}, resolvedAs("domain-topic", &payloads.POSSaleCompletedEvent{}), sender, config.OutboxConfig{})

	built := 0
	d.newSender = func(string) messageSender {
		built++
		return sender
	}

	_, err := d.drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, built)
	assert.Len(t, sender.sent, 2)
}

func TestDrainDeadLettersUnresolvableRow(t *testing.T) {
	row := saleRow(t, 0)
	store := &memStore{rows: []models.OutboxEvent{row}}
	dlq := &memDLQ{}
	resolver := &stubResolver{err: registry.NewNonRetryableError(errors.New("invalid payload"))}
	d := newTestDispatcher(t, store, dlq, resolver, &recordingSender{}, config.OutboxConfig{})

	_, err := d.drain(context.Background())
	require.NoError(t, err)

	require.Len(t, dlq.entries, 1)
	entry := dlq.entries[0]
	assert.Equal(t, row.ID, entry.EventID)
	assert.JSONEq(t, string(row.Payload), string(entry.Payload))
	assert.Equal(t, enums.OutboxDLQReasonNonRetryable, entry.ErrorReason)
	require.NotNil(t, entry.ErrorMessage)
	assert.Contains(t, *entry.ErrorMessage, "invalid payload")
	assert.Equal(t, []uuid.UUID{row.ID}, store.terminal)
}

func TestDrainDeadLettersAfterMaxAttempts(t *testing.T) {
	row := saleRow(t, 1)
	store := &memStore{rows: []models.OutboxEvent{row}}
	dlq := &memDLQ{}
	sender := &recordingSender{errs: []error{errors.New("unavailable")}}
	d := newTestDispatcher(t, store, dlq, resolvedAs("domain-topic", &payloads.POSSaleCompletedEvent{}), sender, config.OutboxConfig{MaxAttempts: 2})

	_, err := d.drain(context.Background())
	require.NoError(t, err)

	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.OutboxDLQReasonMaxAttempts, dlq.entries[0].ErrorReason)
	assert.Contains(t, *dlq.entries[0].ErrorMessage, "max publish attempts")
	assert.Empty(t, store.failed)
	assert.Equal(t, []uuid.UUID{row.ID}, store.terminal)
}

func TestNewDispatcherReportsEveryMissingDependency(t *testing.T) {
	_, err := NewDispatcher(DispatcherParams{})
	require.Error(t, err)
	for _, want := range []string{"logger", "database", "pubsub", "outbox store", "dlq store", "event resolver"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	d := newTestDispatcher(t, &memStore{}, &memDLQ{}, &stubResolver{}, &recordingSender{}, config.OutboxConfig{PollIntervalMS: 10})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := d.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func newTestDispatcher(t *testing.T, store outboxStore, dlq deadLetterStore, resolver eventResolver, sender messageSender, cfg config.OutboxConfig) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(DispatcherParams{
		Outbox:     cfg,
		Logger:     logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:         fakeTx{},
		PubSub:     fakeTopics{},
		Store:      store,
		DLQ:        dlq,
		Resolver:   resolver,
		NewSender:  func(string) messageSender { return sender },
		InstanceID: "test-instance",
	})
	require.NoError(t, err)
	return d
}

func saleRow(t *testing.T, attempts int) models.OutboxEvent {
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPOSSaleCompleted,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       envelopeBytes(t),
		AttemptCount:  attempts,
	}
}

func envelopeBytes(t *testing.T) json.RawMessage {
	t.Helper()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	return payload
}

func resolvedAs(topic string, payload any) *stubResolver {
	return &stubResolver{topic: topic, payload: payload}
}

type stubResolver struct {
	topic   string
	payload any
	err     error
}

func (s *stubResolver) Resolve(row models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     row.EventType,
			AggregateType: row.AggregateType,
			Topic:         s.topic,
		},
		Envelope: outbox.PayloadEnvelope{EventID: row.ID.String(), OccurredAt: time.Now()},
		Payload:  s.payload,
	}, nil
}

type memStore struct {
	rows      []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (m *memStore) FetchUnpublishedForPublish(_ *gorm.DB, _, _ int) ([]models.OutboxEvent, error) {
	return m.rows, nil
}

func (m *memStore) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	m.published = append(m.published, id)
	return nil
}

func (m *memStore) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	m.failed = append(m.failed, id)
	return nil
}

func (m *memStore) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	m.terminal = append(m.terminal, id)
	return nil
}

type memDLQ struct {
	entries []models.OutboxDLQ
}

func (m *memDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	m.entries = append(m.entries, entry)
	return nil
}

type recordingSender struct {
	errs []error
	sent []*gcppubsub.Message
}

func (r *recordingSender) Send(_ context.Context, msg *gcppubsub.Message) error {
	r.sent = append(r.sent, msg)
	if len(r.errs) == 0 {
		return nil
	}
	err := r.errs[0]
	r.errs = r.errs[1:]
	return err
}

type fakeTx struct{}

func (fakeTx) Ping(context.Context) error { return nil }

func (fakeTx) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakeTopics struct{}

func (fakeTopics) Ping(context.Context) error { return nil }

func (fakeTopics) Publisher(string) *gcppubsub.Publisher { return nil }
