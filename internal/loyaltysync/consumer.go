package loyaltysync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/canopyhq/canopy-backend/pkg/alpineiq"
	"github.com/canopyhq/canopy-backend/pkg/enums"
	"github.com/canopyhq/canopy-backend/pkg/logger"
	"github.com/canopyhq/canopy-backend/pkg/outbox"
	"github.com/canopyhq/canopy-backend/pkg/outbox/payloads"
)

const consumerName = "loyalty-sync"

type loyaltyPlatform interface {
	UpsertContact(ctx context.Context, contact alpineiq.Contact) error
	RecordPurchase(ctx context.Context, purchase alpineiq.Purchase) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// ErrPermanent marks a sync that will fail the same way on every redelivery.
var ErrPermanent = errors.New("loyalty sync rejected")

// Consumer pushes loyalty_sync_requested events to AlpineIQ.
type Consumer struct {
	client       loyaltyPlatform
	subscription *pubsub.Subscriber
	manager      idempotencyChecker
	logg         *logger.Logger
}

// NewConsumer builds a loyalty sync consumer. The subscription may be nil
// when the caller only drives Process directly.
func NewConsumer(client loyaltyPlatform, subscription *pubsub.Subscriber, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("alpineiq client required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		client:       client,
		subscription: subscription,
		manager:      manager,
		logg:         logg,
	}, nil
}

// Run receives from the loyalty sync subscription until ctx is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	if c.subscription == nil {
		return fmt.Errorf("loyalty sync subscription required")
	}
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.handleMessage(ctx, msg.ID, msg.Attributes, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// handleMessage reports whether the message should be acked.
func (c *Consumer) handleMessage(ctx context.Context, messageID string, attrs map[string]string, data []byte) bool {
	eventType := enums.OutboxEventType(attrs["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	envelope, err := outbox.DecodeEnvelope(data)
	if err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return true
	}

	err = c.Process(ctx, eventType, envelope)
	switch {
	case err == nil:
		return true
	case errors.Is(err, ErrPermanent):
		c.logg.Error(logCtx, "dropping loyalty sync", err)
		return true
	default:
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "loyalty sync will be redelivered")
		return false
	}
}

// Process syncs one envelope. Errors wrapping ErrPermanent should not be
// retried; anything else is safe to redeliver.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})

	if eventType != enums.EventLoyaltySyncRequested {
		c.logg.Debug(logCtx, "event not handled by loyalty sync consumer")
		return nil
	}

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return fmt.Errorf("%w: parse event id: %v", ErrPermanent, err)
	}

	var payload payloads.LoyaltySyncRequestedEvent
	if err := json.Unmarshal(envelope.Data, &payload); err != nil {
		return fmt.Errorf("%w: decode payload: %v", ErrPermanent, err)
	}
	if payload.CustomerID == uuid.Nil || strings.TrimSpace(payload.OrderNumber) == "" {
		return fmt.Errorf("%w: customer id and order number are required", ErrPermanent)
	}

	already, err := c.manager.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	logCtx = c.logg.WithFields(logCtx, map[string]any{
		"order_number": payload.OrderNumber,
		"customer_id":  payload.CustomerID.String(),
	})

	if err := c.sync(ctx, envelope, payload); err != nil {
		c.logg.Error(logCtx, "loyalty sync failed", err)
		_ = c.manager.Release(ctx, consumerName, eventID)
		if !alpineiq.Retryable(err) {
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		return err
	}

	c.logg.Info(logCtx, "loyalty purchase synced")
	return nil
}

func (c *Consumer) sync(ctx context.Context, envelope outbox.PayloadEnvelope, payload payloads.LoyaltySyncRequestedEvent) error {
	if err := c.client.UpsertContact(ctx, contactFromEvent(payload)); err != nil {
		return err
	}
	return c.client.RecordPurchase(ctx, purchaseFromEvent(envelope, payload))
}

func contactFromEvent(p payloads.LoyaltySyncRequestedEvent) alpineiq.Contact {
	first, last := splitName(p.CustomerName)
	return alpineiq.Contact{
		ExternalID: p.CustomerID.String(),
		FirstName:  first,
		LastName:   last,
		Email:      strings.TrimSpace(p.Email),
		Mobile:     strings.TrimSpace(p.Phone),
		Tier:       p.Tier,
		Points:     p.PointsBalance,
	}
}

func purchaseFromEvent(envelope outbox.PayloadEnvelope, p payloads.LoyaltySyncRequestedEvent) alpineiq.Purchase {
	lines := make([]alpineiq.PurchaseLine, 0, len(p.Lines))
	for _, line := range p.Lines {
		lines = append(lines, alpineiq.PurchaseLine{
			SKU:       line.ProductID.String(),
			Name:      line.Name,
			Category:  line.Category,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
		})
	}
	return alpineiq.Purchase{
		ContactExternalID: p.CustomerID.String(),
		InvoiceID:         p.OrderNumber,
		StoreID:           p.LocationID.String(),
		Total:             p.Total,
		PointsEarned:      p.PointsEarned,
		PurchasedAt:       envelope.OccurredAt.UTC(),
		Lines:             lines,
	}
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
