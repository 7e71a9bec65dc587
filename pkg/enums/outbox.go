package enums

import (
	"fmt"
	"slices"
)

// OutboxAggregateType names the entity an outbox row is about.
type OutboxAggregateType string

const (
	AggregateOrder           OutboxAggregateType = "order"
	AggregatePurchaseOrder   OutboxAggregateType = "purchase_order"
	AggregateCustomerLoyalty OutboxAggregateType = "customer_loyalty"
	AggregateProduct         OutboxAggregateType = "product"
)

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains([]OutboxAggregateType{
		AggregateOrder, AggregatePurchaseOrder, AggregateCustomerLoyalty, AggregateProduct,
	}, a)
}

// OutboxEventType is the event_type column of outbox and outbox_dlq rows.
type OutboxEventType string

const (
	EventPOSSaleCompleted        OutboxEventType = "pos_sale_completed"
	EventLoyaltySyncRequested    OutboxEventType = "loyalty_sync_requested"
	EventPurchaseOrderCreated    OutboxEventType = "purchase_order_created"
	EventPurchaseOrderReceived   OutboxEventType = "purchase_order_received"
	EventPricingBlueprintApplied OutboxEventType = "pricing_blueprint_applied"
)

var outboxEventTypes = []OutboxEventType{
	EventPOSSaleCompleted,
	EventLoyaltySyncRequested,
	EventPurchaseOrderCreated,
	EventPurchaseOrderReceived,
	EventPricingBlueprintApplied,
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(outboxEventTypes, e)
}

// ParseOutboxEventType converts raw input, such as a Pub/Sub attribute, into
// an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	e := OutboxEventType(value)
	if !e.IsValid() {
		return "", fmt.Errorf("invalid event type %q", value)
	}
	return e, nil
}

// OutboxDLQErrorReason records why the dispatcher gave up on a row.
type OutboxDLQErrorReason string

const (
	// OutboxDLQReasonMaxAttempts: transient publish failures exhausted the retry budget.
	OutboxDLQReasonMaxAttempts OutboxDLQErrorReason = "max_attempts"
	// OutboxDLQReasonNonRetryable: the row could not be resolved or routed.
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
