package enums

import "testing"

func TestParseTierType(t *testing.T) {
	got, err := ParseTierType(" Quantity ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != TierTypeQuantity || !got.UsesQuantityRanges() {
		t.Fatalf("expected quantity tier type, got %q", got)
	}
	if _, err := ParseTierType("volume"); err == nil {
		t.Fatal("expected invalid tier type error")
	}
	if TierTypeWeight.UsesQuantityRanges() {
		t.Fatal("weight breaks are selected explicitly")
	}
}

func TestParsePaymentMethod(t *testing.T) {
	method, err := ParsePaymentMethod("CASH")
	if err != nil || method != PaymentMethodCash {
		t.Fatalf("expected cash, got %q (%v)", method, err)
	}
	if !method.RequiresTender() || PaymentMethodCard.RequiresTender() {
		t.Fatal("only cash requires tender")
	}
	if _, err := ParsePaymentMethod("crypto"); err == nil {
		t.Fatal("expected invalid payment method")
	}
}

func TestPOStatusCanReceive(t *testing.T) {
	if !POStatusDraft.CanReceive() || !POStatusOrdered.CanReceive() {
		t.Fatal("draft and ordered purchase orders can be received")
	}
	if POStatusReceived.CanReceive() || POStatusCancelled.CanReceive() {
		t.Fatal("terminal purchase orders cannot be received")
	}
	if _, err := ParsePOStatus("shipped"); err == nil {
		t.Fatal("expected invalid status")
	}
}

func TestOutboxEnums(t *testing.T) {
	if _, err := ParseOutboxEventType("loyalty_sync_requested"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if OutboxEventType("license_expired").IsValid() {
		t.Fatal("unexpected valid event type")
	}
	if !AggregateOrder.IsValid() {
		t.Fatal("order aggregate should be valid")
	}
	if !OutboxDLQReasonMaxAttempts.IsValid() {
		t.Fatal("max attempts reason should be valid")
	}
}
