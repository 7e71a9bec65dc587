package enums

import "fmt"

type POType string

const POTypeInbound POType = "inbound"

func (t POType) IsValid() bool {
	return t == POTypeInbound
}

type POStatus string

const (
	POStatusDraft     POStatus = "draft"
	POStatusOrdered   POStatus = "ordered"
	POStatusReceived  POStatus = "received"
	POStatusCancelled POStatus = "cancelled"
)

var validPOStatuses = []POStatus{
	POStatusDraft,
	POStatusOrdered,
	POStatusReceived,
	POStatusCancelled,
}

func (s POStatus) IsValid() bool {
	for _, candidate := range validPOStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// CanReceive reports whether stock may still be booked against the order.
func (s POStatus) CanReceive() bool {
	return s == POStatusDraft || s == POStatusOrdered
}

func ParsePOStatus(value string) (POStatus, error) {
	for _, candidate := range validPOStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid purchase order status %q", value)
}
