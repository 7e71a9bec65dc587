package enums

import (
	"fmt"
	"strings"
)

type OrderType string

const OrderTypePOS OrderType = "pos"

type OrderStatus string

const (
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusRefunded  OrderStatus = "refunded"
	OrderStatusVoided    OrderStatus = "voided"
)

func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusRefunded, OrderStatusVoided:
		return true
	default:
		return false
	}
}

type PaymentStatus string

const (
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusPending PaymentStatus = "pending"
)

// PaymentMethod captures the tender used at the register.
type PaymentMethod string

const (
	PaymentMethodCash  PaymentMethod = "cash"
	PaymentMethodCard  PaymentMethod = "card"
	PaymentMethodDebit PaymentMethod = "debit"
	PaymentMethodSplit PaymentMethod = "split"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodCash,
	PaymentMethodCard,
	PaymentMethodDebit,
	PaymentMethodSplit,
}

func (m PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == m {
			return true
		}
	}
	return false
}

// RequiresTender reports whether cash tendered/change given must be recorded.
func (m PaymentMethod) RequiresTender() bool {
	return m == PaymentMethodCash
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	method := PaymentMethod(strings.ToLower(strings.TrimSpace(value)))
	if !method.IsValid() {
		return "", fmt.Errorf("invalid payment method %q", value)
	}
	return method, nil
}
