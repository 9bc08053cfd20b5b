// Copyright (c) 2023 BVK Chaitanya

package exchange

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	NEW              OrderStatus = "NEW"
	PARTIALLY_FILLED OrderStatus = "PARTIALLY_FILLED"
	FILLED           OrderStatus = "FILLED"
	CANCELED         OrderStatus = "CANCELED"
	REJECTED         OrderStatus = "REJECTED"
	EXPIRED          OrderStatus = "EXPIRED"
	UNKNOWN          OrderStatus = "UNKNOWN"
)

// ParseOrderStatus maps exchange specific status strings to one of the known
// order status values. Unrecognized values are reported as UNKNOWN.
func ParseOrderStatus(s string) OrderStatus {
	switch v := OrderStatus(s); v {
	case NEW, PARTIALLY_FILLED, FILLED, CANCELED, REJECTED, EXPIRED:
		return v
	case "CANCELLED", "PENDING_CANCEL":
		return CANCELED
	}
	return UNKNOWN
}

// IsDone returns true if the order cannot make any more progress.
func (s OrderStatus) IsDone() bool {
	switch s {
	case FILLED, CANCELED, REJECTED, EXPIRED:
		return true
	}
	return false
}

type Order struct {
	Symbol string

	OrderID       string
	ClientOrderID string

	Side string
	Type string

	Price decimal.Decimal
	Size  decimal.Decimal

	FilledSize  decimal.Decimal
	FilledValue decimal.Decimal

	// Fee is the commission paid in the quote asset. It is zero when the
	// exchange charged the commission in some other asset.
	Fee decimal.Decimal

	Status OrderStatus

	CreateTime time.Time
	UpdateTime time.Time
}

// FilledPrice returns the average execution price of the order.
func (v *Order) FilledPrice() decimal.Decimal {
	if v.FilledSize.IsZero() {
		return decimal.Zero
	}
	return v.FilledValue.Div(v.FilledSize)
}

func (v *Order) String() string {
	return fmt.Sprintf("{ID: %s ClientID %s Side %s Price %s Size %s Filled %s Fee %s Status %s}",
		v.OrderID, v.ClientOrderID, v.Side, v.Price, v.Size, v.FilledSize, v.Fee.StringFixed(8), v.Status)
}
