// Copyright (c) 2025 BVK Chaitanya

package trader

import (
	"fmt"
	"time"

	"github.com/bvk/spotbot/strategy"
	"github.com/shopspring/decimal"
)

// Status is a snapshot of the control loop after a tick.
type Status struct {
	Time time.Time

	Symbol string

	Price          decimal.Decimal
	ReferencePrice decimal.Decimal

	Intent strategy.Intent
	Reason string

	Drop    decimal.Decimal
	Spacing float64

	Position strategy.Position
	Balance  decimal.Decimal

	FreeBase  decimal.Decimal
	FreeQuote decimal.Decimal

	InventoryRatio float64
	RiskFrac       float64

	ActiveLots int

	ConfigID     int64
	ConfigReason string
}

func (s *Status) String() string {
	return fmt.Sprintf("ref=%s price=%s drop=%s%% inv=%.1f%% lots=%d spacing=%.2f%% risk=%.1f%% intent=%s config=%d",
		s.ReferencePrice.StringFixed(2), s.Price.StringFixed(2), s.Drop.Shift(2).StringFixed(2),
		s.InventoryRatio*100, s.ActiveLots, s.Spacing*100, s.RiskFrac*100, s.Intent, s.ConfigID)
}
