// Copyright (c) 2025 BVK Chaitanya

package ledger

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bvk/spotbot/gobs"
	"github.com/shopspring/decimal"
)

// ErrInvalidTransition is returned when a lot operation is not permitted in
// the current lot status.
var ErrInvalidTransition = errors.New("invalid lot status transition")

// NewLot creates an OPEN lot for a buy fill.
func NewLot(buyPrice, qty, target decimal.Decimal, now time.Time) (*gobs.Lot, error) {
	if !buyPrice.IsPositive() || !qty.IsPositive() {
		return nil, fmt.Errorf("lot buy price %s and quantity %s must be positive: %w", buyPrice, qty, os.ErrInvalid)
	}
	if target.IsNegative() {
		return nil, fmt.Errorf("lot target price %s cannot be negative: %w", target, os.ErrInvalid)
	}
	lot := &gobs.Lot{
		AvgBuyPrice: buyPrice,
		Quantity:    qty,
		TargetPrice: target,
		Status:      gobs.OPEN,
		NumBuys:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return lot, nil
}

// Check validates the lot invariants.
func Check(lot *gobs.Lot) error {
	if lot.Quantity.IsNegative() {
		return fmt.Errorf("lot %d has negative quantity %s: %w", lot.ID, lot.Quantity, os.ErrInvalid)
	}
	switch lot.Status {
	case gobs.OPEN:
		if lot.SellClientID != "" {
			return fmt.Errorf("open lot %d cannot have a sell order: %w", lot.ID, os.ErrInvalid)
		}
	case gobs.SELL_PLACED:
		if lot.SellClientID == "" {
			return fmt.Errorf("lot %d with a sell placed must have a sell order: %w", lot.ID, os.ErrInvalid)
		}
	case gobs.CLOSED:
		if !lot.Quantity.IsZero() {
			return fmt.Errorf("closed lot %d has non-zero quantity %s: %w", lot.ID, lot.Quantity, os.ErrInvalid)
		}
	default:
		return fmt.Errorf("lot %d has invalid status %q: %w", lot.ID, lot.Status, os.ErrInvalid)
	}
	return nil
}

// IsAccumulator returns true if more buys can be merged into the lot.
func IsAccumulator(lot *gobs.Lot) bool {
	return lot.Status == gobs.OPEN && lot.SellClientID == ""
}

// merge adds a buy fill into the lot with a volume-weighted average buy
// price. Target price scales with the average buy price.
func merge(lot *gobs.Lot, buyPrice, qty, target decimal.Decimal, now time.Time) {
	total := lot.Quantity.Add(qty)
	avg := lot.AvgBuyPrice.Mul(lot.Quantity).Add(buyPrice.Mul(qty)).Div(total)
	lot.TargetPrice = target.Mul(avg).Div(buyPrice)
	lot.AvgBuyPrice = avg
	lot.Quantity = total
	lot.NumBuys++
	lot.UpdatedAt = now
}

func armSell(lot *gobs.Lot, clientID string, price decimal.Decimal, now time.Time) error {
	if lot.Status != gobs.OPEN {
		return fmt.Errorf("cannot arm sell on lot %d in %s status: %w", lot.ID, lot.Status, ErrInvalidTransition)
	}
	if clientID == "" {
		return fmt.Errorf("sell client order id cannot be empty: %w", os.ErrInvalid)
	}
	lot.Status = gobs.SELL_PLACED
	lot.SellClientID = clientID
	lot.SellPrice = price
	lot.UpdatedAt = now
	return nil
}

func disarmSell(lot *gobs.Lot, now time.Time) error {
	if lot.Status != gobs.SELL_PLACED {
		return fmt.Errorf("cannot disarm sell on lot %d in %s status: %w", lot.ID, lot.Status, ErrInvalidTransition)
	}
	lot.Status = gobs.OPEN
	lot.SellClientID = ""
	lot.SellPrice = decimal.Zero
	lot.UpdatedAt = now
	return nil
}

// reduceLot removes the quantity executed by a sell order that is done
// without a full fill. The lot moves back to OPEN with the remaining quantity
// or to CLOSED when nothing remains.
func reduceLot(lot *gobs.Lot, sold decimal.Decimal, now time.Time) error {
	if lot.Status != gobs.SELL_PLACED {
		return fmt.Errorf("cannot reduce lot %d in %s status: %w", lot.ID, lot.Status, ErrInvalidTransition)
	}
	if !sold.IsPositive() {
		return fmt.Errorf("sold quantity %s must be positive: %w", sold, os.ErrInvalid)
	}
	if !sold.LessThan(lot.Quantity) {
		closeLot(lot, now)
		return nil
	}
	if err := disarmSell(lot, now); err != nil {
		return err
	}
	lot.Quantity = lot.Quantity.Sub(sold)
	return nil
}

// closeLot returns false if the lot is already closed.
func closeLot(lot *gobs.Lot, now time.Time) bool {
	if lot.Status == gobs.CLOSED {
		return false
	}
	lot.Status = gobs.CLOSED
	lot.Quantity = decimal.Zero
	lot.UpdatedAt = now
	return true
}
