// Copyright (c) 2025 BVK Chaitanya

package guard

import (
	"fmt"

	"github.com/bvk/spotbot/exchange"
	"github.com/shopspring/decimal"
)

// Floor rounds the value down to a multiple of step. Values that are already
// multiples of step are returned unchanged.
func Floor(v, step decimal.Decimal) decimal.Decimal {
	if !step.IsPositive() {
		return v
	}
	return v.Div(step).Floor().Mul(step)
}

// Quantize floors the quantity to the step size and the price to the tick
// size of the symbol.
func Quantize(c *exchange.SymbolConstraints, qty, price decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	return Floor(qty, c.StepSize), Floor(price, c.TickSize)
}

// Size quantizes the order and checks it against the minimum quantity and the
// minimum notional. Returns ErrSizingRejected if the order is too small.
func Size(c *exchange.SymbolConstraints, qty, price decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	q, p := Quantize(c, qty, price)
	if !q.IsPositive() || q.LessThan(c.MinQty) {
		return q, p, fmt.Errorf("quantity %s is below minimum %s: %w", q, c.MinQty, ErrSizingRejected)
	}
	if notional := q.Mul(p); notional.LessThan(c.MinNotional) {
		return q, p, fmt.Errorf("notional %s is below minimum %s: %w", notional, c.MinNotional, ErrSizingRejected)
	}
	return q, p, nil
}

// Sellable returns true if the quantity can be sold at the price under the
// symbol constraints.
func Sellable(c *exchange.SymbolConstraints, qty, price decimal.Decimal) bool {
	_, _, err := Size(c, qty, price)
	return err == nil
}
