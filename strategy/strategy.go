// Copyright (c) 2025 BVK Chaitanya

// Package strategy implements the price-trigger state machine. The strategy
// is flat (NONE) or holding a position (LONG) and turns every observed price
// into a decision relative to a floating reference price.
package strategy

import (
	"fmt"
	"math"
	"os"

	"github.com/bvk/spotbot/gobs"
	"github.com/shopspring/decimal"
)

const (
	NONE = "NONE"
	LONG = "LONG"
)

type Intent string

const (
	HOLD      Intent = "HOLD"
	WANT_BUY  Intent = "WANT_BUY"
	WANT_SELL Intent = "WANT_SELL"
	HOLD_LONG Intent = "HOLD_LONG"
)

// Decision is the result of evaluating a price.
type Decision struct {
	Intent Intent

	// BuyPrice is set for WANT_BUY decisions.
	BuyPrice decimal.Decimal

	// SellPrice is the required sell target; set for WANT_SELL and HOLD_LONG
	// decisions.
	SellPrice decimal.Decimal

	// Drop is the fractional move of the price below the reference price.
	Drop decimal.Decimal

	// Spacing is the effective minimum change percentage used for the buy
	// trigger.
	Spacing float64

	Reason string
}

type Position struct {
	Side       string
	EntryPrice decimal.Decimal
	Quantity   decimal.Decimal
}

type Options struct {
	MinChangePct float64
	MaxChangePct float64

	// RearmThresholdPct moves the reference price up to the current price
	// when the price rises above reference by this fraction.
	RearmThresholdPct float64

	// ProfitPct is the required net margin of the sell target.
	ProfitPct float64

	// FeeRate is the per-side fee rate and SafetyBps is the extra basis
	// points added on both legs.
	FeeRate   decimal.Decimal
	SafetyBps int

	TickSize decimal.Decimal

	// MaxSpacingPct enables the volatility based buy spacing when positive.
	// Effective spacing is max(MinChangePct, min(MaxSpacingPct, vol *
	// VolMultiplier)).
	MaxSpacingPct float64
	VolMultiplier float64
}

func (v *Options) setDefaults() {
	if v.VolMultiplier <= 0 {
		v.VolMultiplier = 2
	}
}

// Check validates the options.
func (v *Options) Check() error {
	if v.MinChangePct <= 0 || v.MinChangePct >= 1 {
		return fmt.Errorf("min change pct %v must be in (0, 1): %w", v.MinChangePct, os.ErrInvalid)
	}
	if v.MaxChangePct <= 0 {
		return fmt.Errorf("max change pct %v must be positive: %w", v.MaxChangePct, os.ErrInvalid)
	}
	if v.RearmThresholdPct < 0 || v.ProfitPct < 0 || v.SafetyBps < 0 || v.MaxSpacingPct < 0 {
		return fmt.Errorf("rearm threshold, profit, safety and max spacing cannot be negative: %w", os.ErrInvalid)
	}
	if v.FeeRate.IsNegative() || !v.TickSize.IsPositive() {
		return fmt.Errorf("fee rate %s or tick size %s is invalid: %w", v.FeeRate, v.TickSize, os.ErrInvalid)
	}
	if v.FeeRate.Add(v.safety()).GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("fee rate and safety buffer must be below 100%%: %w", os.ErrInvalid)
	}
	return nil
}

func (v *Options) safety() decimal.Decimal {
	return decimal.New(int64(v.SafetyBps), -4)
}

type Strategy struct {
	opts Options

	position Position

	ref     decimal.Decimal
	balance decimal.Decimal

	vol       float64
	lastPrice decimal.Decimal
}

// New creates a flat strategy with the initial balance.
func New(balance decimal.Decimal, opts *Options) (*Strategy, error) {
	s := &Strategy{
		opts:     *opts,
		position: Position{Side: NONE},
		balance:  balance,
	}
	s.opts.setDefaults()
	if err := s.opts.Check(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Strategy) Position() Position {
	return s.position
}

func (s *Strategy) ReferencePrice() decimal.Decimal {
	return s.ref
}

func (s *Strategy) Balance() decimal.Decimal {
	return s.balance
}

func (s *Strategy) Options() Options {
	return s.opts
}

// SetConfig applies the trigger thresholds of a configuration.
func (s *Strategy) SetConfig(c *gobs.TriggerConfig) error {
	opts := s.opts
	opts.MinChangePct, opts.MaxChangePct = c.MinChangePct, c.MaxChangePct
	if err := opts.Check(); err != nil {
		return err
	}
	s.opts = opts
	return nil
}

// SetFeeRate updates the per-side fee rate used for sell targets.
func (s *Strategy) SetFeeRate(rate decimal.Decimal) error {
	opts := s.opts
	opts.FeeRate = rate
	if err := opts.Check(); err != nil {
		return err
	}
	s.opts = opts
	return nil
}

// observe updates the reference price and the volatility estimate with a new
// price.
func (s *Strategy) observe(price decimal.Decimal) {
	if s.ref.IsZero() {
		s.ref = price
	}
	if s.lastPrice.IsPositive() {
		ret, _ := price.Sub(s.lastPrice).Div(s.lastPrice).Abs().Float64()
		s.vol = 0.9*s.vol + 0.1*ret
	}
	s.lastPrice = price

	rearm := s.ref.Mul(decimal.NewFromFloat(1 + s.opts.RearmThresholdPct))
	if price.GreaterThan(rearm) {
		s.ref = price
	}
}

// Spacing returns the effective minimum change percentage for the buy
// trigger.
func (s *Strategy) Spacing() float64 {
	if s.opts.MaxSpacingPct <= 0 {
		return s.opts.MinChangePct
	}
	return math.Max(s.opts.MinChangePct, math.Min(s.opts.MaxSpacingPct, s.vol*s.opts.VolMultiplier))
}

// Evaluate consumes a price observation and returns the decision for the
// current state.
func (s *Strategy) Evaluate(price decimal.Decimal) *Decision {
	if !price.IsPositive() {
		return &Decision{Intent: HOLD, Reason: "invalid price"}
	}
	s.observe(price)

	if s.position.Side == LONG {
		target := s.SellTarget(s.position.EntryPrice)
		rise := price.Sub(s.position.EntryPrice).Div(s.position.EntryPrice)
		if rise.GreaterThanOrEqual(decimal.NewFromFloat(s.opts.MaxChangePct)) {
			return &Decision{
				Intent:    WANT_SELL,
				SellPrice: target,
				Reason:    fmt.Sprintf("rise %s%% from entry %s", rise.Shift(2).StringFixed(2), s.position.EntryPrice),
			}
		}
		return &Decision{
			Intent:    HOLD_LONG,
			SellPrice: target,
			Reason:    fmt.Sprintf("standing sell target for net profit >= %.2f%%", s.opts.ProfitPct*100),
		}
	}
	return s.EvaluateBuy(price)
}

// EvaluateBuy applies the buy trigger regardless of the position. Price must
// have been observed through Evaluate.
func (s *Strategy) EvaluateBuy(price decimal.Decimal) *Decision {
	if !s.ref.IsPositive() || !price.IsPositive() {
		return &Decision{Intent: HOLD, Reason: "no reference price"}
	}
	spacing := s.Spacing()
	drop := s.ref.Sub(price).Div(s.ref)
	if drop.GreaterThanOrEqual(decimal.NewFromFloat(spacing)) {
		return &Decision{
			Intent:   WANT_BUY,
			BuyPrice: s.ref.Mul(decimal.NewFromFloat(1 - spacing)),
			Drop:     drop,
			Spacing:  spacing,
			Reason:   fmt.Sprintf("drop %s%% from reference %s", drop.Shift(2).StringFixed(2), s.ref),
		}
	}
	return &Decision{Intent: HOLD, Drop: drop, Spacing: spacing, Reason: "no buy trigger"}
}

// OnBuyExecuted records a buy fill. The reference price resets to the fill
// price.
func (s *Strategy) OnBuyExecuted(price, qty, fee decimal.Decimal) {
	s.position = Position{Side: LONG, EntryPrice: price, Quantity: qty}
	s.balance = s.balance.Sub(price.Mul(qty)).Sub(fee)
	s.ref = price
}

// OnSellExecuted records a sell fill and returns the realized pnl and the new
// balance. The strategy becomes flat and the reference price resets to the
// fill price.
func (s *Strategy) OnSellExecuted(price, qty, fee decimal.Decimal) (pnl, balance decimal.Decimal) {
	gross := price.Mul(qty)
	pnl = gross.Sub(s.position.EntryPrice.Mul(qty)).Sub(fee)
	s.balance = s.balance.Add(gross).Sub(fee)
	s.position = Position{Side: NONE}
	s.ref = price
	return pnl, s.balance
}

// Resume puts the strategy into LONG position without changing the balance.
// Used when the position is restored from the lots.
func (s *Strategy) Resume(entry, qty decimal.Decimal) {
	if !qty.IsPositive() {
		s.position = Position{Side: NONE}
		return
	}
	s.position = Position{Side: LONG, EntryPrice: entry, Quantity: qty}
}

// State returns the resumable state of the strategy.
func (s *Strategy) State() *gobs.StrategyState {
	return &gobs.StrategyState{
		Side:           s.position.Side,
		EntryPrice:     s.position.EntryPrice,
		Quantity:       s.position.Quantity,
		ReferencePrice: s.ref,
		Balance:        s.balance,
		Volatility:     s.vol,
		LastPrice:      s.lastPrice,
	}
}

// Restore replaces the strategy state with a saved state.
func (s *Strategy) Restore(st *gobs.StrategyState) error {
	switch st.Side {
	case NONE:
		s.position = Position{Side: NONE}
	case LONG:
		if !st.EntryPrice.IsPositive() || !st.Quantity.IsPositive() {
			return fmt.Errorf("long position must have positive entry price and quantity: %w", os.ErrInvalid)
		}
		s.position = Position{Side: LONG, EntryPrice: st.EntryPrice, Quantity: st.Quantity}
	default:
		return fmt.Errorf("invalid position side %q: %w", st.Side, os.ErrInvalid)
	}
	s.ref = st.ReferencePrice
	s.balance = st.Balance
	s.vol = st.Volatility
	s.lastPrice = st.LastPrice
	return nil
}
