// Copyright (c) 2025 BVK Chaitanya

package trader

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
)

type Options struct {
	Symbol string

	// PollInterval is the sleep time between ticks. Values below
	// MinPollInterval are raised to it.
	PollInterval time.Duration

	// TargetBalance is the portfolio value used for the trades-to-target
	// estimate at startup.
	TargetBalance float64

	// ProfitPct is the required net margin of the lot sell targets.
	ProfitPct float64

	// SafetyBps is the extra fee buffer in basis points added on both legs.
	SafetyBps int

	RearmThresholdPct float64
	MaxSpacingPct     float64
	VolMultiplier     float64

	// RefreshInterval is the time between reloads of the symbol constraints
	// and the fee rates.
	RefreshInterval time.Duration

	CancelOpenOrdersOnStart bool
	ResumeOnStart           bool

	// InitialBalance is the strategy balance used when no saved state exists.
	// Free quote balance is used when it is zero.
	InitialBalance decimal.Decimal
}

const MinPollInterval = 5 * time.Second

const DefaultRefreshInterval = time.Hour

func (v *Options) setDefaults() {
	if v.PollInterval < MinPollInterval {
		v.PollInterval = MinPollInterval
	}
	if v.RefreshInterval <= 0 {
		v.RefreshInterval = DefaultRefreshInterval
	}
	if v.ProfitPct <= 0 {
		v.ProfitPct = 0.10
	}
}

func (v *Options) Check() error {
	if v.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty: %w", os.ErrInvalid)
	}
	if v.SafetyBps < 0 || v.RearmThresholdPct < 0 || v.MaxSpacingPct < 0 {
		return fmt.Errorf("safety bps, rearm threshold and max spacing cannot be negative: %w", os.ErrInvalid)
	}
	return nil
}
