// Copyright (c) 2025 BVK Chaitanya

// Package bandit selects the active trigger configuration from a fixed
// ladder of configurations with an epsilon-greedy policy over the realized
// trade performance of each configuration.
package bandit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/bvk/spotbot/gobs"
	"github.com/bvk/spotbot/store"
	"github.com/shopspring/decimal"
)

// ErrConfigurationAbsent is returned when there are no configurations to
// select from.
var ErrConfigurationAbsent = errors.New("no trigger configurations found")

// StateKey is the store key for the bandit state.
const StateKey = "bandit"

// fullConfidenceTrades is the number of trades after which the average pnl of
// a configuration is used without discount.
const fullConfidenceTrades = 20

type Options struct {
	MinPctRange [2]float64
	MaxPctRange [2]float64

	NumConfigs int

	ExplorationEps float64

	// TradeQtyFrac is the sizing fraction saved in every bootstrapped
	// configuration.
	TradeQtyFrac float64

	// SwitchEveryTrades and SwitchEvery define the rotation cadence.
	SwitchEveryTrades int
	SwitchEvery       time.Duration
}

func (v *Options) setDefaults() {
	if v.MinPctRange == [2]float64{} {
		v.MinPctRange = [2]float64{0.03, 0.10}
	}
	if v.MaxPctRange == [2]float64{} {
		v.MaxPctRange = [2]float64{0.10, 0.14}
	}
	if v.NumConfigs <= 0 {
		v.NumConfigs = 5
	}
	if v.TradeQtyFrac <= 0 {
		v.TradeQtyFrac = 0.25
	}
	if v.SwitchEveryTrades <= 0 {
		v.SwitchEveryTrades = 8
	}
	if v.SwitchEvery <= 0 {
		v.SwitchEvery = 30 * time.Minute
	}
}

func (v *Options) Check() error {
	if v.ExplorationEps < 0 || v.ExplorationEps > 1 {
		return fmt.Errorf("exploration eps %v must be in [0, 1]: %w", v.ExplorationEps, os.ErrInvalid)
	}
	if v.MinPctRange[0] <= 0 || v.MinPctRange[1] < v.MinPctRange[0] {
		return fmt.Errorf("invalid min pct range %v: %w", v.MinPctRange, os.ErrInvalid)
	}
	if v.MaxPctRange[0] <= 0 || v.MaxPctRange[1] < v.MaxPctRange[0] {
		return fmt.Errorf("invalid max pct range %v: %w", v.MaxPctRange, os.ErrInvalid)
	}
	return nil
}

// Choice is the result of a configuration selection.
type Choice struct {
	Config *gobs.TriggerConfig

	Exploration bool

	Score     decimal.Decimal
	NumTrades int
	AvgPnL    decimal.Decimal

	Reason string
}

type Bandit struct {
	st   *store.Store
	opts Options
	rng  *rand.Rand
}

// New creates a bandit. Random source can be nil, in which case a time seeded
// source is used.
func New(st *store.Store, opts *Options, rng *rand.Rand) (*Bandit, error) {
	b := &Bandit{st: st, rng: rng}
	if opts != nil {
		b.opts = *opts
	}
	b.opts.setDefaults()
	if err := b.opts.Check(); err != nil {
		return nil, err
	}
	if b.rng == nil {
		b.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return b, nil
}

// Ladder returns n configurations linearly spanning the ranges from the most
// conservative to the most aggressive.
func Ladder(minRange, maxRange [2]float64, n int, qtyFrac float64) []*gobs.TriggerConfig {
	steps := max(1, n-1)
	var configs []*gobs.TriggerConfig
	for i := 0; i < n; i++ {
		f := float64(i) / float64(steps)
		configs = append(configs, &gobs.TriggerConfig{
			MinChangePct: minRange[0] + (minRange[1]-minRange[0])*f,
			MaxChangePct: maxRange[0] + (maxRange[1]-maxRange[0])*f,
			TradeQtyFrac: qtyFrac,
		})
	}
	return configs
}

// Bootstrap creates the ladder of configurations if none exist. Returns the
// number of configurations created.
func (b *Bandit) Bootstrap(ctx context.Context) (n int, err error) {
	err = b.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		n = 0
		configs, err := tx.ListConfigs(ctx)
		if err != nil {
			return err
		}
		if len(configs) > 0 {
			return nil
		}
		for _, c := range Ladder(b.opts.MinPctRange, b.opts.MaxPctRange, b.opts.NumConfigs, b.opts.TradeQtyFrac) {
			if _, err := tx.InsertConfig(ctx, c); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("created trigger configuration ladder", "configs", n)
	}
	return n, nil
}

// Score returns the average pnl discounted by the number of trades.
func Score(p *gobs.ConfigPerformance) decimal.Decimal {
	if p == nil || p.NumTrades == 0 {
		return decimal.Zero
	}
	weight := math.Min(float64(p.NumTrades)/fullConfidenceTrades, 1)
	return p.AvgPnL.Mul(decimal.NewFromFloat(weight))
}

// Select picks a configuration with probability eps uniformly at random and
// otherwise the configuration with the maximum score. Ties pick the first
// configuration in the input order.
func Select(configs []*gobs.TriggerConfig, perf map[int64]*gobs.ConfigPerformance, eps float64, rng *rand.Rand) (*Choice, error) {
	if len(configs) == 0 {
		return nil, ErrConfigurationAbsent
	}
	if rng.Float64() < eps {
		c := configs[rng.Intn(len(configs))]
		choice := &Choice{Config: c, Exploration: true, Reason: "exploration"}
		if p := perf[c.ID]; p != nil {
			choice.NumTrades, choice.AvgPnL, choice.Score = p.NumTrades, p.AvgPnL, Score(p)
		}
		return choice, nil
	}

	var best *Choice
	for _, c := range configs {
		choice := &Choice{Config: c}
		if p := perf[c.ID]; p != nil {
			choice.NumTrades, choice.AvgPnL, choice.Score = p.NumTrades, p.AvgPnL, Score(p)
		}
		if best == nil || choice.Score.GreaterThan(best.Score) {
			best = choice
		}
	}
	best.Reason = fmt.Sprintf("exploitation(score=%s, trades=%d, avg=%s)", best.Score.StringFixed(4), best.NumTrades, best.AvgPnL.StringFixed(6))
	return best, nil
}

// Choose selects a configuration using the recorded trade performance.
func (b *Bandit) Choose(ctx context.Context) (choice *Choice, err error) {
	err = b.st.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		configs, err := tx.ListConfigs(ctx)
		if err != nil {
			return err
		}
		perf, err := tx.ConfigPerformance(ctx)
		if err != nil {
			return err
		}
		choice, err = Select(configs, perf, b.opts.ExplorationEps, b.rng)
		return err
	})
	return choice, err
}

// Due returns true if a new configuration must be selected.
func (b *Bandit) Due(state *gobs.BanditState, tradeCount int64, now time.Time) bool {
	if state == nil || state.ActiveConfigID == 0 {
		return true
	}
	if tradeCount-state.TradeCount >= int64(b.opts.SwitchEveryTrades) {
		return true
	}
	return now.Sub(state.SwitchedAt) >= b.opts.SwitchEvery
}

// Rotate returns the active configuration, selecting a new one when the
// cadence is due. Returns true when a new selection was made.
func (b *Bandit) Rotate(ctx context.Context, now time.Time) (*Choice, bool, error) {
	var state *gobs.BanditState
	var active *gobs.TriggerConfig
	var tradeCount int64
	err := b.st.View(ctx, func(ctx context.Context, tx *store.Tx) (err error) {
		if state, err = store.GetValue[gobs.BanditState](ctx, tx, StateKey); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return err
			}
			state = nil
		}
		if tradeCount, err = tx.TradeCount(ctx); err != nil {
			return err
		}
		if state != nil && state.ActiveConfigID != 0 {
			if active, err = tx.GetConfig(ctx, state.ActiveConfigID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if active != nil && !b.Due(state, tradeCount, now) {
		return &Choice{Config: active, Reason: state.Reason}, false, nil
	}

	choice, err := b.Choose(ctx)
	if err != nil {
		return nil, false, err
	}
	next := &gobs.BanditState{
		ActiveConfigID: choice.Config.ID,
		Reason:         choice.Reason,
		SwitchedAt:     now,
		TradeCount:     tradeCount,
	}
	err = b.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		return store.SetValue(ctx, tx, StateKey, next)
	})
	if err != nil {
		return nil, false, err
	}
	slog.Info("selected trigger configuration", "config", choice.Config.ID, "min-change-pct", choice.Config.MinChangePct, "max-change-pct", choice.Config.MaxChangePct, "reason", choice.Reason)
	return choice, true, nil
}

// State returns the saved bandit state or nil if no selection was made yet.
func (b *Bandit) State(ctx context.Context) (state *gobs.BanditState, err error) {
	err = b.st.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		state, err = store.GetValue[gobs.BanditState](ctx, tx, StateKey)
		if errors.Is(err, os.ErrNotExist) {
			state, err = nil, nil
		}
		return err
	})
	return state, err
}
