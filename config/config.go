// Copyright (c) 2025 BVK Chaitanya

// Package config loads the bot configuration and secrets files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bvk/spotbot/bandit"
	"github.com/bvk/spotbot/binance"
	"github.com/bvk/spotbot/guard"
	"github.com/bvk/spotbot/trader"
	"github.com/shopspring/decimal"
)

const (
	LIVE  = "LIVE"
	PAPER = "PAPER"
)

type BanditConfig struct {
	MinPctRange [2]float64 `json:"min_pct_range"`
	MaxPctRange [2]float64 `json:"max_pct_range"`

	NumConfigs     int     `json:"num_configs"`
	ExplorationEps float64 `json:"exploration_eps"`

	SwitchEveryTrades  int `json:"switch_every_trades"`
	SwitchEveryMinutes int `json:"switch_every_minutes"`
}

type GridConfig struct {
	RearmThresholdPct float64 `json:"rearm_threshold_pct"`

	// MaxSpacingPct enables volatility based buy spacing when positive.
	MaxSpacingPct float64 `json:"max_spacing_pct"`
	VolMultiplier float64 `json:"vol_multiplier"`
}

type PaperConfig struct {
	// Balances holds the initial free balances of the paper account.
	Balances map[string]float64 `json:"balances"`

	MakerFee float64 `json:"maker_fee"`
	TakerFee float64 `json:"taker_fee"`
}

type Config struct {
	Symbol string `json:"symbol"`

	// Mode is either LIVE or PAPER.
	Mode       string `json:"mode"`
	UseTestnet bool   `json:"use_testnet"`

	PollIntervalSeconds int `json:"poll_interval_seconds"`

	TargetBalance float64 `json:"target_balance"`

	CancelOpenOrdersOnStart bool `json:"cancel_open_orders_on_start"`
	ResumeOnStart           bool `json:"resume_on_start"`

	BaseRiskFrac float64 `json:"base_risk_frac"`

	MinProfitPctNet float64 `json:"min_profit_pct_net"`

	// TakeProfitPct overrides MinProfitPctNet when set.
	TakeProfitPct *float64 `json:"take_profit_pct,omitempty"`

	ExtraFeeSafetyBps int `json:"extra_fee_safety_bps"`

	// StreamPrices uses the websocket ticker stream for prices.
	StreamPrices bool `json:"stream_prices"`

	// ClientIDPrefix is prepended to the client order ids.
	ClientIDPrefix string `json:"client_id_prefix"`

	// LowBalanceLimits maps an asset to the free balance at or below which an
	// alert is sent.
	LowBalanceLimits map[string]float64 `json:"low_balance_limits,omitempty"`

	Bandit BanditConfig `json:"bandit"`
	Grid   GridConfig   `json:"grid"`
	Paper  PaperConfig  `json:"paper"`
}

// Default returns the configuration used for the fields that are missing in
// the configuration file.
func Default() *Config {
	return &Config{
		Symbol:                  "BTCUSDT",
		Mode:                    LIVE,
		UseTestnet:              true,
		PollIntervalSeconds:     10,
		TargetBalance:           1_000_000,
		CancelOpenOrdersOnStart: true,
		ResumeOnStart:           true,
		BaseRiskFrac:            0.25,
		MinProfitPctNet:         0.10,
		ExtraFeeSafetyBps:       10,
		ClientIDPrefix:          "sb-",
		Bandit: BanditConfig{
			MinPctRange:        [2]float64{0.03, 0.10},
			MaxPctRange:        [2]float64{0.10, 0.14},
			NumConfigs:         5,
			ExplorationEps:     0.25,
			SwitchEveryTrades:  8,
			SwitchEveryMinutes: 30,
		},
		Grid: GridConfig{
			RearmThresholdPct: 0.015,
			MaxSpacingPct:     0.02,
			VolMultiplier:     2,
		},
		Paper: PaperConfig{
			Balances: map[string]float64{"USDT": 1000},
			MakerFee: 0.001,
			TakerFee: 0.001,
		},
	}
}

// Load reads the configuration file. Fields missing from the file take their
// default values.
func Load(fpath string) (*Config, error) {
	data, err := os.ReadFile(fpath)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("could not parse config file %q: %w", fpath, err)
	}
	c.Symbol = strings.ToUpper(c.Symbol)
	c.Mode = strings.ToUpper(c.Mode)
	if err := c.Check(); err != nil {
		return nil, fmt.Errorf("invalid config file %q: %w", fpath, err)
	}
	return c, nil
}

func (c *Config) Check() error {
	if c.Symbol == "" {
		return fmt.Errorf("symbol cannot be empty: %w", os.ErrInvalid)
	}
	if c.Mode != LIVE && c.Mode != PAPER {
		return fmt.Errorf("mode %q must be %s or %s: %w", c.Mode, LIVE, PAPER, os.ErrInvalid)
	}
	if c.ClientIDPrefix == "" || len(c.ClientIDPrefix) > 8 {
		return fmt.Errorf("client id prefix %q must have 1 to 8 characters: %w", c.ClientIDPrefix, os.ErrInvalid)
	}
	if c.PollIntervalSeconds < 0 || c.TargetBalance < 0 || c.ExtraFeeSafetyBps < 0 {
		return fmt.Errorf("poll interval, target balance and fee safety cannot be negative: %w", os.ErrInvalid)
	}
	if c.BaseRiskFrac <= 0 || c.BaseRiskFrac > 1 {
		return fmt.Errorf("base risk fraction %v must be in (0, 1]: %w", c.BaseRiskFrac, os.ErrInvalid)
	}
	if p := c.ProfitPct(); p <= 0 || p >= 1 {
		return fmt.Errorf("profit percentage %v must be in (0, 1): %w", p, os.ErrInvalid)
	}
	if c.Grid.RearmThresholdPct < 0 || c.Grid.MaxSpacingPct < 0 || c.Grid.VolMultiplier < 0 {
		return fmt.Errorf("grid parameters cannot be negative: %w", os.ErrInvalid)
	}
	if err := c.BanditOptions().Check(); err != nil {
		return err
	}
	if c.Mode == PAPER {
		for asset, v := range c.Paper.Balances {
			if v < 0 {
				return fmt.Errorf("paper balance of %s cannot be negative: %w", asset, os.ErrInvalid)
			}
		}
		if c.Paper.MakerFee < 0 || c.Paper.TakerFee < 0 {
			return fmt.Errorf("paper fees cannot be negative: %w", os.ErrInvalid)
		}
	}
	return nil
}

// ProfitPct returns the sell target margin: take_profit_pct when it is set,
// min_profit_pct_net otherwise.
func (c *Config) ProfitPct() float64 {
	if c.TakeProfitPct != nil && *c.TakeProfitPct > 0 {
		return *c.TakeProfitPct
	}
	if c.MinProfitPctNet > 0 {
		return c.MinProfitPctNet
	}
	return 0.10
}

func (c *Config) PollInterval() time.Duration {
	return max(time.Duration(c.PollIntervalSeconds)*time.Second, trader.MinPollInterval)
}

func (c *Config) TraderOptions() *trader.Options {
	return &trader.Options{
		Symbol:                  c.Symbol,
		PollInterval:            c.PollInterval(),
		TargetBalance:           c.TargetBalance,
		ProfitPct:               c.ProfitPct(),
		SafetyBps:               c.ExtraFeeSafetyBps,
		RearmThresholdPct:       c.Grid.RearmThresholdPct,
		MaxSpacingPct:           c.Grid.MaxSpacingPct,
		VolMultiplier:           c.Grid.VolMultiplier,
		CancelOpenOrdersOnStart: c.CancelOpenOrdersOnStart,
		ResumeOnStart:           c.ResumeOnStart,
	}
}

func (c *Config) BanditOptions() *bandit.Options {
	return &bandit.Options{
		MinPctRange:       c.Bandit.MinPctRange,
		MaxPctRange:       c.Bandit.MaxPctRange,
		NumConfigs:        c.Bandit.NumConfigs,
		ExplorationEps:    c.Bandit.ExplorationEps,
		TradeQtyFrac:      c.BaseRiskFrac,
		SwitchEveryTrades: c.Bandit.SwitchEveryTrades,
		SwitchEvery:       time.Duration(c.Bandit.SwitchEveryMinutes) * time.Minute,
	}
}

func (c *Config) GuardOptions() *guard.Options {
	return &guard.Options{ClientIDPrefix: c.ClientIDPrefix}
}

func (c *Config) BinanceOptions() *binance.Options {
	return &binance.Options{
		Testnet:      c.UseTestnet,
		StreamPrices: c.StreamPrices,
	}
}

// PaperBalances returns the initial paper account balances.
func (c *Config) PaperBalances() map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal)
	for asset, v := range c.Paper.Balances {
		m[strings.ToUpper(asset)] = decimal.NewFromFloat(v)
	}
	return m
}

// LowBalanceLimitsMap returns the low balance limits keyed by the upper case
// asset names.
func (c *Config) LowBalanceLimitsMap() map[string]decimal.Decimal {
	m := make(map[string]decimal.Decimal)
	for asset, v := range c.LowBalanceLimits {
		m[strings.ToUpper(asset)] = decimal.NewFromFloat(v)
	}
	return m
}
