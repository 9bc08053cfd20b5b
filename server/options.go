// Copyright (c) 2023 BVK Chaitanya

package server

import (
	"math/rand"
	"time"

	"github.com/bvk/spotbot/exchange"
	"github.com/bvk/spotbot/telegram"
)

type Options struct {
	// Gateway overrides the exchange gateway selected by the configured mode.
	Gateway exchange.Gateway

	// Telegram holds the bot options used when telegram secrets are configured.
	Telegram *telegram.Options

	// PushoverEndpoint overrides the pushover messages url.
	PushoverEndpoint string

	// LowBalanceCheckInterval is the time between low balance checks.
	LowBalanceCheckInterval time.Duration

	// LowBalanceAlertFreeze is the minimum time between two low balance alerts
	// for the same asset.
	LowBalanceAlertFreeze time.Duration

	// Rand is used by the parameter bandit. A time seeded source is used when
	// nil.
	Rand *rand.Rand
}

func (v *Options) setDefaults() {
	if v.LowBalanceCheckInterval <= 0 {
		v.LowBalanceCheckInterval = time.Minute
	}
	if v.LowBalanceAlertFreeze <= 0 {
		v.LowBalanceAlertFreeze = time.Hour
	}
	if v.Rand == nil {
		v.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
}

func (v *Options) Check() error {
	return nil
}
