// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/bvk/spotbot/binance"
	"github.com/bvk/spotbot/config"
	"github.com/bvk/spotbot/exchange"
	"github.com/bvk/spotbot/paper"
	"github.com/shopspring/decimal"
)

// newGateway creates the exchange gateway for the configured mode. PAPER mode
// trades against an in-memory account that follows the live market prices.
func newGateway(ctx context.Context, cfg *config.Config, secrets *config.Secrets) (exchange.Gateway, *binance.Exchange, error) {
	switch cfg.Mode {
	case config.LIVE:
		if secrets == nil || secrets.Binance == nil {
			return nil, nil, fmt.Errorf("binance credentials are required in %s mode: %w", config.LIVE, os.ErrInvalid)
		}
		ex, err := binance.New(secrets.Binance, cfg.BinanceOptions())
		if err != nil {
			return nil, nil, fmt.Errorf("could not create binance client: %w", err)
		}
		return ex, ex, nil

	case config.PAPER:
		ex, err := binance.New(nil, cfg.BinanceOptions())
		if err != nil {
			return nil, nil, fmt.Errorf("could not create binance market data client: %w", err)
		}
		pg, err := newPaperGateway(ctx, cfg, ex)
		if err != nil {
			ex.Close()
			return nil, nil, err
		}
		return pg, ex, nil
	}
	return nil, nil, fmt.Errorf("unsupported mode %q: %w", cfg.Mode, os.ErrInvalid)
}

func newPaperGateway(ctx context.Context, cfg *config.Config, market exchange.Gateway) (*paper.Gateway, error) {
	c, err := market.GetSymbolConstraints(ctx, cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("could not fetch symbol constraints for %s: %w", cfg.Symbol, err)
	}
	price, err := market.GetPrice(ctx, cfg.Symbol)
	if err != nil {
		return nil, fmt.Errorf("could not fetch price for %s: %w", cfg.Symbol, err)
	}
	fees := &exchange.FeeRates{
		Maker: decimal.NewFromFloat(cfg.Paper.MakerFee),
		Taker: decimal.NewFromFloat(cfg.Paper.TakerFee),
	}
	pg := paper.New(c, fees, price)
	for asset, amount := range cfg.PaperBalances() {
		pg.SetBalance(asset, amount)
	}
	pg.SetPriceSource(market)
	slog.Info("using paper trading account", "symbol", cfg.Symbol, "price", price, "balances", cfg.PaperBalances())
	return pg, nil
}
