// Copyright (c) 2025 BVK Chaitanya

package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bvk/spotbot/exchange"
	"github.com/bvk/spotbot/gobs"
	"github.com/bvk/spotbot/kvutil"
	"github.com/shopspring/decimal"
)

// AppendTrade records a realized fill. Trade records are never modified
// after they are appended.
func (tx *Tx) AppendTrade(ctx context.Context, t *gobs.Trade) (int64, error) {
	if t.Side != exchange.BUY && t.Side != exchange.SELL {
		return 0, fmt.Errorf("trade side %q is invalid: %w", t.Side, os.ErrInvalid)
	}
	if !t.Quantity.IsPositive() || !t.Price.IsPositive() {
		return 0, fmt.Errorf("trade price and quantity must be positive: %w", os.ErrInvalid)
	}
	if t.Side == exchange.BUY && !t.PnL.IsZero() {
		return 0, fmt.Errorf("buy trades cannot realize pnl: %w", os.ErrInvalid)
	}
	rw, err := tx.writer()
	if err != nil {
		return 0, err
	}
	id, err := tx.nextID(ctx, "trades")
	if err != nil {
		return 0, err
	}
	v := *t
	v.ID = id
	if v.Time.IsZero() {
		v.Time = time.Now().UTC()
	}
	if err := kvutil.Set(ctx, rw, idKey(TradesKeyspace, id), &v); err != nil {
		return 0, perr("AppendTrade", err)
	}
	t.ID, t.Time = v.ID, v.Time
	return id, nil
}

// ListTrades returns all trades in the order they were recorded.
func (tx *Tx) ListTrades(ctx context.Context) ([]*gobs.Trade, error) {
	var trades []*gobs.Trade
	collect := func(_ context.Context, _ string, t *gobs.Trade) error {
		trades = append(trades, t)
		return nil
	}
	begin, end := kvutil.PathRange(TradesKeyspace)
	if err := kvutil.Ascend(ctx, tx.r, begin, end, collect); err != nil {
		return nil, perr("ListTrades", err)
	}
	return trades, nil
}

// TradeCount returns the number of recorded trades.
func (tx *Tx) TradeCount(ctx context.Context) (int64, error) {
	begin, end := kvutil.PathRange(TradesKeyspace)
	_, last, err := kvutil.Last[gobs.Trade](ctx, tx.r, begin, end)
	if err != nil {
		return 0, perr("TradeCount", err)
	}
	if last == nil {
		return 0, nil
	}
	return last.ID, nil
}

// ConfigPerformance aggregates trade performance grouped by the trigger
// configuration. The average is taken over all trades of a configuration,
// buys included.
func (tx *Tx) ConfigPerformance(ctx context.Context) (map[int64]*gobs.ConfigPerformance, error) {
	trades, err := tx.ListTrades(ctx)
	if err != nil {
		return nil, err
	}
	perfMap := make(map[int64]*gobs.ConfigPerformance)
	for _, t := range trades {
		p, ok := perfMap[t.ConfigID]
		if !ok {
			p = &gobs.ConfigPerformance{ConfigID: t.ConfigID}
			perfMap[t.ConfigID] = p
		}
		p.NumTrades++
		p.TotalPnL = p.TotalPnL.Add(t.PnL)
	}
	for _, p := range perfMap {
		p.AvgPnL = p.TotalPnL.Div(decimal.NewFromInt(int64(p.NumTrades)))
	}
	return perfMap, nil
}

// Stats returns the total and average pnl over all trades and the number of
// trades.
func (tx *Tx) Stats(ctx context.Context) (total, avg decimal.Decimal, n int, err error) {
	trades, err := tx.ListTrades(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, 0, err
	}
	for _, t := range trades {
		total = total.Add(t.PnL)
	}
	if n = len(trades); n > 0 {
		avg = total.Div(decimal.NewFromInt(int64(n)))
	}
	return total, avg, n, nil
}

// LastBalance returns the balance recorded with the most recent trade. Returns
// os.ErrNotExist if no trades are recorded.
func (tx *Tx) LastBalance(ctx context.Context) (decimal.Decimal, error) {
	begin, end := kvutil.PathRange(TradesKeyspace)
	_, last, err := kvutil.Last[gobs.Trade](ctx, tx.r, begin, end)
	if err != nil {
		return decimal.Zero, perr("LastBalance", err)
	}
	if last == nil {
		return decimal.Zero, os.ErrNotExist
	}
	return last.BalanceAfter, nil
}

// UnmatchedBuy returns the most recent buy trade if no sell trade was
// recorded after it. Returns nil when the last buy is already matched or no
// buys exist.
func (tx *Tx) UnmatchedBuy(ctx context.Context) (*gobs.Trade, error) {
	var buy *gobs.Trade
	find := func(_ context.Context, _ string, t *gobs.Trade) error {
		if t.Side == exchange.SELL {
			return kvutil.ErrStop
		}
		buy = t
		return kvutil.ErrStop
	}
	begin, end := kvutil.PathRange(TradesKeyspace)
	if err := kvutil.Descend(ctx, tx.r, begin, end, find); err != nil {
		return nil, perr("UnmatchedBuy", err)
	}
	return buy, nil
}
