// Copyright (c) 2025 BVK Chaitanya

package binance

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bvk/spotbot/binance/internal"
	"github.com/bvk/spotbot/ctxutil"
	"github.com/shopspring/decimal"
)

type tick struct {
	price decimal.Decimal
	at    time.Time
}

type ticker struct {
	symbol string
	last   atomic.Pointer[tick]
}

// streamedPrice returns the latest streamed price of the symbol if it is
// recent enough. A stream is started for the symbol on first use.
func (ex *Exchange) streamedPrice(symbol string) (decimal.Decimal, bool) {
	ex.mu.Lock()
	t, ok := ex.tickerMap[symbol]
	if !ok {
		t = &ticker{symbol: symbol}
		ex.tickerMap[symbol] = t
		ex.cg.Go(func(ctx context.Context) {
			ex.goWatchTicker(ctx, t)
		})
	}
	ex.mu.Unlock()

	last := t.last.Load()
	if last == nil || time.Since(last.at) > ex.opts.MaxPriceAge {
		return decimal.Zero, false
	}
	return last.price, true
}

func (ex *Exchange) goWatchTicker(ctx context.Context, t *ticker) {
	for i := 0; ctx.Err() == nil; i = min(i+1, 5) {
		err := ex.client.WatchMiniTicker(ctx, t.symbol, func(v *internal.MiniTicker) {
			i = 0
			if v.ClosePrice.IsPositive() {
				t.last.Store(&tick{price: v.ClosePrice, at: time.Now()})
			}
		})
		if ctx.Err() != nil {
			return
		}
		slog.Warn("price stream failed (will retry)", "symbol", t.symbol, "err", err)
		ctxutil.Sleep(ctx, time.Second<<i)
	}
}
