// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/bvk/spotbot/ctxutil"
	"github.com/shopspring/decimal"
)

// watchForLowBalance checks the free balances reported by the trader status
// and alerts when an asset is at or below its configured limit.
func (s *Server) watchForLowBalance(ctx context.Context) {
	limits := s.cfg.LowBalanceLimitsMap()
	if len(limits) == 0 {
		return
	}

	for context.Cause(ctx) == nil {
		ctxutil.Sleep(ctx, s.opts.LowBalanceCheckInterval)
		if context.Cause(ctx) != nil {
			break
		}

		status := s.trader.Status()
		if status == nil {
			continue
		}
		c, err := s.guard.Constraints(ctx)
		if err != nil {
			slog.Warn("could not fetch symbol constraints for low balance check", "err", err)
			continue
		}
		s.alertOnLowBalance(ctx, status.Time, limits, c.BaseAsset, status.FreeBase)
		s.alertOnLowBalance(ctx, status.Time, limits, c.QuoteAsset, status.FreeQuote)
	}
}

func (s *Server) alertOnLowBalance(ctx context.Context, now time.Time, limits map[string]decimal.Decimal, asset string, amount decimal.Decimal) bool {
	ccy := strings.ToUpper(asset)
	limit, ok := limits[ccy]
	if !ok {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if deadline, ok := s.alertFreezeDeadlineMap[ccy]; ok {
		if now.Before(deadline) {
			return false
		}
		delete(s.alertFreezeDeadlineMap, ccy)
	}
	if amount.GreaterThan(limit) {
		return false
	}

	s.SendMessage(ctx, now, "Available balance %s for %q in exchange %s is below the limit %s.",
		amount.StringFixed(5), ccy, s.gateway.ExchangeName(), limit)
	s.alertFreezeDeadlineMap[ccy] = now.Add(s.opts.LowBalanceAlertFreeze)
	return true
}
