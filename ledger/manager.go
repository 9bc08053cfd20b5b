// Copyright (c) 2025 BVK Chaitanya

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bvk/spotbot/exchange"
	"github.com/bvk/spotbot/gobs"
	"github.com/bvk/spotbot/guard"
	"github.com/bvk/spotbot/metrics"
	"github.com/bvk/spotbot/store"
	"github.com/shopspring/decimal"
)

// SellFilledFunc is invoked in the same transaction that closes or reduces a
// lot after its sell order is executed fully or partially. Lot holds the
// values from before the update; order.FilledSize is the executed quantity.
type SellFilledFunc func(ctx context.Context, tx *store.Tx, lot *gobs.Lot, order *exchange.Order) error

// Manager keeps a sell order armed for every active lot.
type Manager struct {
	ledger *Ledger
	guard  *guard.Guard

	onSellFilled SellFilledFunc
}

// NewManager creates a lot manager. The callback, if not nil, runs when a
// sell order of a lot is executed.
func NewManager(l *Ledger, g *guard.Guard, onSellFilled SellFilledFunc) *Manager {
	return &Manager{ledger: l, guard: g, onSellFilled: onSellFilled}
}

// ManageLots re-arms sells for the active lots and closes the lots whose
// sells are filled. Lots whose sells are done with a partial fill are reduced
// by the executed quantity before they are re-armed. Lots below the symbol minimums are skipped so that they
// can accumulate more quantity.
func (m *Manager) ManageLots(ctx context.Context) error {
	c, err := m.guard.Constraints(ctx)
	if err != nil {
		return err
	}
	lots, err := m.ledger.ListActiveLots(ctx)
	if err != nil {
		return err
	}

	var errs []error
	for _, lot := range lots {
		if err := m.manageLot(ctx, c, lot); err != nil {
			slog.Error("could not manage lot", "lot", lot.ID, "err", err)
			errs = append(errs, fmt.Errorf("lot %d: %w", lot.ID, err))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) manageLot(ctx context.Context, c *exchange.SymbolConstraints, lot *gobs.Lot) error {
	qty, price := guard.Quantize(c, lot.Quantity, lot.TargetPrice)
	if !guard.Sellable(c, qty, price) {
		slog.Debug("lot is below symbol minimums", "lot", lot.ID, "qty", qty, "price", price)
		return nil
	}

	if lot.Status == gobs.OPEN || lot.SellClientID == "" {
		return m.arm(ctx, lot, qty, price)
	}

	status := exchange.UNKNOWN
	order, err := m.guard.Order(ctx, lot.SellClientID)
	if err != nil {
		if !errors.Is(err, exchange.ErrOrderNotFound) {
			return err
		}
	} else {
		status = order.Status
	}

	switch status {
	case exchange.NEW, exchange.PARTIALLY_FILLED:
		return nil
	case exchange.FILLED:
		return m.close(ctx, lot, order)
	}
	if order != nil && order.FilledSize.IsPositive() {
		reduced, err := m.settlePartial(ctx, lot, order)
		if err != nil {
			return err
		}
		if reduced.Status != gobs.OPEN {
			return nil
		}
		lot = reduced
		qty, price = guard.Quantize(c, lot.Quantity, lot.TargetPrice)
		if !guard.Sellable(c, qty, price) {
			slog.Info("remaining lot is below symbol minimums", "lot", lot.ID, "qty", lot.Quantity, "price", lot.TargetPrice)
			return nil
		}
	}
	slog.Info("sell order is not active; re-arming", "lot", lot.ID, "client-order-id", lot.SellClientID, "status", status)
	return m.arm(ctx, lot, qty, price)
}

// settlePartial records the executed part of a sell order that is done
// without a full fill and removes it from the lot in the same transaction.
func (m *Manager) settlePartial(ctx context.Context, lot *gobs.Lot, order *exchange.Order) (*gobs.Lot, error) {
	var reduced *gobs.Lot
	err := m.ledger.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		before, err := m.ledger.getLot(ctx, tx, lot.ID)
		if err != nil {
			return err
		}
		if before.Status != gobs.SELL_PLACED || before.SellClientID != lot.SellClientID {
			reduced = before
			return nil
		}
		if reduced, err = m.ledger.ReduceLotTx(ctx, tx, lot.ID, order.FilledSize); err != nil {
			return err
		}
		if m.onSellFilled != nil {
			return m.onSellFilled(ctx, tx, before, order)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	slog.Info("recorded partial sell", "lot", lot.ID, "client-order-id", lot.SellClientID, "status", order.Status,
		"price", order.FilledPrice(), "qty", order.FilledSize, "remaining", reduced.Quantity)
	return reduced, nil
}

// arm places a new sell order for the lot. Lots in SELL_PLACED status keep
// their status with the new order, or move back to OPEN when the new order
// cannot be placed.
func (m *Manager) arm(ctx context.Context, lot *gobs.Lot, qty, price decimal.Decimal) error {
	order, err := m.guard.PlaceLimitMaker(ctx, exchange.SELL, qty, price)
	if err != nil {
		if errors.Is(err, exchange.ErrWouldCrossAsTaker) || errors.Is(err, guard.ErrSizingRejected) {
			slog.Info("deferred sell placement", "lot", lot.ID, "qty", qty, "price", price, "reason", err)
			err = nil
		}
		if lot.Status == gobs.SELL_PLACED {
			if _, derr := m.ledger.DisarmSell(ctx, lot.ID); derr != nil {
				return errors.Join(err, derr)
			}
		}
		return err
	}

	err = m.ledger.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		if lot.Status == gobs.SELL_PLACED {
			_, err := m.ledger.ReplaceSellTx(ctx, tx, lot.ID, order.ClientOrderID, price)
			return err
		}
		_, err := m.ledger.ArmSellTx(ctx, tx, lot.ID, order.ClientOrderID, price)
		return err
	})
	if err != nil {
		// The order is live but not recorded; cancel it so that the lot can be
		// re-armed on a later tick.
		if cerr := m.guard.Cancel(ctx, order.ClientOrderID); cerr != nil {
			slog.Error("could not cancel unrecorded sell order", "lot", lot.ID, "client-order-id", order.ClientOrderID, "err", cerr)
		}
		return err
	}
	metrics.IncOrders(exchange.SELL, "LIMIT_MAKER")
	slog.Info("armed sell for lot", "lot", lot.ID, "qty", qty, "price", price, "client-order-id", order.ClientOrderID)
	return nil
}

func (m *Manager) close(ctx context.Context, lot *gobs.Lot, order *exchange.Order) error {
	err := m.ledger.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		before, err := m.ledger.getLot(ctx, tx, lot.ID)
		if err != nil {
			return err
		}
		if before.Status == gobs.CLOSED {
			return nil
		}
		if _, err := m.ledger.CloseLotTx(ctx, tx, lot.ID); err != nil {
			return err
		}
		if m.onSellFilled != nil {
			return m.onSellFilled(ctx, tx, before, order)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slog.Info("closed lot with filled sell", "lot", lot.ID, "price", order.FilledPrice(), "qty", order.FilledSize, "fee", order.Fee)
	return nil
}
