// Copyright (c) 2025 BVK Chaitanya

// Package ledger tracks the inventory as lots. Buys open new lots or merge
// into the accumulating lot, sells are armed against lots and lots close when
// their sell order fills. All lot changes are persisted in the store.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bvk/spotbot/gobs"
	"github.com/bvk/spotbot/store"
	"github.com/shopspring/decimal"
)

type Ledger struct {
	st *store.Store

	now func() time.Time
}

func New(st *store.Store) *Ledger {
	return &Ledger{st: st, now: time.Now}
}

func (l *Ledger) Store() *store.Store {
	return l.st
}

// OpenOrMergeLotTx merges the buy fill into the OPEN lot without an armed
// sell, or creates a new lot if there is none.
func (l *Ledger) OpenOrMergeLotTx(ctx context.Context, tx *store.Tx, buyPrice, qty, target decimal.Decimal) (*gobs.Lot, error) {
	now := l.now().UTC()
	if _, err := NewLot(buyPrice, qty, target, now); err != nil {
		return nil, err
	}
	active, err := tx.ListActiveLots(ctx)
	if err != nil {
		return nil, err
	}
	for _, lot := range active {
		if !IsAccumulator(lot) {
			continue
		}
		merge(lot, buyPrice, qty, target, now)
		if err := tx.PutLot(ctx, lot); err != nil {
			return nil, err
		}
		slog.Info("merged buy into lot", "lot", lot.ID, "qty", lot.Quantity, "avg-buy-price", lot.AvgBuyPrice, "target", lot.TargetPrice)
		return lot, nil
	}
	lot, _ := NewLot(buyPrice, qty, target, now)
	if _, err := tx.InsertLot(ctx, lot); err != nil {
		return nil, err
	}
	slog.Info("created new lot", "lot", lot.ID, "qty", lot.Quantity, "buy-price", lot.AvgBuyPrice, "target", lot.TargetPrice)
	return lot, nil
}

func (l *Ledger) OpenOrMergeLot(ctx context.Context, buyPrice, qty, target decimal.Decimal) (lot *gobs.Lot, err error) {
	err = l.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		lot, err = l.OpenOrMergeLotTx(ctx, tx, buyPrice, qty, target)
		return err
	})
	return lot, err
}

func (l *Ledger) getLot(ctx context.Context, tx *store.Tx, id int64) (*gobs.Lot, error) {
	lot, err := tx.GetLot(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("could not load lot %d: %w", id, err)
	}
	if err := Check(lot); err != nil {
		return nil, err
	}
	return lot, nil
}

// ArmSellTx records the sell order placed for an OPEN lot.
func (l *Ledger) ArmSellTx(ctx context.Context, tx *store.Tx, lotID int64, clientID string, price decimal.Decimal) (*gobs.Lot, error) {
	lot, err := l.getLot(ctx, tx, lotID)
	if err != nil {
		return nil, err
	}
	if err := armSell(lot, clientID, price, l.now().UTC()); err != nil {
		return nil, err
	}
	if err := tx.PutLot(ctx, lot); err != nil {
		return nil, err
	}
	return lot, nil
}

func (l *Ledger) ArmSell(ctx context.Context, lotID int64, clientID string, price decimal.Decimal) (lot *gobs.Lot, err error) {
	err = l.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		lot, err = l.ArmSellTx(ctx, tx, lotID, clientID, price)
		return err
	})
	return lot, err
}

// DisarmSellTx moves a SELL_PLACED lot back to OPEN and clears its sell
// order.
func (l *Ledger) DisarmSellTx(ctx context.Context, tx *store.Tx, lotID int64) (*gobs.Lot, error) {
	lot, err := l.getLot(ctx, tx, lotID)
	if err != nil {
		return nil, err
	}
	if err := disarmSell(lot, l.now().UTC()); err != nil {
		return nil, err
	}
	if err := tx.PutLot(ctx, lot); err != nil {
		return nil, err
	}
	return lot, nil
}

func (l *Ledger) DisarmSell(ctx context.Context, lotID int64) (lot *gobs.Lot, err error) {
	err = l.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		lot, err = l.DisarmSellTx(ctx, tx, lotID)
		return err
	})
	return lot, err
}

// ReplaceSellTx replaces the sell order of a SELL_PLACED lot with a new
// order.
func (l *Ledger) ReplaceSellTx(ctx context.Context, tx *store.Tx, lotID int64, clientID string, price decimal.Decimal) (*gobs.Lot, error) {
	lot, err := l.getLot(ctx, tx, lotID)
	if err != nil {
		return nil, err
	}
	now := l.now().UTC()
	if err := disarmSell(lot, now); err != nil {
		return nil, err
	}
	if err := armSell(lot, clientID, price, now); err != nil {
		return nil, err
	}
	if err := tx.PutLot(ctx, lot); err != nil {
		return nil, err
	}
	return lot, nil
}

// ReduceLotTx removes the quantity executed by a partially filled sell order
// that is no longer active. Lot becomes OPEN with the remaining quantity, or
// CLOSED if nothing remains.
func (l *Ledger) ReduceLotTx(ctx context.Context, tx *store.Tx, lotID int64, sold decimal.Decimal) (*gobs.Lot, error) {
	lot, err := l.getLot(ctx, tx, lotID)
	if err != nil {
		return nil, err
	}
	if err := reduceLot(lot, sold, l.now().UTC()); err != nil {
		return nil, err
	}
	if err := tx.PutLot(ctx, lot); err != nil {
		return nil, err
	}
	return lot, nil
}

// CloseLotTx closes the lot. Closing a closed lot is a no-op.
func (l *Ledger) CloseLotTx(ctx context.Context, tx *store.Tx, lotID int64) (*gobs.Lot, error) {
	lot, err := l.getLot(ctx, tx, lotID)
	if err != nil {
		return nil, err
	}
	if !closeLot(lot, l.now().UTC()) {
		return lot, nil
	}
	if err := tx.PutLot(ctx, lot); err != nil {
		return nil, err
	}
	return lot, nil
}

func (l *Ledger) CloseLot(ctx context.Context, lotID int64) (lot *gobs.Lot, err error) {
	err = l.st.Update(ctx, func(ctx context.Context, tx *store.Tx) error {
		lot, err = l.CloseLotTx(ctx, tx, lotID)
		return err
	})
	return lot, err
}

// ListActiveLots returns the lots in OPEN or SELL_PLACED status.
func (l *Ledger) ListActiveLots(ctx context.Context) (lots []*gobs.Lot, err error) {
	err = l.st.View(ctx, func(ctx context.Context, tx *store.Tx) error {
		lots, err = tx.ListActiveLots(ctx)
		return err
	})
	return lots, err
}

// Summary returns the total quantity and the volume-weighted average buy
// price of the active lots.
func Summary(lots []*gobs.Lot) (qty, avg decimal.Decimal) {
	var value decimal.Decimal
	for _, lot := range lots {
		qty = qty.Add(lot.Quantity)
		value = value.Add(lot.Quantity.Mul(lot.AvgBuyPrice))
	}
	if qty.IsPositive() {
		avg = value.Div(qty)
	}
	return qty, avg
}
