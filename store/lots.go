// Copyright (c) 2025 BVK Chaitanya

package store

import (
	"context"
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/bvk/spotbot/gobs"
	"github.com/bvk/spotbot/kvutil"
	"github.com/bvkgo/kv"
)

// InsertLot saves a new lot and assigns it an id.
func (tx *Tx) InsertLot(ctx context.Context, lot *gobs.Lot) (int64, error) {
	if lot.ID != 0 {
		return 0, fmt.Errorf("new lot cannot have an id: %w", os.ErrInvalid)
	}
	id, err := tx.nextID(ctx, "lots")
	if err != nil {
		return 0, err
	}
	lot.ID = id
	if err := tx.PutLot(ctx, lot); err != nil {
		lot.ID = 0
		return 0, err
	}
	return id, nil
}

// PutLot saves the lot and maintains the active lots index.
func (tx *Tx) PutLot(ctx context.Context, lot *gobs.Lot) error {
	rw, err := tx.writer()
	if err != nil {
		return err
	}
	if lot.ID <= 0 {
		return fmt.Errorf("lot id %d is invalid: %w", lot.ID, os.ErrInvalid)
	}
	if err := kvutil.Set(ctx, rw, idKey(LotsKeyspace, lot.ID), lot); err != nil {
		return perr("PutLot", err)
	}
	indexKey := idKey(ActiveLotsKeyspace, lot.ID)
	if lot.Status == gobs.CLOSED {
		if err := rw.Delete(ctx, indexKey); err != nil && !os.IsNotExist(err) {
			return perr("PutLot", err)
		}
		return nil
	}
	return perr("PutLot", kvutil.SetString(ctx, rw, indexKey, strconv.FormatInt(lot.ID, 10)))
}

func (tx *Tx) GetLot(ctx context.Context, id int64) (*gobs.Lot, error) {
	lot, err := kvutil.Get[gobs.Lot](ctx, tx.r, idKey(LotsKeyspace, id))
	if err != nil {
		return nil, perr("GetLot", err)
	}
	return lot, nil
}

// ListActiveLots returns lots in OPEN or SELL_PLACED status in the ascending
// id order.
func (tx *Tx) ListActiveLots(ctx context.Context) ([]*gobs.Lot, error) {
	begin, end := kvutil.PathRange(ActiveLotsKeyspace)
	it, err := tx.r.Ascend(ctx, begin, end)
	if err != nil {
		return nil, perr("ListActiveLots", err)
	}
	var keys []string
	for k, _, err := it.Fetch(ctx, false); err == nil; k, _, err = it.Fetch(ctx, true) {
		keys = append(keys, k)
	}
	kv.Close(it)

	var lots []*gobs.Lot
	for _, k := range keys {
		id, err := strconv.ParseInt(path.Base(k), 10, 64)
		if err != nil {
			return nil, perr("ListActiveLots", fmt.Errorf("invalid index key %q: %w", k, err))
		}
		lot, err := tx.GetLot(ctx, id)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, nil
}

// ListLots returns all lots, including the closed ones.
func (tx *Tx) ListLots(ctx context.Context) ([]*gobs.Lot, error) {
	var lots []*gobs.Lot
	collect := func(_ context.Context, _ string, lot *gobs.Lot) error {
		lots = append(lots, lot)
		return nil
	}
	begin, end := kvutil.PathRange(LotsKeyspace)
	if err := kvutil.Ascend(ctx, tx.r, begin, end, collect); err != nil {
		return nil, perr("ListLots", err)
	}
	return lots, nil
}
