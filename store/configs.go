// Copyright (c) 2025 BVK Chaitanya

package store

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bvk/spotbot/gobs"
	"github.com/bvk/spotbot/kvutil"
)

// InsertConfig saves a new trigger configuration and assigns it an id.
func (tx *Tx) InsertConfig(ctx context.Context, c *gobs.TriggerConfig) (int64, error) {
	if c.MinChangePct <= 0 || c.MaxChangePct <= 0 {
		return 0, fmt.Errorf("trigger percentages must be positive: %w", os.ErrInvalid)
	}
	if c.TradeQtyFrac <= 0 || c.TradeQtyFrac > 1 {
		return 0, fmt.Errorf("trade quantity fraction %v is out of range: %w", c.TradeQtyFrac, os.ErrInvalid)
	}
	rw, err := tx.writer()
	if err != nil {
		return 0, err
	}
	id, err := tx.nextID(ctx, "configs")
	if err != nil {
		return 0, err
	}
	v := *c
	v.ID = id
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}
	if err := kvutil.Set(ctx, rw, idKey(ConfigsKeyspace, id), &v); err != nil {
		return 0, perr("InsertConfig", err)
	}
	c.ID, c.CreatedAt = v.ID, v.CreatedAt
	return id, nil
}

// ListConfigs returns all trigger configurations in the ascending id order.
func (tx *Tx) ListConfigs(ctx context.Context) ([]*gobs.TriggerConfig, error) {
	var configs []*gobs.TriggerConfig
	collect := func(_ context.Context, _ string, c *gobs.TriggerConfig) error {
		configs = append(configs, c)
		return nil
	}
	begin, end := kvutil.PathRange(ConfigsKeyspace)
	if err := kvutil.Ascend(ctx, tx.r, begin, end, collect); err != nil {
		return nil, perr("ListConfigs", err)
	}
	return configs, nil
}

func (tx *Tx) GetConfig(ctx context.Context, id int64) (*gobs.TriggerConfig, error) {
	c, err := kvutil.Get[gobs.TriggerConfig](ctx, tx.r, idKey(ConfigsKeyspace, id))
	if err != nil {
		return nil, perr("GetConfig", err)
	}
	return c, nil
}
