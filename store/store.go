// Copyright (c) 2025 BVK Chaitanya

// Package store implements the ledger and state store of the bot on top of a
// key-value database. Every operation runs inside a database transaction, so
// a crash between two steps leaves the store in the last consistent state.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strconv"

	"github.com/bvk/spotbot/kvutil"
	"github.com/bvkgo/kv"
)

const (
	TradesKeyspace     = "/trades"
	ConfigsKeyspace    = "/configs"
	LotsKeyspace       = "/lots"
	ActiveLotsKeyspace = "/active-lots"
	StateKeyspace      = "/state"
	SequencesKeyspace  = "/sequences"
)

// ErrPersistence wraps all failures of the underlying database.
var ErrPersistence = errors.New("persistence failure")

type Store struct {
	db kv.Database
}

func New(db kv.Database) *Store {
	return &Store{db: db}
}

func (s *Store) Database() kv.Database {
	return s.db
}

// Tx is a handle to a database transaction. Transactions created by View
// cannot perform updates.
type Tx struct {
	r  kv.Reader
	rw kv.ReadWriter
}

// View runs fn in a read-only transaction.
func (s *Store) View(ctx context.Context, fn func(context.Context, *Tx) error) error {
	return kv.WithReader(ctx, s.db, func(ctx context.Context, r kv.Reader) error {
		return fn(ctx, &Tx{r: r})
	})
}

// Update runs fn in a read-write transaction. Changes are committed only if
// fn returns nil.
func (s *Store) Update(ctx context.Context, fn func(context.Context, *Tx) error) error {
	return kv.WithReadWriter(ctx, s.db, func(ctx context.Context, rw kv.ReadWriter) error {
		return fn(ctx, &Tx{r: rw, rw: rw})
	})
}

func perr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistence) || errors.Is(err, os.ErrNotExist) || errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
}

func (tx *Tx) writer() (kv.ReadWriter, error) {
	if tx.rw == nil {
		return nil, fmt.Errorf("read-only transaction: %w", os.ErrPermission)
	}
	return tx.rw, nil
}

func idKey(keyspace string, id int64) string {
	return path.Join(keyspace, fmt.Sprintf("%016d", id))
}

// nextID allocates the next identifier from the named sequence. Identifiers
// start at one.
func (tx *Tx) nextID(ctx context.Context, name string) (int64, error) {
	rw, err := tx.writer()
	if err != nil {
		return 0, err
	}
	key := path.Join(SequencesKeyspace, name)
	var last int64
	if s, err := kvutil.GetString(ctx, rw, key); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return 0, perr("nextID", err)
		}
	} else if last, err = strconv.ParseInt(s, 10, 64); err != nil {
		return 0, perr("nextID", fmt.Errorf("invalid sequence value %q at key %q: %w", s, key, err))
	}
	next := last + 1
	if err := kvutil.SetString(ctx, rw, key, strconv.FormatInt(next, 10)); err != nil {
		return 0, perr("nextID", err)
	}
	return next, nil
}

// GetState returns the scalar value saved under the name. Returns an error
// wrapping os.ErrNotExist if no value was saved.
func (tx *Tx) GetState(ctx context.Context, name string) (string, error) {
	v, err := kvutil.GetString(ctx, tx.r, path.Join(StateKeyspace, name))
	if err != nil {
		return "", perr("GetState", err)
	}
	return v, nil
}

func (tx *Tx) SetState(ctx context.Context, name, value string) error {
	rw, err := tx.writer()
	if err != nil {
		return err
	}
	return perr("SetState", kvutil.SetString(ctx, rw, path.Join(StateKeyspace, name), value))
}

// DeleteState removes the value saved under the name. Removing a missing
// value is not an error.
func (tx *Tx) DeleteState(ctx context.Context, name string) error {
	rw, err := tx.writer()
	if err != nil {
		return err
	}
	if err := rw.Delete(ctx, path.Join(StateKeyspace, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return perr("DeleteState", err)
	}
	return nil
}

// GetValue reads a gob-encoded state record saved under the name.
func GetValue[T any](ctx context.Context, tx *Tx, name string) (*T, error) {
	v, err := kvutil.Get[T](ctx, tx.r, path.Join(StateKeyspace, name))
	if err != nil {
		return nil, perr("GetValue", err)
	}
	return v, nil
}

// SetValue saves a gob-encoded state record under the name.
func SetValue[T any](ctx context.Context, tx *Tx, name string, value *T) error {
	rw, err := tx.writer()
	if err != nil {
		return err
	}
	return perr("SetValue", kvutil.Set(ctx, rw, path.Join(StateKeyspace, name), value))
}

// GetState is a convenience wrapper for a single-read transaction.
func (s *Store) GetState(ctx context.Context, name string) (value string, err error) {
	err = s.View(ctx, func(ctx context.Context, tx *Tx) error {
		value, err = tx.GetState(ctx, name)
		return err
	})
	return value, err
}

func (s *Store) SetState(ctx context.Context, name, value string) error {
	return s.Update(ctx, func(ctx context.Context, tx *Tx) error {
		return tx.SetState(ctx, name, value)
	})
}
