// Copyright (c) 2023 BVK Chaitanya

package kvutil

import (
	"bytes"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/bvkgo/kv"
)

// Get reads and gob-decodes the value at the given key. Returns an error
// wrapping os.ErrNotExist if the key doesn't exist.
func Get[T any](ctx context.Context, g kv.Getter, key string) (*T, error) {
	value, err := g.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("could not Get from %q: %w", key, err)
	}
	gv := new(T)
	if err := gob.NewDecoder(value).Decode(gv); err != nil {
		return nil, fmt.Errorf("could not gob-decode value at key %q: %w", key, err)
	}
	return gv, nil
}

// Set gob-encodes the value and saves it at the given key.
func Set[T any](ctx context.Context, s kv.Setter, key string, value *T) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(value); err != nil {
		return fmt.Errorf("could not gob-encode value for key %q: %w", key, err)
	}
	return s.Set(ctx, key, &buf)
}

func GetString(ctx context.Context, g kv.Getter, key string) (string, error) {
	value, err := g.Get(ctx, key)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if _, err := io.Copy(&sb, value); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func SetString(ctx context.Context, s kv.Setter, key, value string) error {
	return s.Set(ctx, key, strings.NewReader(value))
}

// PathRange returns the begin and end keys that cover all keys under the
// input directory.
func PathRange(dir string) (begin string, end string) {
	dir = path.Clean(dir)
	if dir == "/" {
		return "", ""
	}
	return dir + "/", dir + string('/'+1)
}

type IterFunc[T any] func(ctx context.Context, key string, value *T) error

// ErrStop can be returned by an IterFunc to stop the iteration early without
// failing it.
var ErrStop = errors.New("stop iteration")

// Ascend invokes fn for every key/value in the [begin, end) range in the
// ascending order of the keys.
func Ascend[T any](ctx context.Context, r kv.Reader, begin, end string, fn IterFunc[T]) error {
	it, err := r.Ascend(ctx, begin, end)
	if err != nil {
		return err
	}
	return iterate(ctx, it, fn)
}

// Descend is similar to Ascend, but visits the keys in the descending order.
func Descend[T any](ctx context.Context, r kv.Reader, begin, end string, fn IterFunc[T]) error {
	it, err := r.Descend(ctx, begin, end)
	if err != nil {
		return err
	}
	return iterate(ctx, it, fn)
}

func iterate[T any](ctx context.Context, it kv.Iterator, fn IterFunc[T]) error {
	defer kv.Close(it)

	for k, v, err := it.Fetch(ctx, false); err == nil; k, v, err = it.Fetch(ctx, true) {
		gv := new(T)
		if err := gob.NewDecoder(v).Decode(gv); err != nil {
			return fmt.Errorf("could not decode value at key %q: %w", k, err)
		}
		if err := fn(ctx, k, gv); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}

	if _, _, err := it.Fetch(ctx, false); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("could not complete the iteration: %w", err)
	}
	return nil
}

// Last returns the last key and value in the given range. Returns empty key
// and nil value if the range is empty.
func Last[T any](ctx context.Context, r kv.Reader, begin, end string) (key string, value *T, err error) {
	last := func(ctx context.Context, k string, v *T) error {
		key, value = k, v
		return ErrStop
	}
	if err := Descend(ctx, r, begin, end, last); err != nil {
		return "", nil, err
	}
	return key, value, nil
}
