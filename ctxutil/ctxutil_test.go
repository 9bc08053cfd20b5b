// Copyright (c) 2025 BVK Chaitanya

package ctxutil

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	base, max := 500*time.Millisecond, 8*time.Second
	want := []time.Duration{
		500 * time.Millisecond,
		time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		8 * time.Second,
	}
	for i, w := range want {
		if got := Backoff(i, base, max); got != w {
			t.Fatalf("attempt %d: want %s, got %s", i, w, got)
		}
	}
}

func TestRetryBackoff(t *testing.T) {
	ctx := context.Background()
	transient := errors.New("transient")
	permanent := errors.New("permanent")
	isTransient := func(err error) bool { return errors.Is(err, transient) }

	n := 0
	err := RetryBackoff(ctx, 5, time.Millisecond, 4*time.Millisecond, isTransient, func() error {
		n++
		if n < 3 {
			return transient
		}
		return nil
	})
	if err != nil || n != 3 {
		t.Fatalf("want success after 3 attempts, got %v after %d", err, n)
	}

	n = 0
	err = RetryBackoff(ctx, 5, time.Millisecond, 4*time.Millisecond, isTransient, func() error {
		n++
		return transient
	})
	if !errors.Is(err, transient) || n != 5 {
		t.Fatalf("want transient error after 5 attempts, got %v after %d", err, n)
	}

	n = 0
	err = RetryBackoff(ctx, 5, time.Millisecond, 4*time.Millisecond, isTransient, func() error {
		n++
		return permanent
	})
	if !errors.Is(err, permanent) || n != 1 {
		t.Fatalf("want permanent error after 1 attempt, got %v after %d", err, n)
	}

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	n = 0
	err = RetryBackoff(cctx, 5, time.Millisecond, 4*time.Millisecond, isTransient, func() error {
		n++
		return transient
	})
	if !errors.Is(err, transient) || n != 1 {
		t.Fatalf("want single attempt on canceled context, got %v after %d", err, n)
	}
}
