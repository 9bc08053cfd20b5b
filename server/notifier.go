// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bvk/spotbot/trader"
)

// notifiers delivers every message to all the configured notifiers.
type notifiers []trader.Notifier

func (ns notifiers) SendMessage(ctx context.Context, at time.Time, msg string) error {
	var errs []error
	for _, n := range ns {
		if err := n.SendMessage(ctx, at, msg); err != nil {
			slog.Warn("could not send message", "notifier", fmt.Sprintf("%T", n), "err", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == len(ns) {
		return errors.Join(errs...)
	}
	return nil
}

// SendMessage sends a formatted message to the operator through all the
// configured notifiers.
func (s *Server) SendMessage(ctx context.Context, at time.Time, format string, args ...interface{}) {
	if len(s.notifiers) == 0 {
		return
	}
	msg := fmt.Sprintf(format, args...)
	if err := s.notifiers.SendMessage(ctx, at, msg); err != nil {
		slog.Warn("could not notify the operator", "msg", msg, "err", err)
	}
}
