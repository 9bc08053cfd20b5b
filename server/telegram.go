// Copyright (c) 2025 BVK Chaitanya

package server

import (
	"context"
	"fmt"
	"time"

	"github.com/bvk/spotbot/gobs"
	"github.com/bvk/spotbot/store"
	"github.com/bvk/spotbot/telegram"
	"github.com/visvasity/cli"
)

func (s *Server) AddTelegramCommand(ctx context.Context, name, purpose string, handler telegram.CmdFunc) error {
	if s.telegramClient != nil {
		return s.telegramClient.AddCommand(ctx, name, purpose, handler)
	}
	return nil // Ignored
}

func (s *Server) addTelegramCommands(ctx context.Context) error {
	if err := s.AddTelegramCommand(ctx, "status", "Prints the last control loop status", s.statusCmd); err != nil {
		return err
	}
	if err := s.AddTelegramCommand(ctx, "lots", "Lists the active lots", s.lotsCmd); err != nil {
		return err
	}
	if err := s.AddTelegramCommand(ctx, "configs", "Lists the trigger configurations", s.configsCmd); err != nil {
		return err
	}
	if err := s.AddTelegramCommand(ctx, "profit", "Prints the profit for a period (today, week, month, ...)", s.profitCmd); err != nil {
		return err
	}
	return nil
}

func (s *Server) statusCmd(ctx context.Context, _ []string) error {
	return WriteStatus(cli.Stdout(ctx), s.trader.Status())
}

func (s *Server) lotsCmd(ctx context.Context, _ []string) error {
	var lots []*gobs.Lot
	err := s.st.View(ctx, func(ctx context.Context, tx *store.Tx) (err error) {
		lots, err = tx.ListActiveLots(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if len(lots) == 0 {
		fmt.Fprintln(cli.Stdout(ctx), "no active lots")
		return nil
	}
	return WriteLots(cli.Stdout(ctx), lots)
}

func (s *Server) configsCmd(ctx context.Context, _ []string) error {
	var (
		configs []*gobs.TriggerConfig
		perfMap map[int64]*gobs.ConfigPerformance
	)
	err := s.st.View(ctx, func(ctx context.Context, tx *store.Tx) (err error) {
		if configs, err = tx.ListConfigs(ctx); err != nil {
			return err
		}
		perfMap, err = tx.ConfigPerformance(ctx)
		return err
	})
	if err != nil {
		return err
	}
	state, err := s.bandit.State(ctx)
	if err != nil {
		return err
	}
	var activeID int64
	if state != nil {
		activeID = state.ActiveConfigID
	}
	return WriteConfigs(cli.Stdout(ctx), configs, perfMap, activeID)
}

func (s *Server) profitCmd(ctx context.Context, args []string) error {
	summaries, err := Summarize(ctx, s.st, time.Now(), args...)
	if err != nil {
		return err
	}
	if len(args) == 1 {
		fmt.Fprintln(cli.Stdout(ctx), summaries[0].Profit.StringFixed(3))
		return nil
	}
	for _, v := range summaries {
		fmt.Fprintf(cli.Stdout(ctx), "%s: %s\n", v.Period, v.Profit.StringFixed(3))
	}
	return nil
}
