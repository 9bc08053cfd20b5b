// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/bvk/spotbot/bandit"
	"github.com/bvk/spotbot/gobs"
	"github.com/bvk/spotbot/server"
	"github.com/bvk/spotbot/store"
	"github.com/bvk/spotbot/subcmds/cmdutil"
	"github.com/bvk/spotbot/trader"
	"github.com/shopspring/decimal"
	"github.com/visvasity/cli"
)

type Status struct {
	cmdutil.DBFlags
}

func (c *Status) Purpose() string {
	return "Prints the trading status, profit summary and active lots"
}

func (c *Status) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("status", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	return "status", fset, cli.CmdFunc(c.run)
}

func (c *Status) run(ctx context.Context, args []string) error {
	stdout := cli.Stdout(ctx)

	if c.DBFlags.IsRemoteDatabase() {
		status, err := cmdutil.Get[trader.Status](ctx, &c.DBFlags.ClientFlags, "/status")
		if err != nil {
			fmt.Fprintf(stdout, "Live status is not available: %v\n", err)
		} else if err := server.WriteStatus(stdout, status); err != nil {
			return err
		}
		fmt.Fprintln(stdout)
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()
	st := store.New(db)

	var (
		total, avg decimal.Decimal
		n          int
		lots       []*gobs.Lot
		configs    []*gobs.TriggerConfig
		perfMap    map[int64]*gobs.ConfigPerformance
		banditSt   *gobs.BanditState
	)
	err = st.View(ctx, func(ctx context.Context, tx *store.Tx) (err error) {
		if total, avg, n, err = tx.Stats(ctx); err != nil {
			return err
		}
		if lots, err = tx.ListActiveLots(ctx); err != nil {
			return err
		}
		if configs, err = tx.ListConfigs(ctx); err != nil {
			return err
		}
		if perfMap, err = tx.ConfigPerformance(ctx); err != nil {
			return err
		}
		banditSt, err = store.GetValue[gobs.BanditState](ctx, tx, bandit.StateKey)
		return ignoreNotExist(err)
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(stdout, "Trades: %d\n", n)
	fmt.Fprintf(stdout, "Total PnL: %s\n", total.StringFixed(3))
	fmt.Fprintf(stdout, "Average PnL: %s\n", avg.StringFixed(3))

	summaries, err := server.Summarize(ctx, st, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout)
	if err := server.WriteSummaries(stdout, summaries); err != nil {
		return err
	}

	if len(lots) > 0 {
		fmt.Fprintln(stdout)
		if err := server.WriteLots(stdout, lots); err != nil {
			return err
		}
	}

	if len(configs) > 0 {
		var activeID int64
		if banditSt != nil {
			activeID = banditSt.ActiveConfigID
		}
		fmt.Fprintln(stdout)
		if err := server.WriteConfigs(stdout, configs, perfMap, activeID); err != nil {
			return err
		}
	}
	return nil
}
