// Copyright (c) 2025 BVK Chaitanya

package trades

import (
	"context"
	"flag"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/bvk/spotbot/gobs"
	"github.com/bvk/spotbot/server"
	"github.com/bvk/spotbot/store"
	"github.com/bvk/spotbot/subcmds/cmdutil"
	"github.com/bvk/spotbot/timerange"
	"github.com/visvasity/cli"
)

type List struct {
	cmdutil.DBFlags

	period string
	side   string
}

func (c *List) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("list", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	fset.StringVar(&c.period, "period", "lifetime", "time period; one of "+strings.Join(timerange.Periods, ", "))
	fset.StringVar(&c.side, "side", "", "when non-empty, only BUY or SELL trades are listed")
	return "list", fset, cli.CmdFunc(c.run)
}

func (c *List) Purpose() string {
	return "Lists the recorded trades"
}

func (c *List) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}
	now := time.Now()
	period, err := timerange.Period(c.period, now, now.Location())
	if err != nil {
		return err
	}
	side := strings.ToUpper(c.side)

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	var trades []*gobs.Trade
	err = store.New(db).View(ctx, func(ctx context.Context, tx *store.Tx) (err error) {
		trades, err = tx.ListTrades(ctx)
		return err
	})
	if err != nil {
		return err
	}
	trades = slices.DeleteFunc(trades, func(t *gobs.Trade) bool {
		return !period.InRange(t.Time) || (side != "" && t.Side != side)
	})
	return server.WriteTrades(cli.Stdout(ctx), trades)
}
