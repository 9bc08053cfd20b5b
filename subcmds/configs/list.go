// Copyright (c) 2025 BVK Chaitanya

package configs

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/bvk/spotbot/bandit"
	"github.com/bvk/spotbot/gobs"
	"github.com/bvk/spotbot/server"
	"github.com/bvk/spotbot/store"
	"github.com/bvk/spotbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type List struct {
	cmdutil.DBFlags
}

func (c *List) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("list", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	return "list", fset, cli.CmdFunc(c.run)
}

func (c *List) Purpose() string {
	return "Lists the trigger configurations with their performance"
}

func (c *List) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("command takes no arguments")
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return err
	}
	defer closer()

	var (
		configs  []*gobs.TriggerConfig
		perfMap  map[int64]*gobs.ConfigPerformance
		activeID int64
	)
	err = store.New(db).View(ctx, func(ctx context.Context, tx *store.Tx) (err error) {
		if configs, err = tx.ListConfigs(ctx); err != nil {
			return err
		}
		if perfMap, err = tx.ConfigPerformance(ctx); err != nil {
			return err
		}
		state, err := store.GetValue[gobs.BanditState](ctx, tx, bandit.StateKey)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return err
		}
		activeID = state.ActiveConfigID
		return nil
	})
	if err != nil {
		return err
	}
	return server.WriteConfigs(cli.Stdout(ctx), configs, perfMap, activeID)
}
