// Copyright (c) 2025 BVK Chaitanya

package lots

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/spotbot/gobs"
	"github.com/bvk/spotbot/server"
	"github.com/bvk/spotbot/store"
	"github.com/bvk/spotbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type List struct {
	cmdutil.DBFlags

	all bool
}

func (c *List) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("list", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	fset.BoolVar(&c.all, "all", false, "when true, closed lots are also listed")
	return "list", fset, cli.CmdFunc(c.run)
}

func (c *List) Purpose() string {
	return "Lists the active lots"
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

	var lots []*gobs.Lot
	err = store.New(db).View(ctx, func(ctx context.Context, tx *store.Tx) (err error) {
		if c.all {
			lots, err = tx.ListLots(ctx)
		} else {
			lots, err = tx.ListActiveLots(ctx)
		}
		return err
	})
	if err != nil {
		return err
	}
	return server.WriteLots(cli.Stdout(ctx), lots)
}
