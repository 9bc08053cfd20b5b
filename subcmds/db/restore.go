// Copyright (c) 2023 BVK Chaitanya

package db

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/spotbot/kvutil"
	"github.com/bvk/spotbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type Restore struct {
	cmdutil.DBFlags
}

func (c *Restore) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("restore", flag.ContinueOnError)
	c.DBFlags.SetFlags(fset)
	return "restore", fset, cli.CmdFunc(c.run)
}

func (c *Restore) Purpose() string {
	return "Replaces the database content with a backup file"
}

func (c *Restore) Description() string {
	return `

Command "restore" deletes all keys in the database and loads the key/value
pairs from a backup file taken with the "backup" command. The daemon must be
stopped before restoring its database; use --db-dir to name the database
directory.

`
}

func (c *Restore) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("command takes one (input backup file) argument")
	}
	if c.DBFlags.IsRemoteDatabase() {
		return fmt.Errorf("restoring the database of a running daemon is not supported; use --db-dir")
	}

	db, closer, err := c.DBFlags.GetDatabase(ctx)
	if err != nil {
		return fmt.Errorf("could not get database instance: %w", err)
	}
	defer closer()

	if err := kvutil.RestoreDB(ctx, db, args[0]); err != nil {
		return fmt.Errorf("could not restore from backup: %w", err)
	}
	return nil
}
