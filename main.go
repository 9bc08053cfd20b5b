// Copyright (c) 2023 BVK Chaitanya

package main

import (
	"context"
	"log"
	"os"

	"github.com/bvk/spotbot/subcmds"
	"github.com/bvk/spotbot/subcmds/configs"
	"github.com/bvk/spotbot/subcmds/db"
	"github.com/bvk/spotbot/subcmds/lots"
	"github.com/bvk/spotbot/subcmds/setup"
	"github.com/bvk/spotbot/subcmds/trades"
	"github.com/visvasity/cli"
)

func main() {
	dbCmds := []cli.Command{
		new(db.List),
		new(db.Delete),
		new(db.Backup),
		new(db.Restore),
	}

	setupCmds := []cli.Command{
		new(setup.Binance),
		new(setup.Telegram),
		new(setup.PushOver),
	}

	lotsCmds := []cli.Command{
		new(lots.List),
	}

	tradesCmds := []cli.Command{
		new(trades.List),
	}

	configsCmds := []cli.Command{
		new(configs.List),
	}

	cmds := []cli.Command{
		new(subcmds.Run),
		new(subcmds.Status),
		new(subcmds.Check),
		new(subcmds.IDGen),
		cli.CommandGroup("setup", "Configure exchange keys and notifications", setupCmds...),
		cli.CommandGroup("lots", "View the lot ledger", lotsCmds...),
		cli.CommandGroup("trades", "View the trade history", tradesCmds...),
		cli.CommandGroup("configs", "View the trigger configurations", configsCmds...),
		cli.CommandGroup("db", "View/update database directly", dbCmds...),
	}
	if err := cli.Run(context.Background(), cmds, os.Args[1:]); err != nil {
		log.Fatal(err)
	}
}
