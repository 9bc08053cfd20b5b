// Copyright (c) 2025 BVK Chaitanya

package setup

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/bvk/spotbot/config"
	"github.com/bvk/spotbot/ctxutil"
	"github.com/bvk/spotbot/store"
	"github.com/bvk/spotbot/subcmds/cmdutil"
	"github.com/bvk/spotbot/telegram"
	"github.com/bvkgo/kv/kvmemdb"
	"github.com/visvasity/cli"
	"golang.org/x/term"
)

type Telegram struct {
	cmdutil.DataFlags

	skipTesting bool

	ownerID  string
	adminID  string
	botToken string
}

func (c *Telegram) Purpose() string {
	return "Setup configures Telegram service API parameters"
}

func (c *Telegram) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("telegram", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	fset.StringVar(&c.ownerID, "owner-id", "", "Owner's telegram user id")
	fset.StringVar(&c.adminID, "admin-id", "", "Administrator's telegram user id")
	fset.StringVar(&c.botToken, "bot-token", "", "Telegram bot's authentication token")
	fset.BoolVar(&c.skipTesting, "skip-testing", false, "don't test the parameters")
	return "telegram", fset, cli.CmdFunc(c.run)
}

func (c *Telegram) Description() string {
	return `

Command "telegram" configures trade alerts and read-only status commands
through a Telegram bot.

Telegram configuration is optional. It can be configured as follows:

  $ spotbot setup telegram --owner-id=username --bot-token=USCJS2...TVP4KV

`
}

func (c *Telegram) run(ctx context.Context, args []string) error {
	if _, err := c.DataFlags.CreateDataDir(); err != nil {
		return err
	}
	secretsPath, err := c.DataFlags.SecretsPath()
	if err != nil {
		return err
	}
	secrets, err := config.ReadSecrets(secretsPath)
	if err != nil {
		return err
	}

	secrets.Telegram = &telegram.Secrets{
		OwnerID:  c.ownerID,
		AdminID:  c.adminID,
		BotToken: c.botToken,
	}
	if err := secrets.Check(); err != nil {
		return err
	}

	if !c.skipTesting {
		fmt.Fprintln(cli.Stdout(ctx), "Start a chat with telegram bot and then press any key")
		if err := waitForKey(); err != nil {
			return err
		}

		client, err := telegram.New(ctx, store.New(kvmemdb.New()), secrets.Telegram, nil /* opts */)
		if err != nil {
			return err
		}
		defer client.Close()

		ctxutil.Sleep(ctx, time.Second)
		if err := client.SendMessage(ctx, time.Now(), "Test message from Telegram config setup; please ignore."); err != nil {
			return err
		}
	}
	return secrets.Save(secretsPath)
}

func waitForKey() error {
	// switch stdin into 'raw' mode
	oldState, err := term.MakeRaw(int(os.Stdin.Fd()))
	if err != nil {
		return err
	}
	defer term.Restore(int(os.Stdin.Fd()), oldState)

	b := make([]byte, 1)
	_, err = os.Stdin.Read(b)
	return err
}
