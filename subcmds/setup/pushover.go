// Copyright (c) 2025 BVK Chaitanya

package setup

import (
	"context"
	"flag"
	"time"

	"github.com/bvk/spotbot/config"
	"github.com/bvk/spotbot/pushover"
	"github.com/bvk/spotbot/subcmds/cmdutil"
	"github.com/visvasity/cli"
)

type PushOver struct {
	cmdutil.DataFlags

	skipTesting bool

	appID  string
	userID string
}

func (c *PushOver) Purpose() string {
	return "Setup configures PushOver service API parameters"
}

func (c *PushOver) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("pushover", flag.ContinueOnError)
	c.DataFlags.SetFlags(fset)
	fset.StringVar(&c.userID, "user-id", "", "PushOver service user identifier")
	fset.StringVar(&c.appID, "app-id", "", "PushOver service Application identifier")
	fset.BoolVar(&c.skipTesting, "skip-testing", false, "don't test the parameters")
	return "pushover", fset, cli.CmdFunc(c.run)
}

func (c *PushOver) Description() string {
	return `

Command "pushover" configures trade alerts through the Pushover service.

Pushover keys are optional. They can be configured as follows:

  $ spotbot setup pushover --app-id=awja5ue...ito7svf --user-id=uscjs2...tvp4kv

`
}

func (c *PushOver) run(ctx context.Context, args []string) error {
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

	secrets.Pushover = &pushover.Keys{
		ApplicationKey: c.appID,
		UserKey:        c.userID,
	}
	if err := secrets.Check(); err != nil {
		return err
	}
	if !c.skipTesting {
		client, err := pushover.New(secrets.Pushover, "" /* endpoint */)
		if err != nil {
			return err
		}
		if err := client.SendMessage(ctx, time.Now(), "Test message from Pushover config setup; please ignore."); err != nil {
			return err
		}
	}
	return secrets.Save(secretsPath)
}
