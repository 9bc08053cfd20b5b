// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"flag"
	"fmt"

	"github.com/bvk/spotbot/idgen"
	"github.com/visvasity/cli"
)

type IDGen struct {
	prefix string
	from   uint64
	count  int
}

func (c *IDGen) run(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("this command takes one (idgen seed) argument")
	}
	gen, err := idgen.New(c.prefix, args[0], c.from)
	if err != nil {
		return err
	}
	stdout := cli.Stdout(ctx)
	for i := 0; i < c.count; i++ {
		offset, id := gen.Offset(), gen.Next()
		fmt.Fprintf(stdout, "%d: %s\n", offset, id)
	}
	return nil
}

func (c *IDGen) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("idgen", flag.ContinueOnError)
	fset.StringVar(&c.prefix, "prefix", "sb-", "client order id prefix")
	fset.Uint64Var(&c.from, "from", 0, "initial id offset")
	fset.IntVar(&c.count, "count", 10, "number of ids")
	return "idgen", fset, cli.CmdFunc(c.run)
}

func (c *IDGen) Purpose() string {
	return "Prints client-order-ids for a seed string"
}

func (c *IDGen) Description() string {
	return `

Command "idgen" prints the client order ids generated for a seed. The daemon
saves its seed in the database under the "client-id-seed" state key and its
next offset under "client-id-offset", so the ids of the bot's orders can be
listed for debugging.

`
}
