package main

import (
	"context"
	"os"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"

	"tangled.sh/tangled.sh/stepc/compilecmd"
	stepclog "tangled.sh/tangled.sh/stepc/log"
)

func main() {
	cmd := &cli.Command{
		Name:  "stepc",
		Usage: "compile workflow steps into state machine templates",
		Commands: []*cli.Command{
			compilecmd.Command(),
		},
	}

	ctx := context.Background()
	logger := stepclog.New("stepc", log.InfoLevel)
	ctx = stepclog.IntoContext(ctx, logger.With("command", cmd.Name))

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Error(err.Error())
		os.Exit(-1)
	}
}
