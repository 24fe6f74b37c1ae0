package compilecmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"tangled.sh/tangled.sh/stepc/config"
	"tangled.sh/tangled.sh/stepc/corestack"
	"tangled.sh/tangled.sh/stepc/jobstep"
	"tangled.sh/tangled.sh/stepc/log"
	"tangled.sh/tangled.sh/stepc/models"
	"tangled.sh/tangled.sh/stepc/workflow"
)

func Command() *cli.Command {
	return &cli.Command{
		Name:      "compile",
		Usage:     "compile a workflow file into a state machine and its resources",
		ArgsUsage: "FILE",
		Action:    Run,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "output format (json, yaml)",
				Value:   "json",
			},
		},
	}
}

func Run(ctx context.Context, cmd *cli.Command) error {
	path := cmd.Args().First()
	if path == "" {
		return fmt.Errorf("missing workflow file")
	}

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	level, _ := cfg.Compiler.Level()
	l := log.New("stepc/compile", level).With("file", path)
	ctx = log.IntoContext(ctx, l)

	out := cmd.Root().Writer
	if out == nil {
		out = os.Stdout
	}

	return compile(ctx, cfg, path, cmd.String("output"), out)
}

func compile(ctx context.Context, cfg *config.Config, path, format string, out io.Writer) error {
	l := log.FromContext(ctx)

	contents, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	wf, err := workflow.FromFile(path, contents)
	if err != nil {
		return err
	}

	cs, err := corestack.FromConfig(cfg.CoreStack)
	if err != nil {
		return err
	}

	c := workflow.New(jobstep.New(cs, wf.Options), cfg.Compiler.MaxDepth)
	tpl, err := c.Compile(ctx, wf)
	if err != nil {
		return err
	}
	for _, w := range c.Diagnostics.Warnings {
		l.Warn(w.String())
	}

	doc, err := tpl.Document()
	if err != nil {
		return err
	}

	return write(out, format, doc)
}

func write(out io.Writer, format string, doc models.Spec) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	case "yaml":
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
