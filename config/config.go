package config

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/sethvargo/go-envconfig"
)

type CoreStack struct {
	Name        string `env:"NAME, required"`
	OutputsFile string `env:"OUTPUTS_FILE"`
}

type Compiler struct {
	MaxDepth int    `env:"MAX_DEPTH, default=32"`
	LogLevel string `env:"LOG_LEVEL, default=info"`
}

func (c Compiler) Level() (log.Level, error) {
	return log.ParseLevel(c.LogLevel)
}

type Config struct {
	CoreStack CoreStack `env:",prefix=CORE_STACK_"`
	Compiler  Compiler  `env:",prefix=STEPC_"`
}

func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: l,
	})
	if err != nil {
		return nil, err
	}

	if cfg.Compiler.MaxDepth < 1 {
		return nil, fmt.Errorf("STEPC_MAX_DEPTH must be positive, got %d", cfg.Compiler.MaxDepth)
	}
	if _, err := cfg.Compiler.Level(); err != nil {
		return nil, fmt.Errorf("STEPC_LOG_LEVEL: %w", err)
	}

	return &cfg, nil
}
