package main

import (
	"context"
	"fmt"

	"github.com/lox/housepoker/cmd/housepoker/shared"
	"github.com/lox/housepoker/internal/store"
)

// MigrateCmd applies pending schema migrations.
type MigrateCmd struct {
	Database string `help:"Database path (defaults to the configured one)"`
}

func (c *MigrateCmd) Run(cli *CLI) error {
	cfg, err := loadConfig(cli.Config)
	if err != nil {
		return err
	}
	path := cfg.Storage.Database
	if c.Database != "" {
		path = c.Database
	}
	logger := shared.SetupLogger(cfg.Server.LogLevel, false)

	ctx := context.Background()
	st, err := store.Open(ctx, path, logger, store.SkipMigrations())
	if err != nil {
		return err
	}
	defer st.Close()

	applied, err := st.Migrate(ctx)
	for _, name := range applied {
		fmt.Printf("applied %s\n", name)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Printf("%s is up to date\n", path)
	}
	return nil
}
