package main

import (
	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"
)

var version = "dev"

type CLI struct {
	Config  string           `short:"c" default:"housepoker.hcl" env:"HOUSEPOKER_CONFIG" help:"Path to the HCL configuration file"`
	Version kong.VersionFlag `help:"Print version and exit"`

	Serve   ServeCmd   `cmd:"" default:"1" help:"Run the poker server"`
	Migrate MigrateCmd `cmd:"" help:"Apply database migrations and exit"`
	Eval    EvalCmd    `cmd:"" help:"Evaluate a poker hand"`
	Health  HealthCmd  `cmd:"" help:"Wait for a running server to report healthy"`
}

func main() {
	// a missing .env is fine
	_ = godotenv.Load()

	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("housepoker"),
		kong.Description("Multiplayer poker server with cash tables and tournaments"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Vars{"version": version},
		kong.Bind(&cli),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
