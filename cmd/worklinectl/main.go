// worklinectl runs operational tasks against the Workline database: schema migrations,
// development seed data and the one-owner-per-organization check.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"
)

type cliCtx struct {
	context.Context
	Logger *slog.Logger
}

type cli struct {
	Migrate MigrateCmd `cmd:"" help:"Apply or roll back the embedded schema migrations"`
	Seed    SeedCmd    `cmd:"" help:"Create a demo organization with an owner, an admin and a member"`
	Owners  OwnersCmd  `cmd:"" help:"Inspect organization ownership"`

	Debug bool `help:"Enable debug logging"`
}

func main() {
	var c cli
	ctx := kong.Parse(&c,
		kong.UsageOnError(),
		kong.Name("worklinectl"),
		kong.Description("worklinectl runs operational tasks for the Workline backend"),
	)
	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	err := ctx.Run(&cliCtx{Context: context.Background(), Logger: logger})
	ctx.FatalIfErrorf(err)
}
