package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/wolfeidau/accounts/cmd/server/internal/commands"
)

var (
	version = "dev"
	cli     struct {
		Debug   bool `help:"Enable debug mode." env:"ACCOUNTS_DEBUG"`
		Version kong.VersionFlag

		Serve         commands.ServeCmd         `cmd:"" help:"Start the API server and sync workers"`
		Worker        commands.WorkerCmd        `cmd:"" help:"Run sync workers only"`
		Migrate       commands.MigrateCmd       `cmd:"" help:"Apply database migrations"`
		DeadLetters   commands.DeadLettersCmd   `cmd:"" name:"dead-letters" help:"Inspect and requeue failed sync tasks"`
		Users         commands.UsersCmd         `cmd:"" help:"Manage user accounts"`
		Organizations commands.OrganizationsCmd `cmd:"" help:"Manage organization plans"`
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&commands.Globals{Debug: cli.Debug, Version: version})
	cmd.FatalIfErrorf(err)
}
