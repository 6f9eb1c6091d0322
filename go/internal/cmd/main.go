package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

var (
	version = "dev"
	cli     struct {
		Play   PlayCmd   `cmd:"" help:"Play rounds against the bot interactively"`
		Status StatusCmd `cmd:"" help:"Import the active round from the ledger and print it"`
		Serve  ServeCmd  `cmd:"" help:"Serve the session view over HTTP and WebSocket"`

		Config  string `help:"Path to a YAML config file." type:"path"`
		Debug   bool   `help:"Enable debug mode."`
		Version kong.VersionFlag
	}
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := kong.Parse(&cli,
		kong.Name("chicken"),
		kong.Description("Cosmic Chicken session client."),
		kong.Vars{
			"version": version,
		},
		kong.BindTo(ctx, (*context.Context)(nil)))
	err := cmd.Run(&Globals{Debug: cli.Debug, ConfigFile: cli.Config, Version: version})
	cmd.FatalIfErrorf(err)
}
