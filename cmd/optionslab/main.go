// Command optionslab prices NIFTY options and backtests option strategies.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"nifty-options-lab/internal/cli"
	"nifty-options-lab/internal/config"
	"nifty-options-lab/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	configDir := configDirFromArgs(os.Args[1:])
	cfg, err := config.Load(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	if configDir == "" {
		configDir = config.DefaultConfigDir()
	}

	logger := logging.NewLoggerWithConfig(cfg.Logging)
	app := cli.NewApp(cfg, configDir, logger)
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close store")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd(app).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// configDirFromArgs finds --config before cobra parses the flags, since the
// configuration is needed to build the commands.
func configDirFromArgs(args []string) string {
	for i, a := range args {
		switch {
		case a == "--":
			return ""
		case a == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(a, "--config="):
			return strings.TrimPrefix(a, "--config=")
		}
	}
	return ""
}
