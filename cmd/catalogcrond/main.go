// Command catalogcrond runs the catalogcron routine scheduler. It is the
// service entrypoint; `catalogcron daemon` is equivalent for interactive use.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"catalogcron/internal/config"
	"catalogcron/internal/daemonrun"
)

func main() {
	if err := run(os.Args[1:]); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("catalogcrond", flag.ContinueOnError)
	configPath := fs.String("config", "", "Configuration file path")
	envFile := fs.String("env-file", ".env", "Optional dotenv file loaded before the configuration")
	logLevel := fs.String("log-level", "", "Override logging.level")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", *envFile, err)
		}
	}

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	return daemonrun.Run(context.Background(), cfg, daemonrun.Options{LogLevel: *logLevel})
}
