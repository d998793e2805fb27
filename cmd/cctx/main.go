package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/afero"

	"github.com/example/cctx/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	homeDir := os.Getenv("CCTX_HOME")
	if homeDir == "" {
		var err error
		homeDir, err = os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	workDir, err := os.Getwd()
	if err != nil {
		workDir = "."
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if os.Getenv("CCTX_DEBUG") == "1" {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	deps := cli.Deps{
		Fs:          afero.NewOsFs(),
		HomeDir:     homeDir,
		WorkDir:     workDir,
		Prompter:    cli.NewPromptUI(),
		Stdin:       os.Stdin,
		Logger:      logger,
		Interactive: os.Getenv("CCTX_INTERACTIVE") == "1",
	}

	cmd := cli.NewRootCommand(deps, os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return cli.ExitCode(err)
	}
	return 0
}
