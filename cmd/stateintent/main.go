package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hpungsan/stateintent/internal/audit"
	"github.com/hpungsan/stateintent/internal/config"
	"github.com/hpungsan/stateintent/internal/convert"
	"github.com/hpungsan/stateintent/internal/logging"
	"github.com/hpungsan/stateintent/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"serve": true, "convert": true, "validate": true,
	"presets": true, "mcp": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	if arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" {
		return true
	}
	return false
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
  stateintent

  Turn customer situations into state-intent records

  Usage: stateintent <command> [options]
         stateintent --help

  MCP server mode requires piped input.`)
}

// loadConfig reads ~/.stateintent/config.json merged with the nearest repo
// config above the working directory.
func loadConfig() (*config.Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("could not determine home directory: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = ""
	}
	return config.LoadWithRepo(filepath.Join(homeDir, ".stateintent"), cwd)
}

// newController opens the configured audit sink and builds the controller
// around it. The returned function releases the sink.
func newController(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*convert.Controller, func() error, error) {
	sink, closeSink, err := audit.Open(ctx, cfg.AuditBackend)
	if err != nil {
		return nil, nil, err
	}
	conv, err := convert.New(
		convert.WithAuditSink(sink),
		convert.WithMaxRetries(cfg.Retries()),
		convert.WithMaxInputChars(cfg.MaxInputChars),
		convert.WithLogger(logger),
	)
	if err != nil {
		_ = closeSink()
		return nil, nil, err
	}
	return conv, closeSink, nil
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before loading config
	if isHelpOrVersion() {
		app := newCLIApp(config.DefaultConfig(), zap.NewNop())
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(cfg, logger)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'stateintent --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := runMCP(cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func runMCP(cfg *config.Config, logger *zap.Logger) error {
	conv, closeSink, err := newController(context.Background(), cfg, logger)
	if err != nil {
		return err
	}
	defer closeSink()
	return mcp.Run(conv, cfg, Version, logger)
}
