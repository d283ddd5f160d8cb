package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/hpungsan/herd/internal/campaign"
	"github.com/hpungsan/herd/internal/config"
	"github.com/hpungsan/herd/internal/db"
	"github.com/hpungsan/herd/internal/mcp"
	"github.com/hpungsan/herd/internal/ops"
	"github.com/hpungsan/herd/internal/remote"
	"github.com/hpungsan/herd/internal/sink"
	"github.com/hpungsan/herd/internal/web"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"token": true, "account": true, "filter": true, "ledger": true,
	"run": true, "serve": true,
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
	return false // Default → MCP server
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
   _                   _
  | |__   ___ _ __ __| |
  | '_ \ / _ \ '__/ _' |
  | | | |  __/ | | (_| |
  |_| |_|\___|_|  \__,_|

  Multi-account campaign runner

  Usage: herd <command> [options]
         herd --help

  MCP server mode requires piped input.`)
}

// newLogger writes structured logs to stderr; stdout belongs to MCP and JSON output.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if cfg != nil {
		level = cfg.SlogLevel()
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newRemoteClient builds the platform client from configuration.
func newRemoteClient(cfg *config.Config, logger *slog.Logger) (*remote.Client, error) {
	client, err := remote.New(remote.Options{
		BaseURL:     cfg.APIBaseURL,
		TokenHeader: cfg.TokenHeader,
		UserAgent:   cfg.UserAgent,
		Locale:      cfg.Locale,
		Timeout:     cfg.RequestTimeout(),
		PartDelay:   config.Duration(cfg.MessagePartDelayMS),
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set api_base_url in ~/.herd/config.json or HERD_API_BASE_URL)", err)
	}
	return client, nil
}

// newManager builds a campaign manager reporting to s.
func newManager(database *sql.DB, cfg *config.Config, client *remote.Client, s sink.Sink, logger *slog.Logger) *campaign.Manager {
	return campaign.NewManager(
		db.NewStore(database),
		&ops.Dialer{DB: database, Client: client, Locale: cfg.Locale},
		s,
		campaign.SettingsFromConfig(cfg),
		logger,
	)
}

// warnUnknownDisabled logs disabled tool and type names that match nothing.
func warnUnknownDisabled(cfg *config.Config, logger *slog.Logger) {
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		logger.Warn("unknown tools in disabled_tools", "module", "main", "tools", unknown)
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		logger.Warn("unknown types in disabled_types", "module", "main", "types", unknown)
	}
}

// runMCP serves MCP over stdio. Campaigns report to an in-memory board that
// campaign_status and the optional dashboard read.
func runMCP(database *sql.DB, cfg *config.Config, logger *slog.Logger) error {
	client, err := newRemoteClient(cfg, logger)
	if err != nil {
		return err
	}
	board := sink.NewBoard()
	manager := newManager(database, cfg, client, board, logger)
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := manager.Shutdown(ctx); err != nil {
			logger.Warn("campaigns did not stop in time", "module", "main", "error", err)
		}
	}()

	if cfg.DashboardAddr != "" {
		srv, err := web.NewServer(database, cfg, web.Deps{Manager: manager, Board: board, Logger: logger}, Version, cfg.DashboardAddr)
		if err != nil {
			return err
		}
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := web.Run(ctx, srv, logger); err != nil {
				logger.Error("dashboard stopped", "module", "web", "error", err)
			}
		}()
	}

	return mcp.Run(database, cfg, mcp.Deps{Manager: manager, Board: board, Client: client}, Version)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion() {
		app := newCLIApp(nil, nil, newLogger(nil))
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: could not determine home directory: %v\n", err)
		os.Exit(1)
	}
	workDir, _ := os.Getwd()

	baseDir := filepath.Join(homeDir, ".herd")

	cfg, err := config.LoadWithEnv(baseDir, workDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	database, err := db.Init(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()
	db.ConfigurePool(database, cfg)

	// CLI mode: known subcommand
	if isCLIMode() {
		app := newCLIApp(database, cfg, logger)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			database.Close()
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'herd --help' for usage.\n")
		database.Close()
		os.Exit(1)
	}

	// MCP server mode (default)
	warnUnknownDisabled(cfg, logger)
	if err := runMCP(database, cfg, logger); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		database.Close()
		os.Exit(1)
	}
}
