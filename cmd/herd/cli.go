package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/herd/internal/campaign"
	"github.com/hpungsan/herd/internal/config"
	"github.com/hpungsan/herd/internal/errors"
	"github.com/hpungsan/herd/internal/ops"
	"github.com/hpungsan/herd/internal/remote"
	"github.com/hpungsan/herd/internal/sink"
	"github.com/hpungsan/herd/internal/web"
)

// maxStdinBytes bounds token values read from stdin.
const maxStdinBytes = ops.MaxTokenLength + 1

var ownerFlag = &cli.StringFlag{Name: "owner", Aliases: []string{"o"}, Value: "default", Usage: "Owner of tokens and ledger"}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config, logger *slog.Logger) *cli.App {
	app := &cli.App{
		Name:    "herd",
		Usage:   "Multi-account campaign runner",
		Version: Version,
		Commands: []*cli.Command{
			tokenCmd(db, cfg, logger),
			accountCmd(db),
			filterCmd(db),
			ledgerCmd(db),
			runCmd(db, cfg, logger),
			serveCmd(db, cfg, logger),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// tokenCmd groups the token subcommands.
func tokenCmd(db *sql.DB, cfg *config.Config, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Manage access tokens",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Verify and store an access token (argument or stdin)",
				ArgsUsage: "[token]",
				Flags: []cli.Flag{
					ownerFlag,
					&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "Display name (default: profile name)"},
				},
				Action: func(c *cli.Context) error {
					value := c.Args().First()
					if value == "" && stdinHasData() {
						text, err := readStdin(maxStdinBytes)
						if err != nil {
							return outputError(errors.NewInvalidRequest(err.Error()))
						}
						value = text
					}
					if value == "" {
						return outputError(errors.NewInvalidRequest("token must be given as an argument or piped via stdin"))
					}

					client, err := newRemoteClient(cfg, logger)
					if err != nil {
						return outputError(errors.NewInvalidRequest(err.Error()))
					}

					output, err := ops.AddToken(c.Context, db, client, ops.AddTokenInput{
						Owner:  c.String("owner"),
						Value:  value,
						Name:   c.String("name"),
						Locale: cfg.Locale,
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "list",
				Usage: "List tokens with masked values",
				Flags: []cli.Flag{ownerFlag},
				Action: func(c *cli.Context) error {
					output, err := ops.ListTokens(c.Context, db, c.String("owner"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			setActiveCmd(db, "activate", "Include a token in campaigns", true),
			setActiveCmd(db, "deactivate", "Exclude a token from campaigns", false),
			{
				Name:      "delete",
				Usage:     "Delete a token with its filter and device identity",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{ownerFlag},
				Action: func(c *cli.Context) error {
					output, err := ops.DeleteToken(c.Context, db, c.String("owner"), c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

func setActiveCmd(db *sql.DB, name, usage string, active bool) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<id>",
		Flags:     []cli.Flag{ownerFlag},
		Action: func(c *cli.Context) error {
			output, err := ops.SetActive(c.Context, db, ops.SetActiveInput{
				Owner:  c.String("owner"),
				ID:     c.Args().First(),
				Active: active,
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// accountCmd selects the current account.
func accountCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "account",
		Usage: "Manage the current account",
		Subcommands: []*cli.Command{
			{
				Name:      "select",
				Usage:     "Select the account used by single-account campaigns",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{ownerFlag},
				Action: func(c *cli.Context) error {
					output, err := ops.SelectAccount(c.Context, db, c.String("owner"), c.Args().First())
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// filterCmd groups the filter subcommands.
func filterCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "filter",
		Usage: "Manage search filters applied by requests campaigns",
		Subcommands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Store a search filter",
				Flags: []cli.Flag{
					ownerFlag,
					&cli.StringFlag{Name: "token", Usage: "Token id (default: every token of the owner)"},
					&cli.IntFlag{Name: "gender", Usage: "Gender filter as the platform encodes it"},
					&cli.IntFlag{Name: "birth-from", Usage: "Oldest birth year"},
					&cli.IntFlag{Name: "birth-to", Usage: "Youngest birth year"},
					&cli.IntFlag{Name: "distance", Usage: "Maximum distance"},
					&cli.StringFlag{Name: "languages", Usage: "Comma-separated language codes"},
					&cli.StringFlag{Name: "nationality", Usage: "Two-letter nationality code"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.SetFilter(c.Context, db, ops.SetFilterInput{
						Owner:   c.String("owner"),
						TokenID: c.String("token"),
						Filter: remote.Filter{
							GenderType:      c.Int("gender"),
							BirthYearFrom:   c.Int("birth-from"),
							BirthYearTo:     c.Int("birth-to"),
							Distance:        c.Int("distance"),
							LanguageCodes:   c.String("languages"),
							NationalityCode: c.String("nationality"),
						},
					})
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "get",
				Usage: "Show a token's stored filter",
				Flags: []cli.Flag{
					ownerFlag,
					&cli.StringFlag{Name: "token", Usage: "Token id (default: the current account)"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.GetFilter(c.Context, db, c.String("owner"), c.String("token"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// ledgerCmd groups the ledger subcommands.
func ledgerCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "ledger",
		Usage: "Inspect or clear contacted targets",
		Subcommands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Count contacted targets per category",
				Flags: []cli.Flag{ownerFlag},
				Action: func(c *cli.Context) error {
					output, err := ops.LedgerStats(c.Context, db, c.String("owner"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
			{
				Name:  "clear",
				Usage: "Forget contacted targets",
				Flags: []cli.Flag{
					ownerFlag,
					&cli.StringFlag{Name: "category", Aliases: []string{"c"}, Usage: "request|chatroom|lounge (default: all)"},
				},
				Action: func(c *cli.Context) error {
					output, err := ops.ClearLedger(c.Context, db, c.String("owner"), c.String("category"))
					if err != nil {
						return outputError(err)
					}
					return outputJSON(output)
				},
			},
		},
	}
}

// runCmd runs one campaign in the foreground. Progress is printed to stderr
// and the final snapshot to stdout. SIGINT stops the campaign gracefully.
func runCmd(db *sql.DB, cfg *config.Config, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Run a campaign in the foreground",
		ArgsUsage: "<requests|chatroom|lounge|unsubscribe|countries>",
		Flags: []cli.Flag{
			ownerFlag,
			&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "Message for chatroom and lounge campaigns; commas split it"},
			&cli.BoolFlag{Name: "single", Usage: "Run only on the current account"},
		},
		Action: func(c *cli.Context) error {
			feature, err := campaign.ParseFeature(c.Args().First())
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			client, err := newRemoteClient(cfg, logger)
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			manager := newManager(db, cfg, client, sink.NewWriter(c.App.ErrWriter), logger)
			handle, err := manager.Start(c.Context, campaign.StartInput{
				Owner:         c.String("owner"),
				Feature:       feature,
				Message:       c.String("message"),
				SingleAccount: c.Bool("single"),
			})
			if err != nil {
				return outputError(err)
			}

			sigCtx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				select {
				case <-sigCtx.Done():
					handle.Stop()
				case <-handle.Done():
				}
			}()

			snap, err := handle.Wait(context.Background())
			if err != nil {
				return outputError(errors.NewInternal(err))
			}
			return outputJSON(snap)
		},
	}
}

// serveCmd runs the web dashboard until SIGINT.
func serveCmd(db *sql.DB, cfg *config.Config, logger *slog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the web dashboard",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Value: "127.0.0.1:8787", Usage: "Listen address"},
		},
		Action: func(c *cli.Context) error {
			addr := c.String("addr")
			if !c.IsSet("addr") && cfg.DashboardAddr != "" {
				addr = cfg.DashboardAddr
			}
			client, err := newRemoteClient(cfg, logger)
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}

			board := sink.NewBoard()
			manager := newManager(db, cfg, client, board, logger)
			srv, err := web.NewServer(db, cfg, web.Deps{Manager: manager, Board: board, Logger: logger}, Version, addr)
			if err != nil {
				return outputError(errors.NewInternal(err))
			}

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()
			runErr := web.Run(ctx, srv, logger)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), config.Duration(cfg.ReporterGraceMS)+10*time.Second)
			defer cancel()
			if err := manager.Shutdown(shutdownCtx); err != nil {
				logger.Warn("campaigns did not stop in time", "module", "main", "error", err)
			}
			if runErr != nil {
				return outputError(errors.NewInternal(runErr))
			}
			return nil
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if herdErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", herdErr.Code, herdErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// readStdin reads from stdin with a size limit to prevent OOM.
func readStdin(maxBytes int) (string, error) {
	data, err := io.ReadAll(io.LimitReader(os.Stdin, int64(maxBytes)+1))
	if err != nil {
		return "", err
	}
	if len(data) > maxBytes {
		return "", fmt.Errorf("stdin exceeds %d bytes", maxBytes)
	}
	return strings.TrimSpace(string(data)), nil
}
