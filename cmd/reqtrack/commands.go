package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hylla/reqtrack/internal/adapters/auth"
	"github.com/hylla/reqtrack/internal/adapters/server"
	"github.com/hylla/reqtrack/internal/adapters/server/common"
	"github.com/hylla/reqtrack/internal/adapters/server/httpapi"
	"github.com/hylla/reqtrack/internal/app"
	"github.com/hylla/reqtrack/internal/domain"
	"github.com/hylla/reqtrack/internal/telemetry"
	"github.com/spf13/cobra"
)

// withRuntime opens the runtime around one command body and logs its lifecycle.
func (c *cli) withRuntime(cmd *cobra.Command, name string, body func(context.Context, *runtime) error) (err error) {
	rt, err := c.open(cmd.Context(), name)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rt.close(); closeErr != nil && err == nil {
			_, _ = fmt.Fprintf(c.stderr, "warning: close runtime: %v\n", closeErr)
		}
	}()

	rt.logger.Debug("command flow start", "command", name)
	if err := body(cmd.Context(), rt); err != nil {
		rt.logger.Error("command flow failed", "command", name, "err", err)
		return fmt.Errorf("run %s command: %w", name, err)
	}
	rt.logger.Debug("command flow complete", "command", name)
	return nil
}

func (c *cli) pathsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config, data, and log paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := c.resolvePaths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", c.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", c.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "env: %s\n", paths.EnvPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(out, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

func (c *cli) timelineCommand() *cobra.Command {
	var (
		week    int
		actorID string
		format  string
	)
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Show the Monday-Friday activity timeline for a week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			return c.withRuntime(cmd, "timeline", func(ctx context.Context, rt *runtime) error {
				timeline, err := rt.svc.WeeklyTimeline(ctx, app.TimelineQuery{WeekOffset: week, ActorID: actorID})
				if err != nil {
					return err
				}
				return newReport(rt.svc.Localizer(), rt.svc.Location()).timeline(cmd.OutOrStdout(), f, timeline)
			})
		},
	}
	cmd.Flags().IntVar(&week, "week", 0, "week offset from the current week (-1 is last week)")
	cmd.Flags().StringVar(&actorID, "actor", "", "only show entries by this actor id")
	cmd.Flags().StringVar(&format, "format", string(formatText), "output format: text|markdown|pretty|json")
	return cmd
}

func (c *cli) blockersCommand() *cobra.Command {
	var (
		teamID     string
		fiscalYear int
		format     string
	)
	cmd := &cobra.Command{
		Use:   "blockers",
		Short: "List requests with an open blocker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f, err := parseFormat(format)
			if err != nil {
				return err
			}
			if fiscalYear < 0 {
				return fmt.Errorf("--fiscal-year must not be negative")
			}
			return c.withRuntime(cmd, "blockers", func(ctx context.Context, rt *runtime) error {
				blockers, err := rt.svc.ActiveBlockers(ctx, app.ActiveBlockersQuery{
					Scope: domain.RequestScope{TeamID: strings.TrimSpace(teamID), FiscalYear: fiscalYear},
				})
				if err != nil {
					return err
				}
				return newReport(rt.svc.Localizer(), rt.svc.Location()).blockers(cmd.OutOrStdout(), f, blockers)
			})
		},
	}
	cmd.Flags().StringVar(&teamID, "team", "", "restrict to one team")
	cmd.Flags().IntVar(&fiscalYear, "fiscal-year", 0, "restrict to one fiscal year")
	cmd.Flags().StringVar(&format, "format", string(formatText), "output format: text|markdown|pretty|json")
	return cmd
}

func (c *cli) resolveCommand() *cobra.Command {
	var entryID string
	cmd := &cobra.Command{
		Use:   "resolve <request-id>",
		Short: "Resolve the open blocker of a request as the configured identity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withRuntime(cmd, "resolve", func(ctx context.Context, rt *runtime) error {
				entry, err := rt.svc.ResolveBlocker(rt.actorContext(ctx), app.ResolveBlockerInput{
					RequestID:      args[0],
					BlockerEntryID: entryID,
				})
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %s\n", entry.ID, entry.RequestID, entry.Description)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&entryID, "entry", "", "id of the blocker_reported entry to resolve")
	return cmd
}

func (c *cli) logCommand() *cobra.Command {
	var (
		kind    string
		message string
		from    string
		to      string
		meta    []string
	)
	cmd := &cobra.Command{
		Use:   "log <request-id>",
		Short: "Record an activity entry for a request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			metadata, err := parseMetadata(meta)
			if err != nil {
				return err
			}
			activityType := domain.NormalizeActivityType(domain.ActivityType(kind))
			return c.withRuntime(cmd, "log", func(ctx context.Context, rt *runtime) error {
				ctx = rt.actorContext(ctx)
				requestID := args[0]

				var (
					entry domain.ActivityEntry
					err   error
				)
				switch {
				case activityType == domain.ActivityStatusChange && len(metadata) == 0:
					entry, err = rt.svc.ChangeStatus(ctx, requestID, from, to)
				case activityType == domain.ActivityBlockerReported && len(metadata) == 0:
					entry, err = rt.svc.ReportBlocker(ctx, requestID, message)
				case activityType == domain.ActivityCommentAdded && len(metadata) == 0:
					entry, err = rt.svc.AddComment(ctx, requestID, message)
				default:
					entry, err = rt.svc.RecordActivity(ctx, app.RecordActivityInput{
						RequestID:   requestID,
						Type:        activityType,
						Description: message,
						Metadata:    metadata,
					})
				}
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", entry.ID, entry.RequestID, entry.Type)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&kind, "type", string(domain.ActivityCommentAdded), "activity type")
	cmd.Flags().StringVarP(&message, "message", "m", "", "activity description")
	cmd.Flags().StringVar(&from, "from", "", "previous status for status_change")
	cmd.Flags().StringVar(&to, "to", "", "new status for status_change")
	cmd.Flags().StringArrayVar(&meta, "meta", nil, "metadata key=value (repeatable)")
	return cmd
}

func (c *cli) exportCommand() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON snapshot of requests, users, and activity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime(cmd, "export", func(ctx context.Context, rt *runtime) error {
				snap, err := rt.svc.ExportSnapshot(ctx)
				if err != nil {
					return fmt.Errorf("export snapshot: %w", err)
				}
				encoded, err := json.MarshalIndent(snap, "", "  ")
				if err != nil {
					return fmt.Errorf("encode snapshot json: %w", err)
				}
				encoded = append(encoded, '\n')

				if outPath == "-" {
					if _, err := cmd.OutOrStdout().Write(encoded); err != nil {
						return fmt.Errorf("write snapshot to stdout: %w", err)
					}
					return nil
				}
				if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
					return fmt.Errorf("create export output dir: %w", err)
				}
				if err := os.WriteFile(outPath, encoded, 0o644); err != nil {
					return fmt.Errorf("write export file: %w", err)
				}
				rt.logger.Info("snapshot exported", "path", outPath, "entries", len(snap.Entries))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	return cmd
}

func (c *cli) importCommand() *cobra.Command {
	var inPath string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load a JSON snapshot; existing entries are skipped",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(inPath) == "" {
				return fmt.Errorf("--in is required")
			}
			content, err := os.ReadFile(inPath)
			if err != nil {
				return fmt.Errorf("read import file: %w", err)
			}
			var snap app.Snapshot
			if err := json.Unmarshal(content, &snap); err != nil {
				return fmt.Errorf("decode snapshot json: %w", err)
			}
			return c.withRuntime(cmd, "import", func(ctx context.Context, rt *runtime) error {
				result, err := rt.svc.ImportSnapshot(ctx, snap)
				if err != nil {
					return fmt.Errorf("import snapshot: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "requests: %d\nusers: %d\nentries_added: %d\nentries_skipped: %d\n",
					result.Requests, result.Users, result.EntriesAdded, result.EntriesSkipped)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&inPath, "in", "", "input snapshot JSON file")
	return cmd
}

func (c *cli) tokenCommand() *cobra.Command {
	var (
		userID string
		ttl    time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for a directory user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(userID) == "" {
				return fmt.Errorf("--user is required")
			}
			return c.withRuntime(cmd, "token", func(ctx context.Context, rt *runtime) error {
				signer, err := auth.NewSigner(rt.cfg.Server.JWTSecret, rt.cfg.Server.JWTIssuer, nil)
				if err != nil {
					return err
				}
				user, err := rt.store.FindUser(ctx, strings.TrimSpace(userID))
				if err != nil {
					return fmt.Errorf("find user %q: %w", userID, err)
				}
				token, err := signer.Issue(user, ttl)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "directory user id the token names")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func (c *cli) serveCommand() *cobra.Command {
	var bind string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and the MCP endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withRuntime(cmd, "serve", func(ctx context.Context, rt *runtime) error {
				exporter := "none"
				if rt.cfg.Telemetry.StdoutTraces {
					exporter = "stdout"
				}
				shutdown, err := telemetry.Init(ctx, telemetry.Config{
					ServiceName:    "reqtrack",
					ServiceVersion: version,
					Exporter:       exporter,
					Writer:         c.stderr,
				})
				if err != nil {
					return fmt.Errorf("init telemetry: %w", err)
				}
				defer func() {
					flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					if err := shutdown(flushCtx); err != nil {
						rt.logger.Warn("telemetry shutdown failed", "err", err)
					}
				}()

				adapter := common.NewAppServiceAdapter(rt.svc)
				deps := server.Dependencies{
					Tracker: adapter,
					Actors:  adapter,
					Store:   rt.store,
				}
				verifier, err := tokenVerifier(rt.cfg.Server.JWTSecret, rt.cfg.Server.JWTIssuer)
				if err != nil {
					return err
				}
				if verifier == nil {
					rt.logger.Warn("no jwt secret configured; api writes run without a session actor")
				}
				deps.Verifier = verifier

				cfg := server.Config{
					HTTPBind:      rt.cfg.Server.HTTPBind,
					APIEndpoint:   rt.cfg.Server.APIEndpoint,
					MCPEndpoint:   rt.cfg.Server.MCPEndpoint,
					ServerName:    "reqtrack",
					ServerVersion: version,
				}
				if strings.TrimSpace(bind) != "" {
					cfg.HTTPBind = strings.TrimSpace(bind)
				}
				rt.logger.Info("serving", "bind", cfg.HTTPBind, "api", cfg.APIEndpoint, "mcp", cfg.MCPEndpoint)
				return server.Run(ctx, cfg, deps)
			})
		},
	}
	cmd.Flags().StringVar(&bind, "http", "", "listen address (overrides server.http_bind)")
	return cmd
}

// tokenVerifier returns a verifier for secret, or nil when no secret is set.
func tokenVerifier(secret, issuer string) (httpapi.TokenVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, nil
	}
	signer, err := auth.NewSigner(secret, issuer, nil)
	if err != nil {
		return nil, err
	}
	return signer, nil
}

// parseMetadata turns repeated key=value flags into an entry metadata map.
func parseMetadata(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --meta %q: want key=value", pair)
		}
		out[key] = strings.TrimSpace(value)
	}
	return out, nil
}
