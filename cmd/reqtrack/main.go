package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	"github.com/hylla/reqtrack/internal/adapters/storage/postgres"
	"github.com/hylla/reqtrack/internal/adapters/storage/sqlite"
	"github.com/hylla/reqtrack/internal/app"
	"github.com/hylla/reqtrack/internal/config"
	"github.com/hylla/reqtrack/internal/i18n"
	"github.com/hylla/reqtrack/internal/logging"
	"github.com/hylla/reqtrack/internal/platform"
	"github.com/spf13/cobra"
)

// version is set at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(os.Stdout, os.Stderr)
	if err := fang.Execute(ctx, root, fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// run executes the command tree against args with explicit output streams.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stdout, stderr)
	root.SetArgs(args)
	root.SetIn(strings.NewReader(""))
	root.SilenceErrors = true
	return root.ExecuteContext(ctx)
}

// store is the repository surface the CLI needs from either backend.
type store interface {
	app.Repository
	Ping(context.Context) error
	Close() error
}

// cli carries the global flags and the lazily opened runtime.
type cli struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	dbPath     string
	appName    string
	devMode    bool

	lookupEnv func(string) (string, bool)
}

// runtime is the wired application for one command invocation.
type runtime struct {
	cfg        config.Config
	configPath string
	paths      platform.Paths
	logger     *logging.Logger
	store      store
	svc        *app.Service
}

// newRootCommand builds the reqtrack command tree.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr, lookupEnv: os.LookupEnv}

	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv(config.EnvDevMode); ok {
		defaultDevMode = envDev
	}
	defaultApp := "reqtrack"
	if envApp := strings.TrimSpace(os.Getenv("REQTRACK_APP_NAME")); envApp != "" {
		defaultApp = envApp
	}

	root := &cobra.Command{
		Use:           "reqtrack",
		Short:         "Weekly activity timelines and blocker tracking for team requests",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to config TOML")
	flags.StringVar(&c.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&c.appName, "app", defaultApp, "application name for config/data path resolution")
	flags.BoolVar(&c.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		c.pathsCommand(),
		c.timelineCommand(),
		c.blockersCommand(),
		c.resolveCommand(),
		c.logCommand(),
		c.exportCommand(),
		c.importCommand(),
		c.tokenCommand(),
		c.serveCommand(),
	)
	return root
}

// resolvePaths returns the platform paths for the selected app and mode.
func (c *cli) resolvePaths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: c.appName,
		DevMode: c.devMode,
	})
}

// open loads configuration, starts logging, and opens the configured store.
func (c *cli) open(ctx context.Context, command string) (*runtime, error) {
	paths, err := c.resolvePaths()
	if err != nil {
		return nil, err
	}
	if err := config.LoadDotEnv(paths.EnvPath); err != nil {
		return nil, err
	}

	configPath := strings.TrimSpace(c.configPath)
	if configPath == "" {
		if envPath, ok := c.lookupEnv(config.EnvConfigPath); ok && strings.TrimSpace(envPath) != "" {
			configPath = strings.TrimSpace(envPath)
		} else {
			configPath = paths.ConfigPath
		}
	}

	cfg, err := config.Load(configPath, config.Default(paths.DBPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	cfg = config.ApplyEnv(cfg, c.lookupEnv)
	if dbPath := strings.TrimSpace(c.dbPath); dbPath != "" {
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.Path = dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	logger, err := logging.New(c.stderr, logging.Options{
		AppName:     c.appName,
		DevMode:     c.devMode,
		FallbackDir: paths.LogDir,
		Config:      cfg.Logging,
	})
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "command", command)
	if filePath := logger.FilePath(); filePath != "" {
		logger.Debug("dev file logging enabled", "path", filePath)
	}

	rt := &runtime{cfg: cfg, configPath: configPath, paths: paths, logger: logger}
	loc, err := cfg.Tracker.Location()
	if err != nil {
		_ = rt.close()
		return nil, err
	}
	catalog, err := i18n.New(cfg.Tracker.Locale)
	if err != nil {
		_ = rt.close()
		return nil, err
	}

	rt.store, err = openStore(ctx, cfg.Database, loc, logger)
	if err != nil {
		_ = rt.close()
		return nil, err
	}

	rt.svc = app.NewService(rt.store, uuid.NewString, nil, app.ServiceConfig{
		Location:             loc,
		ResolveRoles:         cfg.Tracker.Roles(),
		AllowAssigneeResolve: cfg.Tracker.AllowAssigneeResolve,
		Localizer:            catalog,
		Logger:               logger,
	})
	logger.Debug("application service initialized", "timezone", loc.String(), "locale", catalog.Locale())
	return rt, nil
}

// openStore opens the repository selected by the database config.
func openStore(ctx context.Context, cfg config.DatabaseConfig, loc *time.Location, logger *logging.Logger) (store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		logger.Info("opening postgres repository")
		repo, err := postgres.Open(ctx, cfg.DSN, loc)
		if err != nil {
			logger.Error("postgres open failed", "err", err)
			return nil, fmt.Errorf("open postgres repository: %w", err)
		}
		return repo, nil
	default:
		logger.Info("opening sqlite repository", "db_path", cfg.Path)
		repo, err := sqlite.Open(cfg.Path, sqlite.WithLocation(loc))
		if err != nil {
			logger.Error("sqlite open failed", "db_path", cfg.Path, "err", err)
			return nil, fmt.Errorf("open sqlite repository: %w", err)
		}
		return repo, nil
	}
}

// close releases the store and the log sinks.
func (rt *runtime) close() error {
	if rt == nil {
		return nil
	}
	var errs []error
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			rt.logger.Warn("store close failed", "err", err)
			errs = append(errs, err)
		}
	}
	if rt.logger != nil {
		if err := rt.logger.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// actorContext attaches the configured CLI identity to ctx.
//
// A directory entry for the identity wins over the role written in config.
func (rt *runtime) actorContext(ctx context.Context) context.Context {
	actor, ok := rt.cfg.Identity.Actor()
	if !ok {
		return ctx
	}
	if known, err := rt.svc.LookupActor(ctx, actor.ID); err == nil {
		actor = known
	} else if !errors.Is(err, app.ErrNotFound) {
		rt.logger.Warn("identity lookup failed", "actor_id", actor.ID, "err", err)
	}
	return app.WithActor(ctx, actor)
}

// parseBoolEnv parses a boolean environment variable; ok is false when unset or malformed.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
