package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"

	"github.com/hylla/reqtrack/internal/domain"
	"github.com/hylla/reqtrack/internal/i18n"
)

// Environment variables that override file configuration.
const (
	EnvConfigPath = "REQTRACK_CONFIG"
	EnvDBPath     = "REQTRACK_DB_PATH"
	EnvDBDSN      = "REQTRACK_DB_DSN"
	EnvJWTSecret  = "REQTRACK_JWT_SECRET"
	EnvDevMode    = "REQTRACK_DEV_MODE"
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

type Config struct {
	Database  DatabaseConfig  `toml:"database"`
	Logging   LoggingConfig   `toml:"logging"`
	Tracker   TrackerConfig   `toml:"tracker"`
	Identity  IdentityConfig  `toml:"identity"`
	Server    ServerConfig    `toml:"server"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

type DatabaseConfig struct {
	Driver Driver `toml:"driver"`
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

type LoggingConfig struct {
	Level string            `toml:"level"`
	File  LoggingFileConfig `toml:"file"`
}

// LoggingFileConfig controls the rotating file sink used in dev mode.
type LoggingFileConfig struct {
	Enabled    bool   `toml:"enabled"`
	Dir        string `toml:"dir"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

type TrackerConfig struct {
	Timezone             string   `toml:"timezone"`
	Locale               string   `toml:"locale"`
	ResolveRoles         []string `toml:"resolve_roles"`
	AllowAssigneeResolve bool     `toml:"allow_assignee_resolve"`
}

// IdentityConfig names the actor the CLI writes as.
type IdentityConfig struct {
	ActorID     string `toml:"actor_id"`
	DisplayName string `toml:"display_name"`
	Role        string `toml:"role"`
}

type ServerConfig struct {
	HTTPBind    string `toml:"http_bind"`
	APIEndpoint string `toml:"api_endpoint"`
	MCPEndpoint string `toml:"mcp_endpoint"`
	JWTSecret   string `toml:"jwt_secret"`
	JWTIssuer   string `toml:"jwt_issuer"`
}

type TelemetryConfig struct {
	StdoutTraces bool `toml:"stdout_traces"`
}

func Default(dbPath string) Config {
	return Config{
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   dbPath,
		},
		Logging: LoggingConfig{
			Level: "info",
			File: LoggingFileConfig{
				Enabled:    true,
				Dir:        ".reqtrack/log",
				MaxSizeMB:  16,
				MaxBackups: 8,
			},
		},
		Tracker: TrackerConfig{
			Timezone:     "Local",
			Locale:       "en",
			ResolveRoles: []string{string(domain.RoleAdmin), string(domain.RoleManager)},
		},
		Server: ServerConfig{
			HTTPBind:    "127.0.0.1:8080",
			APIEndpoint: "/api/v1",
			MCPEndpoint: "/mcp",
			JWTIssuer:   "reqtrack",
		},
	}
}

func Load(path string, defaults Config) (Config, error) {
	cfg := defaults
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if len(content) == 0 {
		return cfg, nil
	}

	if err := toml.Unmarshal(content, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode toml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadDotEnv reads KEY=VALUE pairs from a .env file into the process environment.
// Variables already set win; a missing file is not an error.
func LoadDotEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// ApplyEnv overlays environment overrides onto cfg.
func ApplyEnv(cfg Config, lookup func(string) (string, bool)) Config {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(EnvDBPath); ok && strings.TrimSpace(v) != "" {
		cfg.Database.Path = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvDBDSN); ok && strings.TrimSpace(v) != "" {
		cfg.Database.DSN = strings.TrimSpace(v)
		cfg.Database.Driver = DriverPostgres
	}
	if v, ok := lookup(EnvJWTSecret); ok && strings.TrimSpace(v) != "" {
		cfg.Server.JWTSecret = strings.TrimSpace(v)
	}
	return cfg
}

func (c Config) Validate() error {
	switch Driver(strings.TrimSpace(strings.ToLower(string(c.Database.Driver)))) {
	case DriverSQLite, "":
		if strings.TrimSpace(c.Database.Path) == "" {
			return errors.New("database path is required")
		}
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("invalid database.driver: %q", c.Database.Driver)
	}

	switch strings.TrimSpace(strings.ToLower(c.Logging.Level)) {
	case "", "debug", "info", "warn", "error", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %q", c.Logging.Level)
	}
	if c.Logging.File.MaxSizeMB < 0 {
		return errors.New("logging.file.max_size_mb must be >= 0")
	}
	if c.Logging.File.MaxBackups < 0 {
		return errors.New("logging.file.max_backups must be >= 0")
	}

	if _, err := c.Tracker.Location(); err != nil {
		return err
	}
	if _, err := i18n.New(c.Tracker.Locale); err != nil {
		return fmt.Errorf("invalid tracker.locale: %w", err)
	}
	for i, role := range c.Tracker.ResolveRoles {
		if !domain.IsValidRole(domain.Role(role)) {
			return fmt.Errorf("tracker.resolve_roles[%d] is not a known role: %q", i, role)
		}
	}

	if role := strings.TrimSpace(c.Identity.Role); role != "" && !domain.IsValidRole(domain.Role(role)) {
		return fmt.Errorf("invalid identity.role: %q", c.Identity.Role)
	}
	return nil
}

// Location resolves the configured tracker timezone.
func (t TrackerConfig) Location() (*time.Location, error) {
	name := strings.TrimSpace(t.Timezone)
	if name == "" || strings.EqualFold(name, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid tracker.timezone %q: %w", t.Timezone, err)
	}
	return loc, nil
}

// Roles returns the configured resolve roles as domain values.
func (t TrackerConfig) Roles() []domain.Role {
	out := make([]domain.Role, 0, len(t.ResolveRoles))
	for _, role := range t.ResolveRoles {
		out = append(out, domain.NormalizeRole(domain.Role(role)))
	}
	return out
}

// Actor returns the configured CLI identity, if any.
func (i IdentityConfig) Actor() (domain.Actor, bool) {
	id := strings.TrimSpace(i.ActorID)
	if id == "" {
		return domain.Actor{}, false
	}
	name := strings.TrimSpace(i.DisplayName)
	if name == "" {
		name = id
	}
	role := domain.NormalizeRole(domain.Role(i.Role))
	if role == "" {
		role = domain.RoleViewer
	}
	return domain.Actor{ID: id, DisplayName: name, Role: role}, true
}

func EnsureConfigDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
