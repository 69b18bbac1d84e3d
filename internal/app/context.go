// Package app opens a workspace: config, logger, database and engine.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"qaworkbench/internal/automation"
	"qaworkbench/internal/config"
	"qaworkbench/internal/db"
	"qaworkbench/internal/engine"
	"qaworkbench/internal/logging"
	"qaworkbench/internal/migrate"
)

// EnvFile is the per-workspace dotenv file holding local identity.
const EnvFile = ".env"

// ValidatorKey is the dotenv key naming the person running validations.
const ValidatorKey = "QAWB_VALIDATOR"

type Options struct {
	// Validator overrides the validator name from the dotenv file and config.
	Validator string
	// LogLevel overrides config.log.level.
	LogLevel string
	Metrics  *automation.Metrics
}

// Workspace is an opened workspace. Close releases the database and logger.
type Workspace struct {
	Dir    string
	Config *config.Config
	Logger *zap.Logger
	Engine engine.Engine
	conn   *sql.DB
}

func (w *Workspace) Close() error {
	_ = w.Logger.Sync()
	return w.conn.Close()
}

// EnvPath returns the dotenv file of a workspace.
func EnvPath(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, EnvFile)
}

// ReadEnv returns the workspace dotenv values; a missing file yields none.
func ReadEnv(workspace string) (map[string]string, error) {
	values, err := godotenv.Read(EnvPath(workspace))
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	return values, err
}

// SetEnvValue writes key=value into the workspace dotenv file, keeping the
// other entries.
func SetEnvValue(workspace, key, value string) error {
	values, err := ReadEnv(workspace)
	if err != nil {
		return err
	}
	values[key] = value
	return godotenv.Write(values, EnvPath(workspace))
}

// ResolveValidator picks the validator name: the override, then the dotenv
// file, then the config.
func ResolveValidator(workspace, override string, cfg *config.Config) (string, error) {
	if v := strings.TrimSpace(override); v != "" {
		return v, nil
	}
	values, err := ReadEnv(workspace)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", EnvPath(workspace), err)
	}
	if v := strings.TrimSpace(values[ValidatorKey]); v != "" {
		return v, nil
	}
	return cfg.Validator, nil
}

// Open loads the workspace config, migrates its database, seeds server
// bookmarks and builds the engine.
func Open(ctx context.Context, workspace string, opts Options) (*Workspace, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	validator, err := ResolveValidator(workspace, opts.Validator, cfg)
	if err != nil {
		return nil, err
	}
	cfg.Validator = validator
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	applied, err := migrate.Migrate(ctx, conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if applied > 0 {
		log.Info("migrations applied", zap.Int("count", applied), zap.String("db", db.Path(workspace)))
	}
	e, err := engine.New(conn, cfg, engine.Options{
		Workspace: workspace,
		Logger:    log,
		Metrics:   opts.Metrics,
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	if _, err := e.SeedServers(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("seed servers: %w", err)
	}
	return &Workspace{Dir: workspace, Config: cfg, Logger: log, Engine: e, conn: conn}, nil
}
