package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
	_ "time/tzdata"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Joseda-hg/taskflow/internal/config"
	"github.com/Joseda-hg/taskflow/internal/db"
	"github.com/Joseda-hg/taskflow/internal/load"
)

var (
	configPathFlag string
	dbPathFlag     string
	verbose        bool

	env *app
)

// app is what every subcommand shares once the root pre-run finished.
type app struct {
	cfg     config.Config
	cfgPath string
	store   *db.Store
	logger  *zap.Logger
	loc     *time.Location
}

func (a *app) analyzer() *load.Analyzer {
	return load.NewAnalyzer(a.store, a.logger, a.loc)
}

var rootCmd = &cobra.Command{
	Use:   "taskflow",
	Short: "Personal task backend with a conversational planning agent",
	Long: `taskflow keeps your tasks, daily load and memory in SQLite and lets an
LLM agent create, update and delete them from plain language.

Run without arguments to start the HTTP server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd)
		if err != nil {
			return err
		}
		env = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if env != nil {
			_ = env.logger.Sync()
			_ = env.store.DB.Close()
		}
	},
	RunE: runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPathFlag, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbPathFlag, "db", "", "sqlite db path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd, chatCmd, tipsCmd, loadCmd, calendarCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command) (*app, error) {
	cfgPath, err := resolveConfigPath(configPathFlag)
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}
	if dbPathFlag != "" {
		cfg.DBPath = dbPathFlag
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(filepath.Dir(cfgPath), "taskflow.db")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgPath, err)
	}
	if _, err := os.Stat(cfgPath); errors.Is(err, fs.ErrNotExist) {
		// Seed from the defaults: cfg already carries env overrides and keys.
		seed := config.Default()
		seed.DBPath = cfg.DBPath
		if err := config.Save(cfgPath, seed); err != nil {
			return nil, err
		}
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if _, err := store.EnsureProfile(cmd.Context(), cfg.OwnerID, cfg.Timezone); err != nil {
		_ = store.DB.Close()
		return nil, fmt.Errorf("ensure profile: %w", err)
	}

	logger.Debug("configured",
		zap.String("config", cfgPath),
		zap.String("db", cfg.DBPath),
		zap.Int64("owner", cfg.OwnerID),
	)
	return &app{cfg: cfg, cfgPath: cfgPath, store: store, logger: logger, loc: loc}, nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("logging.level: %w", err)
		}
		zc.Level = level
	}
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	if cfg.Format == "console" {
		zc.Encoding = "console"
		zc.EncoderConfig = zap.NewDevelopmentEncoderConfig()
	}
	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func resolveConfigPath(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	return config.DefaultConfigPath()
}

func openStore(dbPath string) (*db.Store, error) {
	if dbPath != ":memory:" {
		if err := config.EnsureDir(dbPath); err != nil {
			return nil, err
		}
	}

	sqlDB, err := db.Open(dbPath)
	if err != nil {
		return nil, err
	}

	return db.NewStore(sqlDB), nil
}
