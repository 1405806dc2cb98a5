package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Tosin-A/Cora-Lockin-sub002/internal/api"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/cache"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/genai"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/ledger"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/lockfile"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/patterns"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/router"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/scheduler"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/store"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/thread"
	"github.com/Tosin-A/Cora-Lockin-sub002/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for Cora state data
	DefaultStateDir = "/var/lib/cora"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "cora.db"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	// SQLite gives no cross-process protection, so a state-directory lock
	// keeps a second instance from racing the one-active-thread invariant.
	if !isPostgresDSN(*flags.dbDSN) {
		lock, err := lockfile.Acquire(*flags.stateDir)
		if err != nil {
			slog.Error("Failed to lock state directory", "error", err)
			os.Exit(1)
		}
		defer lock.Release()
	}

	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	client, err := genai.NewClient(buildGenAIOptions(flags)...)
	if err != nil {
		slog.Error("Failed to initialize dialogue client", "error", err)
		os.Exit(1)
	}

	fingerprints := cache.New(st,
		cache.WithExactTTL(config.ExactTTL),
		cache.WithGenericTTL(config.GenericTTL),
	)
	sched := scheduler.NewScheduler()
	defer sched.Stop()
	if err := sched.ScheduleCacheSweep(scheduler.DefaultSweepSchedule, fingerprints.Sweep); err != nil {
		slog.Error("Failed to schedule cache sweep", "error", err)
		os.Exit(1)
	}

	threads := thread.NewManager(st, client, thread.WithPruneCeiling(*flags.pruneCeiling))
	usage := ledger.New(st)
	pipeline := router.New(st, patterns.NewMatcher(), fingerprints, threads, client, usage,
		router.WithGenerationTimeout(config.GenTimeout))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping Cora router core",
		"db_driver", *flags.dbDriver,
		"api_addr", *flags.apiAddr,
		"prune_ceiling", *flags.pruneCeiling)
	server := api.NewServer(pipeline, usage, buildAPIOptions(flags)...)
	if err := server.Run(ctx); err != nil {
		slog.Error("Cora failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("Cora exited successfully")
}

// Config holds environment configuration
type Config struct {
	DbDriver     string
	DatabaseURL  string
	StateDir     string
	OpenAIKey    string
	AssistantID  string
	APIAddr      string
	PruneCeiling int
	ExactTTL     time.Duration
	GenericTTL   time.Duration
	GenTimeout   time.Duration
}

// Flags holds command line flag values
type Flags struct {
	stateDir     *string
	dbDriver     *string
	dbDSN        *string
	openaiKey    *string
	assistantID  *string
	apiAddr      *string
	pruneCeiling *int
}

// initializeLogger sets up structured logging at the level selected by
// CORA_DEBUG (default on).
func initializeLogger() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevelFromEnv()}))
	slog.SetDefault(logger)
}

// logLevelFromEnv maps CORA_DEBUG to a log level. Debug tracing stays the
// default; set CORA_DEBUG=false to quiet a deployment down to Info.
func logLevelFromEnv() slog.Level {
	if util.ParseBoolEnv("CORA_DEBUG", true) {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DbDriver:     os.Getenv("CORA_DB_DRIVER"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StateDir:     os.Getenv("CORA_STATE_DIR"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		AssistantID:  os.Getenv("OPENAI_ASSISTANT_ID"),
		APIAddr:      os.Getenv("API_ADDR"),
		PruneCeiling: util.ParseIntEnv("CORA_PRUNE_CEILING", thread.DefaultPruneCeiling),
		ExactTTL:     util.ParseDurationEnv("CORA_CACHE_EXACT_TTL", cache.DefaultExactTTL),
		GenericTTL:   util.ParseDurationEnv("CORA_CACHE_GENERIC_TTL", cache.DefaultGenericTTL),
		GenTimeout:   util.ParseDurationEnv("CORA_GENERATION_TIMEOUT", router.DefaultGenerationTimeout),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No CORA_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}

	// If no database URL is provided, default to SQLite in the state directory.
	if config.DatabaseURL == "" {
		config.DatabaseURL = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No DATABASE_URL provided, defaulting to SQLite", "sqlite_path", config.DatabaseURL)
	}

	slog.Debug("environment variables loaded",
		"CORA_DB_DRIVER", config.DbDriver,
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"CORA_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"OPENAI_ASSISTANT_ID_SET", config.AssistantID != "",
		"API_ADDR", config.APIAddr,
		"CORA_PRUNE_CEILING", config.PruneCeiling)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:     flag.String("state-dir", config.StateDir, "state directory for Cora data (overrides $CORA_STATE_DIR)"),
		dbDriver:     flag.String("db-driver", config.DbDriver, "database driver: sqlite3 or postgres (overrides $CORA_DB_DRIVER)"),
		dbDSN:        flag.String("db-dsn", config.DatabaseURL, "database DSN (overrides $DATABASE_URL)"),
		openaiKey:    flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		assistantID:  flag.String("assistant-id", config.AssistantID, "coach assistant id (overrides $OPENAI_ASSISTANT_ID)"),
		apiAddr:      flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		pruneCeiling: flag.Int("prune-ceiling", config.PruneCeiling, "thread message count that triggers pruning (overrides $CORA_PRUNE_CEILING)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDriver", *flags.dbDriver,
		"dbDSN_set", *flags.dbDSN != "",
		"openaiKeySet", *flags.openaiKey != "",
		"apiAddr", *flags.apiAddr,
		"pruneCeiling", *flags.pruneCeiling)

	return flags
}

// ensureDirectoriesExist creates the state directory when the SQLite default
// path is in use.
func ensureDirectoriesExist(flags Flags) error {
	if isPostgresDSN(*flags.dbDSN) {
		return nil
	}
	return os.MkdirAll(*flags.stateDir, 0o755)
}

// buildStore opens the configured persistence backend. Postgres when the DSN
// looks like a connection URL or the driver says so, SQLite otherwise.
func buildStore(flags Flags) (store.Store, error) {
	driver := *flags.dbDriver
	if driver == "" {
		if isPostgresDSN(*flags.dbDSN) {
			driver = "postgres"
		} else {
			driver = "sqlite3"
		}
	}
	switch driver {
	case "postgres":
		slog.Debug("buildStore: using Postgres backend")
		return store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	default:
		slog.Debug("buildStore: using SQLite backend", "path", *flags.dbDSN)
		return store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
	}
}

func isPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=")
}

// buildGenAIOptions builds dialogue client options from flags
func buildGenAIOptions(flags Flags) []genai.Option {
	var opts []genai.Option
	if *flags.openaiKey != "" {
		opts = append(opts, genai.WithAPIKey(*flags.openaiKey))
	}
	if *flags.assistantID != "" {
		opts = append(opts, genai.WithAssistantID(*flags.assistantID))
	}
	return opts
}

// buildAPIOptions builds API server options from flags
func buildAPIOptions(flags Flags) []api.Option {
	var opts []api.Option
	if *flags.apiAddr != "" {
		opts = append(opts, api.WithAddr(*flags.apiAddr))
	}
	return opts
}
