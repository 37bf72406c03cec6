package params

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type API struct {
	Addr        string
	CORSOrigins []string
	// ResultTimeout bounds how long a request waits for its command result.
	ResultTimeout time.Duration
	// Projection polling after an accepted order. The read-model is
	// eventually consistent, so the handler retries with doubling backoff.
	ProjectionRetries int
	ProjectionBackoff time.Duration
}

type Log struct {
	File  string // empty: stdout only
	Level string
}

type Router struct {
	// Max instruments processed at the same time.
	Concurrency int64
}

type Projection struct {
	Backend string // "memory" or "pebble"
	Path    string // pebble directory
	Shards  int
}

type Sinks struct {
	JournalFile  string   // empty disables the journal
	KafkaBrokers []string // empty disables kafka export
	KafkaTopic   string
}

type LoadGen struct {
	Enabled     bool
	Mode        string // "steady" or "burst"
	Instruments []string
}

type Config struct {
	API        API
	Log        Log
	Router     Router
	Projection Projection
	Sinks      Sinks
	LoadGen    LoadGen
}

func Default() Config {
	return Config{
		API: API{
			Addr:              ":8080",
			CORSOrigins:       []string{"http://localhost:3000", "http://localhost:3001"},
			ResultTimeout:     5 * time.Second,
			ProjectionRetries: 5,
			ProjectionBackoff: 50 * time.Millisecond,
		},
		Log: Log{
			Level: "info",
		},
		Router: Router{
			Concurrency: 32,
		},
		Projection: Projection{
			Backend: "memory",
			Path:    "data/projection",
			Shards:  64,
		},
		Sinks: Sinks{
			KafkaTopic: "matchcore.events",
		},
		LoadGen: LoadGen{
			Mode:        "steady",
			Instruments: []string{"BTC-USD", "ETH-USD"},
		},
	}
}

// LoadFromEnv loads configuration from .env file (if exists) and environment variables
// Priority: ENV > .env file > defaults
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	// Try to load .env file (optional - won't fail if not exists)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	cfg.API.Addr = getEnv("API_ADDR", cfg.API.Addr)
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		cfg.API.CORSOrigins = splitList(origins)
	}
	if ms, ok := getInt("RESULT_TIMEOUT_MS"); ok {
		cfg.API.ResultTimeout = time.Duration(ms) * time.Millisecond
	}
	if n, ok := getInt("PROJECTION_RETRIES"); ok {
		cfg.API.ProjectionRetries = n
	}
	if ms, ok := getInt("PROJECTION_RETRY_BACKOFF_MS"); ok {
		cfg.API.ProjectionBackoff = time.Duration(ms) * time.Millisecond
	}

	cfg.Log.File = getEnv("LOG_FILE", cfg.Log.File)
	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)

	if n, ok := getInt("ROUTER_CONCURRENCY"); ok && n > 0 {
		cfg.Router.Concurrency = int64(n)
	}

	cfg.Projection.Backend = strings.ToLower(getEnv("PROJECTION_BACKEND", cfg.Projection.Backend))
	cfg.Projection.Path = getEnv("PROJECTION_PATH", cfg.Projection.Path)
	if n, ok := getInt("PROJECTION_SHARDS"); ok && n > 0 {
		cfg.Projection.Shards = n
	}

	cfg.Sinks.JournalFile = getEnv("JOURNAL_FILE", cfg.Sinks.JournalFile)
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Sinks.KafkaBrokers = splitList(brokers)
	}
	cfg.Sinks.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.Sinks.KafkaTopic)

	if enabled := os.Getenv("ENABLE_LOADGEN"); enabled != "" {
		cfg.LoadGen.Enabled = enabled == "true"
	}
	cfg.LoadGen.Mode = getEnv("LOADGEN_MODE", cfg.LoadGen.Mode)
	if insts := os.Getenv("LOADGEN_INSTRUMENTS"); insts != "" {
		cfg.LoadGen.Instruments = splitList(insts)
	}

	return cfg
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// splitList parses "a, b,c" into ["a" "b" "c"].
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
