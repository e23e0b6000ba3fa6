package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sabiscore/predictor/internal/platform/logging"
	"github.com/sabiscore/predictor/internal/platform/resilience"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

// Config stores runtime configuration for the service.
type Config struct {
	AppEnv         string
	ServiceName    string
	ServiceVersion string
	HTTPAddr       string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	LogLevel       logging.Level

	CORSAllowedOrigins []string

	DBURL                   string
	DBDisablePreparedBinary bool

	CacheSweepInterval time.Duration

	CircuitBreaker resilience.CircuitBreakerConfig

	SportsDataBaseURL     string
	SportsDataToken       string
	SportsDataTimeout     time.Duration
	SportsDataMaxRetries  int
	SportsDataBackoffBase time.Duration
	TTLLive               time.Duration
	TTLVolatile           time.Duration
	TTLReference          time.Duration
	TTLOverrides          map[string]time.Duration

	MLEnabled     bool
	MLBaseURL     string
	MLTimeout     time.Duration
	MLTemperature float64

	PredictionTTL    time.Duration
	BatchWorkers     int
	BatchMaxFixtures int

	SyncEnabled           bool
	SyncInterval          time.Duration
	SyncCycleTimeout      time.Duration
	SyncGracePeriod       time.Duration
	SyncFixturesPerLeague int
	BackfillThreshold     int
	TrackedLeagues        []int64

	PprofEnabled bool
	PprofAddr    string

	UptraceEnabled     bool
	UptraceDSN         string
	UptraceLogsEnabled bool

	PyroscopeEnabled           bool
	PyroscopeServerAddress     string
	PyroscopeAppName           string
	PyroscopeAuthToken         string
	PyroscopeBasicAuthUser     string
	PyroscopeBasicAuthPassword string
	PyroscopeUploadRate        time.Duration
}

func Load() (Config, error) {
	var cfg Config

	appEnv, err := parseAppEnv(getEnv("APP_ENV", EnvDev))
	if err != nil {
		return Config{}, err
	}
	cfg.AppEnv = appEnv
	cfg.ServiceName = getEnv("SERVICE_NAME", "predictor")
	cfg.ServiceVersion = getEnv("SERVICE_VERSION", "dev")
	cfg.HTTPAddr = getEnv("APP_HTTP_ADDR", ":8080")
	cfg.LogLevel = parseLogLevel(getEnv("APP_LOG_LEVEL", "info"))
	cfg.CORSAllowedOrigins = splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*"))

	readTimeout, err := time.ParseDuration(getEnv("APP_READ_TIMEOUT", "10s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse APP_READ_TIMEOUT: %w", err)
	}
	writeTimeout, err := time.ParseDuration(getEnv("APP_WRITE_TIMEOUT", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse APP_WRITE_TIMEOUT: %w", err)
	}
	cfg.ReadTimeout = readTimeout
	cfg.WriteTimeout = writeTimeout

	cfg.DBURL = strings.TrimSpace(getEnv("DB_URL", ""))
	cfg.DBDisablePreparedBinary, err = strconv.ParseBool(getEnv("DB_DISABLE_PREPARED_BINARY_RESULT", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse DB_DISABLE_PREPARED_BINARY_RESULT: %w", err)
	}

	cacheSweepInterval, err := time.ParseDuration(getEnv("CACHE_SWEEP_INTERVAL", "1m"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_SWEEP_INTERVAL: %w", err)
	}
	if cacheSweepInterval <= 0 {
		return Config{}, fmt.Errorf("CACHE_SWEEP_INTERVAL must be > 0")
	}
	cfg.CacheSweepInterval = cacheSweepInterval

	circuitEnabled, err := strconv.ParseBool(getEnv("CIRCUIT_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CIRCUIT_ENABLED: %w", err)
	}
	circuitFailureCount, err := getEnvAsInt("CIRCUIT_FAILURE_COUNT", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse CIRCUIT_FAILURE_COUNT: %w", err)
	}
	if circuitFailureCount < 1 {
		return Config{}, fmt.Errorf("CIRCUIT_FAILURE_COUNT must be >= 1")
	}
	circuitOpenTimeout, err := time.ParseDuration(getEnv("CIRCUIT_OPEN_TIMEOUT", "60s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CIRCUIT_OPEN_TIMEOUT: %w", err)
	}
	if circuitOpenTimeout <= 0 {
		return Config{}, fmt.Errorf("CIRCUIT_OPEN_TIMEOUT must be > 0")
	}
	circuitHalfOpenMaxReq, err := getEnvAsInt("CIRCUIT_HALF_OPEN_MAX_REQ", 1)
	if err != nil {
		return Config{}, fmt.Errorf("parse CIRCUIT_HALF_OPEN_MAX_REQ: %w", err)
	}
	if circuitHalfOpenMaxReq < 1 {
		return Config{}, fmt.Errorf("CIRCUIT_HALF_OPEN_MAX_REQ must be >= 1")
	}
	cfg.CircuitBreaker = resilience.CircuitBreakerConfig{
		Enabled:          circuitEnabled,
		FailureThreshold: circuitFailureCount,
		OpenTimeout:      circuitOpenTimeout,
		HalfOpenMaxReq:   circuitHalfOpenMaxReq,
	}

	cfg.SportsDataBaseURL = strings.TrimSpace(getEnv("SPORTSDATA_BASE_URL", "https://api.sportsdata.example/v3/football"))
	cfg.SportsDataToken = strings.TrimSpace(getEnv("SPORTSDATA_TOKEN", ""))
	sportsDataTimeout, err := time.ParseDuration(getEnv("SPORTSDATA_TIMEOUT", "8s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SPORTSDATA_TIMEOUT: %w", err)
	}
	if sportsDataTimeout <= 0 {
		return Config{}, fmt.Errorf("SPORTSDATA_TIMEOUT must be > 0")
	}
	cfg.SportsDataTimeout = sportsDataTimeout
	cfg.SportsDataMaxRetries, err = getEnvAsInt("SPORTSDATA_MAX_RETRIES", 2)
	if err != nil {
		return Config{}, fmt.Errorf("parse SPORTSDATA_MAX_RETRIES: %w", err)
	}
	if cfg.SportsDataMaxRetries < 0 {
		return Config{}, fmt.Errorf("SPORTSDATA_MAX_RETRIES must be >= 0")
	}
	backoffBase, err := time.ParseDuration(getEnv("SPORTSDATA_BACKOFF_BASE", "500ms"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SPORTSDATA_BACKOFF_BASE: %w", err)
	}
	if backoffBase <= 0 {
		return Config{}, fmt.Errorf("SPORTSDATA_BACKOFF_BASE must be > 0")
	}
	cfg.SportsDataBackoffBase = backoffBase

	ttlLive, err := time.ParseDuration(getEnv("CACHE_TTL_LIVE", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_TTL_LIVE: %w", err)
	}
	ttlVolatile, err := time.ParseDuration(getEnv("CACHE_TTL_VOLATILE", "30m"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_TTL_VOLATILE: %w", err)
	}
	ttlReference, err := time.ParseDuration(getEnv("CACHE_TTL_REFERENCE", "24h"))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_TTL_REFERENCE: %w", err)
	}
	if ttlLive <= 0 || ttlVolatile <= 0 || ttlReference <= 0 {
		return Config{}, fmt.Errorf("cache TTL tiers must be > 0")
	}
	cfg.TTLLive = ttlLive
	cfg.TTLVolatile = ttlVolatile
	cfg.TTLReference = ttlReference
	cfg.TTLOverrides, err = parseTTLMap(getEnv("CACHE_TTL_OVERRIDES", ""))
	if err != nil {
		return Config{}, fmt.Errorf("parse CACHE_TTL_OVERRIDES: %w", err)
	}

	cfg.MLEnabled, err = strconv.ParseBool(getEnv("ML_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ML_ENABLED: %w", err)
	}
	cfg.MLBaseURL = strings.TrimSpace(getEnv("ML_BASE_URL", ""))
	if cfg.MLEnabled && cfg.MLBaseURL == "" {
		return Config{}, fmt.Errorf("ML_BASE_URL is required when ML_ENABLED=true")
	}
	mlTimeout, err := time.ParseDuration(getEnv("ML_TIMEOUT", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse ML_TIMEOUT: %w", err)
	}
	if mlTimeout <= 0 {
		return Config{}, fmt.Errorf("ML_TIMEOUT must be > 0")
	}
	cfg.MLTimeout = mlTimeout
	cfg.MLTemperature, err = getEnvAsFloat("ML_TEMPERATURE", 1.0)
	if err != nil {
		return Config{}, fmt.Errorf("parse ML_TEMPERATURE: %w", err)
	}
	if cfg.MLTemperature <= 0 {
		return Config{}, fmt.Errorf("ML_TEMPERATURE must be > 0")
	}

	predictionTTL, err := time.ParseDuration(getEnv("PREDICTION_TTL", "90m"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PREDICTION_TTL: %w", err)
	}
	if predictionTTL <= 0 {
		return Config{}, fmt.Errorf("PREDICTION_TTL must be > 0")
	}
	cfg.PredictionTTL = predictionTTL
	cfg.BatchWorkers, err = getEnvAsInt("BATCH_WORKERS", 8)
	if err != nil {
		return Config{}, fmt.Errorf("parse BATCH_WORKERS: %w", err)
	}
	if cfg.BatchWorkers < 1 {
		return Config{}, fmt.Errorf("BATCH_WORKERS must be >= 1")
	}
	cfg.BatchMaxFixtures, err = getEnvAsInt("BATCH_MAX_FIXTURES", 50)
	if err != nil {
		return Config{}, fmt.Errorf("parse BATCH_MAX_FIXTURES: %w", err)
	}
	if cfg.BatchMaxFixtures < 1 {
		return Config{}, fmt.Errorf("BATCH_MAX_FIXTURES must be >= 1")
	}

	cfg.SyncEnabled, err = strconv.ParseBool(getEnv("SYNC_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SYNC_ENABLED: %w", err)
	}
	syncInterval, err := time.ParseDuration(getEnv("SYNC_INTERVAL", "15m"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SYNC_INTERVAL: %w", err)
	}
	if syncInterval <= 0 {
		return Config{}, fmt.Errorf("SYNC_INTERVAL must be > 0")
	}
	cfg.SyncInterval = syncInterval
	syncCycleTimeout, err := time.ParseDuration(getEnv("SYNC_CYCLE_TIMEOUT", "10m"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SYNC_CYCLE_TIMEOUT: %w", err)
	}
	if syncCycleTimeout <= 0 {
		return Config{}, fmt.Errorf("SYNC_CYCLE_TIMEOUT must be > 0")
	}
	cfg.SyncCycleTimeout = syncCycleTimeout
	syncGracePeriod, err := time.ParseDuration(getEnv("SYNC_GRACE_PERIOD", "30s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse SYNC_GRACE_PERIOD: %w", err)
	}
	if syncGracePeriod < 0 {
		return Config{}, fmt.Errorf("SYNC_GRACE_PERIOD must be >= 0")
	}
	cfg.SyncGracePeriod = syncGracePeriod
	cfg.SyncFixturesPerLeague, err = getEnvAsInt("SYNC_FIXTURES_PER_LEAGUE", 5)
	if err != nil {
		return Config{}, fmt.Errorf("parse SYNC_FIXTURES_PER_LEAGUE: %w", err)
	}
	if cfg.SyncFixturesPerLeague < 1 {
		return Config{}, fmt.Errorf("SYNC_FIXTURES_PER_LEAGUE must be >= 1")
	}
	cfg.BackfillThreshold, err = getEnvAsInt("SYNC_BACKFILL_THRESHOLD", 8)
	if err != nil {
		return Config{}, fmt.Errorf("parse SYNC_BACKFILL_THRESHOLD: %w", err)
	}
	if cfg.BackfillThreshold < 0 {
		return Config{}, fmt.Errorf("SYNC_BACKFILL_THRESHOLD must be >= 0")
	}
	cfg.TrackedLeagues, err = parseLeagueIDs(getEnv("TRACKED_LEAGUES", "39,140,135,78,61"))
	if err != nil {
		return Config{}, fmt.Errorf("parse TRACKED_LEAGUES: %w", err)
	}

	cfg.PprofEnabled, err = strconv.ParseBool(getEnv("PPROF_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PPROF_ENABLED: %w", err)
	}
	cfg.PprofAddr = getEnv("PPROF_ADDR", ":6060")

	cfg.UptraceEnabled, err = strconv.ParseBool(getEnv("UPTRACE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_ENABLED: %w", err)
	}
	cfg.UptraceDSN = strings.TrimSpace(getEnv("UPTRACE_DSN", ""))
	if cfg.UptraceEnabled && cfg.UptraceDSN == "" {
		return Config{}, fmt.Errorf("UPTRACE_DSN is required when UPTRACE_ENABLED=true")
	}
	cfg.UptraceLogsEnabled, err = strconv.ParseBool(getEnv("UPTRACE_LOGS_ENABLED", "true"))
	if err != nil {
		return Config{}, fmt.Errorf("parse UPTRACE_LOGS_ENABLED: %w", err)
	}

	cfg.PyroscopeEnabled, err = strconv.ParseBool(getEnv("PYROSCOPE_ENABLED", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_ENABLED: %w", err)
	}
	cfg.PyroscopeServerAddress = strings.TrimSpace(getEnv("PYROSCOPE_SERVER_ADDRESS", ""))
	if cfg.PyroscopeEnabled && cfg.PyroscopeServerAddress == "" {
		return Config{}, fmt.Errorf("PYROSCOPE_SERVER_ADDRESS is required when PYROSCOPE_ENABLED=true")
	}
	cfg.PyroscopeAppName = getEnv("PYROSCOPE_APP_NAME", cfg.ServiceName)
	cfg.PyroscopeAuthToken = getEnv("PYROSCOPE_AUTH_TOKEN", "")
	cfg.PyroscopeBasicAuthUser = getEnv("PYROSCOPE_BASIC_AUTH_USER", "")
	cfg.PyroscopeBasicAuthPassword = getEnv("PYROSCOPE_BASIC_AUTH_PASSWORD", "")
	pyroscopeUploadRate, err := time.ParseDuration(getEnv("PYROSCOPE_UPLOAD_RATE", "15s"))
	if err != nil {
		return Config{}, fmt.Errorf("parse PYROSCOPE_UPLOAD_RATE: %w", err)
	}
	cfg.PyroscopeUploadRate = pyroscopeUploadRate

	return cfg, nil
}

func parseAppEnv(v string) (string, error) {
	value := strings.ToLower(strings.TrimSpace(v))
	switch value {
	case EnvDev, EnvStage, EnvProd:
		return value, nil
	default:
		return "", fmt.Errorf("invalid APP_ENV %q: valid values are %s, %s, %s", v, EnvDev, EnvStage, EnvProd)
	}
}

func parseLogLevel(v string) logging.Level {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "debug":
		return logging.LevelDebug
	case "warn", "warning":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func getEnvAsFloat(key string, fallback float64) (float64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}

	out, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, err
	}

	return out, nil
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}
		out = append(out, item)
	}

	return out
}

// parseTTLMap reads "pattern:duration" pairs, e.g.
// "livescores:15s,teams/:48h".
func parseTTLMap(raw string) (map[string]time.Duration, error) {
	out := make(map[string]time.Duration)
	for _, part := range strings.Split(raw, ",") {
		item := strings.TrimSpace(part)
		if item == "" {
			continue
		}

		segments := strings.SplitN(item, ":", 2)
		if len(segments) != 2 {
			return nil, fmt.Errorf("invalid ttl item %q, expected pattern:duration", item)
		}

		pattern := strings.TrimSpace(segments[0])
		if pattern == "" {
			return nil, fmt.Errorf("empty pattern in item %q", item)
		}
		ttl, err := time.ParseDuration(strings.TrimSpace(segments[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid duration in item %q: %w", item, err)
		}
		if ttl <= 0 {
			return nil, fmt.Errorf("ttl must be > 0 in item %q", item)
		}

		out[pattern] = ttl
	}
	return out, nil
}

func parseLeagueIDs(raw string) ([]int64, error) {
	parts := splitCSV(raw)
	out := make([]int64, 0, len(parts))
	seen := make(map[int64]struct{}, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid league id %q: %w", part, err)
		}
		if id <= 0 {
			return nil, fmt.Errorf("league id must be > 0, got %q", part)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
