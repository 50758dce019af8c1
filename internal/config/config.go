package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sugarscan/sugartrack/internal/hooks"
	"github.com/sugarscan/sugartrack/internal/ratelimit"
)

const (
	settingsFile     = "config/setting.ini"
	defaultEnv       = "dev"
	envConfigPattern = "config/%s/sugartrack.ini"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// DefaultAuthSecret signs tokens when auth_secret is unset. It is refused in
// production environments.
const DefaultAuthSecret = "sugartrack-dev-secret"

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
	Defaults    map[string]string
}

// ServiceConfig describes runtime options for the daemon and the CLI.
type ServiceConfig struct {
	Environment string
	HTTPAddress string
	// BaseURL is where the CLI reaches a running daemon.
	BaseURL string
	// Base log file; used if the per-binary files are unset
	LogFile       string
	LogFileCLI    string
	LogFileDaemon string
	LogLevel      string

	DatabaseDriver string
	IdentityPath   string
	LedgerPath     string
	CatalogPath    string
	// DatabaseDSN is shared by every store when the driver is postgres.
	DatabaseDSN           string
	DBMaxOpen             int
	DBMaxIdle             int
	DBConnLifetimeMinutes int
	DBConnIdleMinutes     int

	AuthSecret        string
	TokenTTL          time.Duration
	DefaultSugarLimit float64
	CatalogSeedFile   string

	RateLimit ratelimit.Config
	Hooks     hooks.Config
}

// LoadServiceConfig reads the current environment and loads the matching config file.
func LoadServiceConfig(root string) (ServiceConfig, error) {
	if root == "" {
		root = "."
	}
	s, err := loadSettings(root)
	if err != nil {
		return ServiceConfig{}, err
	}

	envValues, err := parseINI(filepath.Join(root, fmt.Sprintf(envConfigPattern, s.Environment)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			envValues = map[string]string{}
		} else {
			return ServiceConfig{}, err
		}
	}

	merged := make(map[string]string)
	for k, v := range s.Defaults {
		merged[k] = v
	}
	for k, v := range envValues {
		merged[k] = v
	}

	cfg := ServiceConfig{
		Environment:    s.Environment,
		HTTPAddress:    firstNonEmpty(os.Getenv("SUGARTRACK_HTTP_ADDRESS"), merged["http_address"], ":8080"),
		BaseURL:        firstNonEmpty(os.Getenv("SUGARTRACK_BASE_URL"), merged["base_url"], DefaultBaseURL(s.Environment)),
		LogFile:        firstNonEmpty(os.Getenv("SUGARTRACK_LOG_FILE"), merged["log_file"]),
		LogLevel:       firstNonEmpty(os.Getenv("SUGARTRACK_LOG_LEVEL"), merged["log_level"], "info"),
		DatabaseDriver: strings.ToLower(firstNonEmpty(os.Getenv("SUGARTRACK_DATABASE_DRIVER"), merged["database_driver"], DriverSQLite)),
		IdentityPath:   firstNonEmpty(os.Getenv("SUGARTRACK_IDENTITY_PATH"), merged["identity_path"], DefaultIdentityPath()),
		LedgerPath:     firstNonEmpty(os.Getenv("SUGARTRACK_LEDGER_PATH"), merged["ledger_path"], DefaultLedgerPath()),
		CatalogPath:    firstNonEmpty(os.Getenv("SUGARTRACK_CATALOG_PATH"), merged["catalog_path"], DefaultCatalogPath()),
		DatabaseDSN:    firstNonEmpty(os.Getenv("SUGARTRACK_DATABASE_DSN"), merged["database_dsn"]),
		AuthSecret:     firstNonEmpty(os.Getenv("SUGARTRACK_AUTH_SECRET"), merged["auth_secret"], DefaultAuthSecret),
	}
	cfg.CatalogSeedFile = firstNonEmpty(os.Getenv("SUGARTRACK_CATALOG_SEED_FILE"), merged["catalog_seed_file"])
	cfg.LogFileCLI = firstNonEmpty(os.Getenv("SUGARTRACK_LOG_FILE_CLI"), os.Getenv("SUGARTRACK_LOG_FILE"), merged["log_file_cli"], merged["log_file"])
	cfg.LogFileDaemon = firstNonEmpty(os.Getenv("SUGARTRACK_LOG_FILE_DAEMON"), os.Getenv("SUGARTRACK_LOG_FILE"), merged["log_file_daemon"], merged["log_file"])

	cfg.DBMaxOpen = parseOptionalInt(firstNonEmpty(os.Getenv("SUGARTRACK_DB_MAX_OPEN"), merged["db_max_open"]), 20)
	cfg.DBMaxIdle = parseOptionalInt(firstNonEmpty(os.Getenv("SUGARTRACK_DB_MAX_IDLE"), merged["db_max_idle"]), 5)
	cfg.DBConnLifetimeMinutes = parseOptionalInt(firstNonEmpty(os.Getenv("SUGARTRACK_DB_CONN_LIFETIME_MINUTES"), merged["db_conn_lifetime_minutes"]), 60)
	cfg.DBConnIdleMinutes = parseOptionalInt(firstNonEmpty(os.Getenv("SUGARTRACK_DB_CONN_IDLE_MINUTES"), merged["db_conn_idle_minutes"]), 10)

	switch cfg.DatabaseDriver {
	case DriverSQLite:
	case DriverPostgres:
		if cfg.DatabaseDSN == "" {
			return ServiceConfig{}, fmt.Errorf("database_dsn required when database_driver=postgres")
		}
	default:
		return ServiceConfig{}, fmt.Errorf("unsupported database_driver %q", cfg.DatabaseDriver)
	}

	if cfg.UsesDefaultAuthSecret() && isProductionEnv(cfg.Environment) {
		return ServiceConfig{}, fmt.Errorf("auth_secret must be set for environment %q", cfg.Environment)
	}

	cfg.TokenTTL = 72 * time.Hour
	if v := firstNonEmpty(os.Getenv("SUGARTRACK_TOKEN_TTL"), merged["token_ttl"]); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil || dur <= 0 {
			return ServiceConfig{}, fmt.Errorf("invalid token_ttl %q", v)
		}
		cfg.TokenTTL = dur
	}

	cfg.DefaultSugarLimit = 50
	if v := firstNonEmpty(os.Getenv("SUGARTRACK_DEFAULT_SUGAR_LIMIT"), merged["default_sugar_limit"]); v != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || parsed <= 0 {
			return ServiceConfig{}, fmt.Errorf("invalid default_sugar_limit %q", v)
		}
		cfg.DefaultSugarLimit = parsed
	}

	cfg.RateLimit = ratelimit.Config{
		Enabled:           parseBool(firstNonEmpty(os.Getenv("SUGARTRACK_RATELIMIT_ENABLED"), merged["ratelimit_enabled"])),
		RequestsPerSecond: 5,
		Burst:             parseOptionalInt(firstNonEmpty(os.Getenv("SUGARTRACK_RATELIMIT_BURST"), merged["ratelimit_burst"]), 20),
		RedisAddr:         firstNonEmpty(os.Getenv("SUGARTRACK_REDIS_ADDR"), merged["redis_addr"]),
		RedisPassword:     firstNonEmpty(os.Getenv("SUGARTRACK_REDIS_PASSWORD"), merged["redis_password"]),
		RedisDB:           parseOptionalInt(firstNonEmpty(os.Getenv("SUGARTRACK_REDIS_DB"), merged["redis_db"]), 0),
		SweepSchedule:     firstNonEmpty(os.Getenv("SUGARTRACK_RATELIMIT_SWEEP"), merged["ratelimit_sweep"], "@every 5m"),
		IdleTTL:           10 * time.Minute,
	}
	if v := firstNonEmpty(os.Getenv("SUGARTRACK_RATELIMIT_RPS"), merged["ratelimit_rps"]); v != "" {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return ServiceConfig{}, fmt.Errorf("invalid ratelimit_rps %q: %w", v, err)
		}
		cfg.RateLimit.RequestsPerSecond = parsed
	}
	if err := cfg.RateLimit.Validate(); err != nil {
		return ServiceConfig{}, err
	}

	hookArgs := firstNonEmpty(os.Getenv("SUGARTRACK_HOOK_SCRIPT_ARGS"), merged["hooks_script_args"])
	hookEnv := firstNonEmpty(os.Getenv("SUGARTRACK_HOOK_SCRIPT_ENV"), merged["hooks_script_env"])
	cfg.Hooks = hooks.Config{
		Enabled:      parseBool(firstNonEmpty(os.Getenv("SUGARTRACK_HOOKS_ENABLED"), merged["hooks_enabled"])),
		ScriptPath:   firstNonEmpty(os.Getenv("SUGARTRACK_HOOK_SCRIPT"), merged["hooks_script_path"]),
		ScriptArgs:   parseCSV(hookArgs),
		Env:          parseMap(hookEnv),
		KafkaBrokers: parseCSV(firstNonEmpty(os.Getenv("SUGARTRACK_KAFKA_BROKERS"), merged["kafka_brokers"])),
		KafkaTopic:   firstNonEmpty(os.Getenv("SUGARTRACK_KAFKA_TOPIC"), merged["kafka_topic"], "sugartrack.events"),
	}
	if v := firstNonEmpty(os.Getenv("SUGARTRACK_HOOK_TIMEOUT"), merged["hooks_timeout"]); v != "" {
		dur, err := time.ParseDuration(v)
		if err != nil {
			return ServiceConfig{}, fmt.Errorf("invalid hooks_timeout %q: %w", v, err)
		}
		cfg.Hooks.Timeout = dur
	}
	if err := cfg.Hooks.Validate(); err != nil {
		return ServiceConfig{}, err
	}

	return cfg, nil
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: firstNonEmpty(os.Getenv("SUGARTRACK_ENV"), defaultEnv), Defaults: map[string]string{}}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := firstNonEmpty(os.Getenv("SUGARTRACK_ENV"), values["environment"], defaultEnv)
	defaults := make(map[string]string)
	for k, v := range values {
		if k == "environment" {
			continue
		}
		defaults[k] = v
	}
	return Settings{Environment: env, Defaults: defaults}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func parseOptionalInt(v string, fallback int) int {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		return parsed
	}
	return fallback
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func parseCSV(input string) []string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(input, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func parseMap(input string) map[string]string {
	if strings.TrimSpace(input) == "" {
		return nil
	}
	result := make(map[string]string)
	for _, entry := range strings.Split(input, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		kv := strings.SplitN(entry, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		if key != "" {
			result[key] = strings.TrimSpace(kv[1])
		}
	}
	if len(result) == 0 {
		return nil
	}
	return result
}

func dataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".sugartrack")
}

// DefaultLedgerPath returns the fallback ledger location under the user's home directory.
func DefaultLedgerPath() string {
	return filepath.Join(dataDir(), "ledger.db")
}

// DefaultIdentityPath returns the fallback identity database path.
func DefaultIdentityPath() string {
	return filepath.Join(dataDir(), "identity.db")
}

// DefaultCatalogPath returns the fallback catalog database path.
func DefaultCatalogPath() string {
	return filepath.Join(dataDir(), "catalog.db")
}

// UsesDefaultAuthSecret reports whether tokens would be signed with the
// built-in development secret.
func (c ServiceConfig) UsesDefaultAuthSecret() bool {
	return c.AuthSecret == DefaultAuthSecret
}

func isProductionEnv(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "live", "prod", "production":
		return true
	}
	return false
}

// DefaultBaseURL returns the address the CLI talks to for the given environment.
func DefaultBaseURL(env string) string {
	if isProductionEnv(env) {
		return "https://api.sugarscan.app"
	}
	return "http://localhost:8080"
}
