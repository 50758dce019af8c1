package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sugarscan/sugartrack/internal/config"
)

// InitOptions configures the bootstrap process for generating config files.
type InitOptions struct {
	Root           string
	Environment    string
	HTTPAddress    string
	DatabaseDriver string
	DatabaseDSN    string
	DataDir        string
	AuthSecret     string
	SugarLimit     float64
	SeedFile       string
	Force          bool
}

// Init scaffolds config/setting.ini and config/<env>/sugartrack.ini.
func Init(opts InitOptions) error {
	if err := Validate(opts); err != nil {
		return err
	}
	applyDefaults(&opts)
	if err := ensureDir(filepath.Join(opts.Root, "config", opts.Environment)); err != nil {
		return err
	}

	settingPath := filepath.Join(opts.Root, "config", "setting.ini")
	if err := writeFile(settingPath, settingTemplate(opts), opts.Force); err != nil {
		return err
	}

	servicePath := filepath.Join(opts.Root, "config", opts.Environment, "sugartrack.ini")
	return writeFile(servicePath, serviceTemplate(opts), opts.Force)
}

func applyDefaults(opts *InitOptions) {
	if strings.TrimSpace(opts.Root) == "" {
		opts.Root = "."
	}
	if strings.TrimSpace(opts.Environment) == "" {
		opts.Environment = "dev"
	}
	if strings.TrimSpace(opts.HTTPAddress) == "" {
		opts.HTTPAddress = ":8080"
	}
	opts.DatabaseDriver = strings.ToLower(strings.TrimSpace(opts.DatabaseDriver))
	if opts.DatabaseDriver == "" {
		opts.DatabaseDriver = config.DriverSQLite
	}
	if opts.SugarLimit <= 0 {
		opts.SugarLimit = 50
	}
	if strings.TrimSpace(opts.SeedFile) == "" {
		opts.SeedFile = "config/catalog.yaml"
	}
}

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func writeFile(path, contents string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("file already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(contents), 0o644)
}

func settingTemplate(opts InitOptions) string {
	return fmt.Sprintf(`# sugartrack settings
environment=%s
http_address=%s
default_sugar_limit=%g
`, opts.Environment, opts.HTTPAddress, opts.SugarLimit)
}

func serviceTemplate(opts InitOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Environment specific overrides for %s\n", opts.Environment)
	b.WriteString("log_level=info\n")
	b.WriteString("# Separate log files (CLI and daemon). Dash '-' disables file output.\n")
	b.WriteString("log_file_cli=logs/sugartrack.log\n")
	b.WriteString("log_file_daemon=logs/sugartrackd.log\n")
	fmt.Fprintf(&b, "database_driver=%s\n", opts.DatabaseDriver)
	switch opts.DatabaseDriver {
	case config.DriverPostgres:
		fmt.Fprintf(&b, "database_dsn=%s\n", opts.DatabaseDSN)
		b.WriteString("db_max_open=20\ndb_max_idle=5\n")
	default:
		if dir := strings.TrimSpace(opts.DataDir); dir != "" {
			fmt.Fprintf(&b, "identity_path=%s\n", filepath.Join(dir, "identity.db"))
			fmt.Fprintf(&b, "ledger_path=%s\n", filepath.Join(dir, "ledger.db"))
			fmt.Fprintf(&b, "catalog_path=%s\n", filepath.Join(dir, "catalog.db"))
		}
	}
	if secret := strings.TrimSpace(opts.AuthSecret); secret != "" {
		fmt.Fprintf(&b, "auth_secret=%s\n", secret)
	}
	b.WriteString("token_ttl=72h\n")
	fmt.Fprintf(&b, "catalog_seed_file=%s\n", opts.SeedFile)
	b.WriteString("ratelimit_enabled=false\nratelimit_rps=5\nratelimit_burst=20\n")
	b.WriteString("hooks_enabled=false\n")
	return b.String()
}

// Validate ensures required fields are present without modifying files.
func Validate(opts InitOptions) error {
	applyDefaults(&opts)
	switch opts.DatabaseDriver {
	case config.DriverSQLite:
	case config.DriverPostgres:
		if strings.TrimSpace(opts.DatabaseDSN) == "" {
			return errors.New("database_dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", opts.DatabaseDriver)
	}
	if strings.ContainsAny(opts.Environment, `/\`) {
		return errors.New("environment must be a plain directory name")
	}
	return nil
}
