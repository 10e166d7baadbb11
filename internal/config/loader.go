// Package config loads the deployment tool's configuration from the process
// environment, with optional .env support for local development.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Driver names accepted by DBUP_DRIVER.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config captures environment driven configuration values for the tool.
type Config struct {
	Driver         string
	SQLiteDSN      string
	PostgresURL    string
	ScriptsDir     string
	RollbackSuffix string
	Variables      map[string]string
}

// Load parses configuration values from the current process environment. A
// .env file in the working directory, when present, is loaded first without
// overriding already exported variables.
//
// The loader applies defaults for optional fields while validating required
// values and reporting every missing or invalid entry at once.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

	cfg := Config{
		Driver:         DriverSQLite,
		SQLiteDSN:      "dbup.db",
		RollbackSuffix: "_rollback",
	}

	missing := make([]string, 0, 1)
	invalid := make([]string, 0, 2)

	if driver := strings.TrimSpace(os.Getenv("DBUP_DRIVER")); driver != "" {
		switch driver {
		case DriverSQLite, DriverPostgres:
			cfg.Driver = driver
		default:
			invalid = append(invalid, "DBUP_DRIVER")
		}
	}

	if dsn := strings.TrimSpace(os.Getenv("DBUP_SQLITE_DSN")); dsn != "" {
		cfg.SQLiteDSN = dsn
	}

	cfg.PostgresURL = strings.TrimSpace(os.Getenv("DBUP_POSTGRES_URL"))
	if cfg.Driver == DriverPostgres && cfg.PostgresURL == "" {
		missing = append(missing, "DBUP_POSTGRES_URL")
	}

	if dir := strings.TrimSpace(os.Getenv("DBUP_SCRIPTS_DIR")); dir == "" {
		missing = append(missing, "DBUP_SCRIPTS_DIR")
	} else {
		cfg.ScriptsDir = dir
	}

	if suffix := strings.TrimSpace(os.Getenv("DBUP_ROLLBACK_SUFFIX")); suffix != "" {
		cfg.RollbackSuffix = suffix
	}

	if raw := strings.TrimSpace(os.Getenv("DBUP_VARIABLES")); raw != "" {
		variables, err := ParseVariables(raw)
		if err != nil {
			invalid = append(invalid, "DBUP_VARIABLES")
		} else {
			cfg.Variables = variables
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables are not set: %s", strings.Join(missing, ", "))
	}
	if len(invalid) > 0 {
		return Config{}, fmt.Errorf("environment variables have invalid values: %s", strings.Join(invalid, ", "))
	}

	return cfg, nil
}

// ParseVariables parses a comma separated list of name=value pairs.
func ParseVariables(raw string) (map[string]string, error) {
	variables := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid variable assignment %q", pair)
		}
		variables[name] = strings.TrimSpace(value)
	}
	return variables, nil
}
