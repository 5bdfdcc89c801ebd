package config // package config loads application configuration from environment variables

import (
	"errors"  // errors joins every missing/invalid variable into one error
	"fmt"     // fmt formats the individual problems
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types
	"strings"
)

// Storage drivers understood by the server binary.
const (
	DriverMySQL  = "mysql"
	DriverMemory = "memory"
)

// Config holds all runtime configuration values.  Each field corresponds to
// an environment variable.  The types reflect how the values are used in
// the application: strings for identifiers and secrets, ints for durations and costs.
type Config struct {
	Env                 string // application environment (e.g. "dev", "prod")
	Port                string // HTTP port to listen on
	StorageDriver       string // "mysql" or "memory"
	DBUser              string // database username
	DBPass              string // database password (optional)
	DBHost              string // database host address
	DBPort              string // database port number
	DBName              string // database name
	JWTSecret           string // secret used to sign JWTs
	AccessTTLMin        int    // access token time-to-live in minutes
	RefreshTTLDays      int    // refresh token time-to-live in days
	BcryptCost          int    // bcrypt cost for password hashing
	LogLevel            string // zap level name
	PurchaseMaxAttempts int    // attempts for a purchase hitting deadlocks / lock timeouts
	RabbitURL           string // AMQP url; empty disables the seat release queue
	SeedDemoEvents      bool   // memory driver only: preload demo events
}

// Load reads configuration values from environment variables and returns a
// Config.  Every missing or malformed required variable is reported in the
// returned error so that a misconfigured deployment fails once, with the full list.
func Load() (Config, error) {
	var errs []error
	must := func(key string) string {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			errs = append(errs, fmt.Errorf("missing required env var: %s", key))
		}
		return v
	}
	intOr := func(key string, def int) int {
		s := os.Getenv(key)
		if s == "" {
			return def
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid int for %s: %q", key, s))
			return def
		}
		return n
	}

	cfg := Config{
		Env:                 envStr("APP_ENV", "dev"),
		Port:                envStr("APP_PORT", "8080"),
		StorageDriver:       strings.ToLower(envStr("STORAGE_DRIVER", DriverMySQL)),
		DBPass:              os.Getenv("DB_PASS"), // empty allowed
		JWTSecret:           must("JWT_SECRET"),
		AccessTTLMin:        intOr("ACCESS_TOKEN_TTL_MIN", 15),
		RefreshTTLDays:      intOr("REFRESH_TOKEN_TTL_DAYS", 7),
		BcryptCost:          intOr("BCRYPT_COST", 10),
		LogLevel:            envStr("LOG_LEVEL", "info"),
		PurchaseMaxAttempts: intOr("PURCHASE_MAX_ATTEMPTS", 3),
		RabbitURL:           envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
		SeedDemoEvents:      envBool("SEED_DEMO_EVENTS", false),
	}

	switch cfg.StorageDriver {
	case DriverMySQL:
		cfg.DBUser = must("DB_USER")
		cfg.DBHost = must("DB_HOST")
		cfg.DBPort = must("DB_PORT")
		cfg.DBName = must("DB_NAME")
	case DriverMemory:
		// no database settings needed
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q (want %s or %s)", cfg.StorageDriver, DriverMySQL, DriverMemory))
	}

	if cfg.PurchaseMaxAttempts < 1 {
		cfg.PurchaseMaxAttempts = 1
	}
	return cfg, errors.Join(errs...)
}

// LoadDatabase reads only the database settings.  Used by the seeder, which
// never signs tokens and so has no use for JWT_SECRET.
func LoadDatabase() (Config, error) {
	var errs []error
	get := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			errs = append(errs, fmt.Errorf("missing required env var: %s", key))
		}
		return v
	}
	cfg := Config{
		Env:        envStr("APP_ENV", "dev"),
		DBUser:     get("DB_USER"),
		DBPass:     os.Getenv("DB_PASS"),
		DBHost:     get("DB_HOST"),
		DBPort:     get("DB_PORT"),
		DBName:     get("DB_NAME"),
		BcryptCost: envInt("BCRYPT_COST", 10),
		LogLevel:   envStr("LOG_LEVEL", "info"),
	}
	return cfg, errors.Join(errs...)
}
