package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/crypto/bcrypt"
)

const minBcryptCost = 10

type Config struct {
	Port     string `env:"PORT,      default=8080"`
	Env      string `env:"ENV,       default=development"`
	LogLevel string `env:"LOG_LEVEL, default=info"`

	Auth  AuthConfig
	Mongo MongoConfig
	Redis RedisConfig
	Audit AuditConfig
	Seed  SeedConfig
}

type AuthConfig struct {
	JWTSecret        string        `env:"JWT_SECRET, required"`
	JWTExpiresIn     time.Duration `env:"JWT_EXPIRES_IN, default=1h"`
	JWTIssuer        string        `env:"JWT_ISSUER, default=payments-portal"`
	EncryptionKey    string        `env:"ENCRYPTION_KEY, required"`
	BcryptCost       int           `env:"BCRYPT_SALT_ROUNDS, default=12"`
	MaxAttempts      uint          `env:"LOCKOUT_MAX_ATTEMPTS, default=5"`
	LockDuration     time.Duration `env:"LOCKOUT_DURATION, default=30m"`
	ExposeRemaining  bool          `env:"LOCKOUT_EXPOSE_REMAINING, default=true"`
	AttemptGuardTTL  time.Duration `env:"ATTEMPT_GUARD_TTL, default=15m"`
	OperationTimeout time.Duration `env:"AUTH_OPERATION_TIMEOUT, default=10s"`
}

type MongoConfig struct {
	URI      string `env:"MONGO_URI, default=mongodb://localhost:27017"`
	Database string `env:"MONGO_DB,  default=payments_portal"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, default=localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB,   default=0"`
}

type AuditConfig struct {
	Workers int `env:"AUDIT_WORKERS, default=4"`
}

// SeedConfig describes the pre-provisioned employee created by cmd/seed.
type SeedConfig struct {
	EmployeeID       string `env:"SEED_EMPLOYEE_ID, default=EMP0001"`
	EmployeeName     string `env:"SEED_EMPLOYEE_NAME, default=Portal Administrator"`
	EmployeeUsername string `env:"SEED_EMPLOYEE_USERNAME, default=admin"`
	EmployeePassword string `env:"SEED_EMPLOYEE_PASSWORD"`
}

// IsDevelopment reports whether human-friendly logging should be used.
func (c *Config) IsDevelopment() bool { return c.Env == "development" }

// Load reads .env files when present, then the environment, and validates
// the result.
func Load(ctx context.Context, dotenv ...string) (*Config, error) {
	if err := godotenv.Load(dotenv...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: load dotenv: %w", err)
	}
	return process(ctx, envconfig.OsLookuper())
}

func process(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("config: failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would weaken the account protection.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.BcryptCost < minBcryptCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		errs = append(errs, fmt.Errorf("BCRYPT_SALT_ROUNDS must be between %d and %d", minBcryptCost, bcrypt.MaxCost))
	}
	if c.Auth.MaxAttempts == 0 {
		errs = append(errs, errors.New("LOCKOUT_MAX_ATTEMPTS must be positive"))
	}
	if c.Auth.LockDuration <= 0 {
		errs = append(errs, errors.New("LOCKOUT_DURATION must be positive"))
	}
	if c.Auth.JWTExpiresIn <= 0 {
		errs = append(errs, errors.New("JWT_EXPIRES_IN must be positive"))
	}
	if c.Auth.AttemptGuardTTL <= 0 {
		errs = append(errs, errors.New("ATTEMPT_GUARD_TTL must be positive"))
	}
	if c.Auth.OperationTimeout <= 0 {
		errs = append(errs, errors.New("AUTH_OPERATION_TIMEOUT must be positive"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
