package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the campaign process.
// All values must come from env (or env-file loaded by the process runner).
// Scheduling knobs (retry budget, working slots, ...) are NOT here; they live in
// the scheduler_config table and are re-read on every decision.
type Config struct {
	App    AppConfig
	DB     DBConfig
	Redis  RedisConfig
	Auth   AuthConfig
	Pearl  PearlConfig
	Email  EmailConfig
	Sentry SentryConfig
	Daemon DaemonConfig
}

type AppConfig struct {
	Env  string
	Port int

	// Timezone is the single IANA zone used for now(), slot comparisons and
	// stored timestamps. Defaults to Europe/Madrid.
	Timezone string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// PearlConfig configures the NLPearl outbound calling API.
type PearlConfig struct {
	AccountID  string
	Secret     string
	OutboundID string
	BaseURL    string

	Timeout      time.Duration
	PollInterval time.Duration
	MaxCallWait  time.Duration
}

type EmailConfig struct {
	SendGridAPIKey string
	From           string
	Recipients     []string
}

type SentryConfig struct {
	DSN string
}

type DaemonConfig struct {
	// AutoStart starts the dispatcher with the process; otherwise it waits for
	// POST /v1/dispatcher/start.
	AutoStart bool
	// MaxInflight caps concurrent provider calls across replicas.
	MaxInflight int
}

const (
	DefaultTimezone     = "Europe/Madrid"
	DefaultPearlBaseURL = "https://api.nlpearl.ai/v1"
)

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}
	c.App.Timezone = strings.TrimSpace(os.Getenv("APP_TIMEZONE"))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Pearl.AccountID = strings.TrimSpace(os.Getenv("PEARL_ACCOUNT_ID"))
	c.Pearl.Secret = os.Getenv("PEARL_SECRET_KEY")
	c.Pearl.OutboundID = strings.TrimSpace(os.Getenv("PEARL_OUTBOUND_ID"))
	c.Pearl.BaseURL = strings.TrimSpace(os.Getenv("PEARL_API_URL"))
	c.Pearl.Timeout = mustDuration("PEARL_TIMEOUT")
	c.Pearl.PollInterval = mustDuration("PEARL_POLL_INTERVAL")
	c.Pearl.MaxCallWait = mustDuration("PEARL_MAX_CALL_WAIT")

	c.Email.SendGridAPIKey = os.Getenv("SENDGRID_API_KEY")
	c.Email.From = strings.TrimSpace(os.Getenv("EMAIL_FROM"))
	c.Email.Recipients = splitList(os.Getenv("EMAIL_APPOINTMENT_RECIPIENTS"))

	c.Sentry.DSN = strings.TrimSpace(os.Getenv("SENTRY_DSN"))

	c.Daemon.AutoStart = optionalBool("DAEMON_AUTOSTART", true)
	if v := strings.TrimSpace(os.Getenv("DAEMON_MAX_INFLIGHT")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("DAEMON_MAX_INFLIGHT must be an integer, got %q", v))
		}
		c.Daemon.MaxInflight = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks every field and fills defaults in place.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	if c.App.Timezone == "" {
		c.App.Timezone = DefaultTimezone
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("APP_TIMEZONE %q is not a valid IANA zone", c.App.Timezone))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 7 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Pearl.BaseURL == "" {
		c.Pearl.BaseURL = DefaultPearlBaseURL
	}
	if c.Pearl.Timeout <= 0 {
		c.Pearl.Timeout = 30 * time.Second
	}
	if c.Pearl.PollInterval <= 0 {
		c.Pearl.PollInterval = 15 * time.Second
	}
	if c.Pearl.MaxCallWait <= 0 {
		c.Pearl.MaxCallWait = 15 * time.Minute
	}
	if c.IsProduction() {
		if c.Pearl.AccountID == "" || c.Pearl.Secret == "" {
			errs = append(errs, errors.New("PEARL_ACCOUNT_ID and PEARL_SECRET_KEY are required in production"))
		}
		if c.Pearl.OutboundID == "" {
			errs = append(errs, errors.New("PEARL_OUTBOUND_ID is required in production"))
		}
	}

	if c.Email.SendGridAPIKey != "" && c.Email.From == "" {
		errs = append(errs, errors.New("EMAIL_FROM is required when SENDGRID_API_KEY is set"))
	}

	if c.Daemon.MaxInflight < 0 {
		errs = append(errs, fmt.Errorf("DAEMON_MAX_INFLIGHT must be >= 0, got %d", c.Daemon.MaxInflight))
	} else if c.Daemon.MaxInflight == 0 {
		c.Daemon.MaxInflight = 5
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

// Location resolves App.Timezone. Validate guarantees it parses.
func (c Config) Location() *time.Location {
	tz := c.App.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func optionalBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
