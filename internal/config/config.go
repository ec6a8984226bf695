package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the orchestrator process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Vapi     VapiConfig
	Dispatch DispatchConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
}

// VapiConfig holds the outbound call provider credentials.
// An empty APIKey means the provider is unconfigured; the dispatcher routes
// claimed jobs straight to fallback in that case rather than failing the cycle.
type VapiConfig struct {
	APIKey        string
	AssistantID   string
	PhoneNumberID string
	BaseURL       string
}

type DispatchConfig struct {
	// BatchSize is the default claim size when a trigger does not supply one.
	BatchSize int
	// MaxBatchSize caps caller-supplied batch sizes to respect provider rate limits.
	MaxBatchSize int
	// Workers bounds in-cycle dispatch parallelism. 1 means sequential.
	Workers int
	// Interval is the periodic dispatch tick. Zero disables scheduled dispatch.
	Interval time.Duration
	// SweepAge is how long a job may sit awaiting a callback before the sweep
	// routes it to fallback.
	SweepAge time.Duration
	// SweepInterval is the periodic sweep tick. Zero disables the sweep loop.
	SweepInterval time.Duration
	// Campaign is the sequence tag applied to fallback enrollments.
	Campaign string
	// DefaultRegion is the parse region for nationally formatted phone numbers.
	DefaultRegion string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

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
	// Optional; default applied in Validate().
	c.Auth.AccessTokenTTL = optDuration("JWT_ACCESS_TTL")

	c.Vapi.APIKey = os.Getenv("VAPI_API_KEY")
	c.Vapi.AssistantID = strings.TrimSpace(os.Getenv("VAPI_ASSISTANT_ID"))
	c.Vapi.PhoneNumberID = strings.TrimSpace(os.Getenv("VAPI_PHONE_NUMBER_ID"))
	c.Vapi.BaseURL = strings.TrimSpace(os.Getenv("VAPI_BASE_URL"))

	c.Dispatch.BatchSize = optInt("DISPATCH_BATCH_SIZE")
	c.Dispatch.MaxBatchSize = optInt("DISPATCH_MAX_BATCH_SIZE")
	c.Dispatch.Workers = optInt("DISPATCH_WORKERS")
	c.Dispatch.Interval = optDuration("DISPATCH_INTERVAL")
	c.Dispatch.SweepAge = optDuration("DISPATCH_SWEEP_AGE")
	c.Dispatch.SweepInterval = optDuration("DISPATCH_SWEEP_INTERVAL")
	c.Dispatch.Campaign = strings.TrimSpace(os.Getenv("DISPATCH_CAMPAIGN"))
	c.Dispatch.DefaultRegion = strings.TrimSpace(os.Getenv("DISPATCH_DEFAULT_REGION"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

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
			// Local-friendly default; production must be explicit.
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

	// Vapi credentials are optional: an unconfigured provider is a fallback
	// trigger at dispatch time, not a boot failure. Partial configuration is a
	// deploy mistake worth rejecting early, though.
	if c.Vapi.APIKey != "" {
		if c.Vapi.AssistantID == "" {
			errs = append(errs, errors.New("VAPI_ASSISTANT_ID is required when VAPI_API_KEY is set"))
		}
		if c.Vapi.PhoneNumberID == "" {
			errs = append(errs, errors.New("VAPI_PHONE_NUMBER_ID is required when VAPI_API_KEY is set"))
		}
	}
	if c.Vapi.BaseURL == "" {
		c.Vapi.BaseURL = "https://api.vapi.ai"
	}

	if c.Dispatch.BatchSize <= 0 {
		c.Dispatch.BatchSize = 5
	}
	if c.Dispatch.MaxBatchSize <= 0 {
		c.Dispatch.MaxBatchSize = 20
	}
	if c.Dispatch.BatchSize > c.Dispatch.MaxBatchSize {
		errs = append(errs, fmt.Errorf("DISPATCH_BATCH_SIZE %d exceeds DISPATCH_MAX_BATCH_SIZE %d", c.Dispatch.BatchSize, c.Dispatch.MaxBatchSize))
	}
	if c.Dispatch.Workers <= 0 {
		c.Dispatch.Workers = 1
	}
	if c.Dispatch.Workers > 4 {
		errs = append(errs, fmt.Errorf("DISPATCH_WORKERS must be 1-4, got %d", c.Dispatch.Workers))
	}
	if c.Dispatch.SweepAge <= 0 {
		c.Dispatch.SweepAge = 15 * time.Minute
	}
	if c.Dispatch.Campaign == "" {
		c.Dispatch.Campaign = "onboarding_drip"
	}
	if c.Dispatch.DefaultRegion == "" {
		c.Dispatch.DefaultRegion = "US"
	}

	return joinErrors(errs)
}

func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c *Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c *Config) PostgresDSN() string {
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

func (c *Config) RedisAddr() string {
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

func optInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func optDuration(key string) time.Duration {
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
