package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the API process.
// All values must come from env (or a .env file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	Store    StoreConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Twilio   TwilioConfig
	OpenAI   OpenAIConfig
	Google   GoogleConfig
	Analysis AnalysisConfig
	Pipeline PipelineConfig
	Upload   UploadConfig
}

type AppConfig struct {
	Env      string
	Port     int
	LogLevel string
}

// StoreConfig selects the call/transcription repository.
// Accepts: memory, postgres, firestore
type StoreConfig struct {
	Driver string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

// RedisConfig is optional. When Host is empty the pipeline falls back to in-process call locks.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

type TwilioConfig struct {
	AccountSID  string
	AuthToken   string
	PhoneNumber string

	// ValidateSignature enables X-Twilio-Signature checks on webhooks.
	ValidateSignature bool
	// PublicBaseURL is the externally visible origin used to rebuild signed webhook URLs.
	PublicBaseURL string
}

type OpenAIConfig struct {
	APIKey             string
	BaseURL            string
	TranscriptionModel string
	AnalysisModel      string
	Language           string
	RequestTimeout     time.Duration
}

type GoogleConfig struct {
	ProjectID string
	Region    string
	// StorageEnabled allows gs:// recording references.
	StorageEnabled bool
}

// AnalysisConfig selects the language-model backend.
// Accepts: openai, vertex
type AnalysisConfig struct {
	Provider    string
	VertexModel string
}

type PipelineConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	// StartDelay postpones background processing after a call is created. Zero in production.
	StartDelay   time.Duration
	LockTTL      time.Duration
	FetchTimeout time.Duration
}

type UploadConfig struct {
	Dir      string
	MaxBytes int64
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.Port, parseErrs = optionalInt(parseErrs, "APP_PORT", 5001)
	c.App.LogLevel = strings.TrimSpace(os.Getenv("LOG_LEVEL"))

	c.Store.Driver = strings.ToLower(strings.TrimSpace(os.Getenv("STORE_DRIVER")))

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	c.DB.Port, parseErrs = optionalInt(parseErrs, "DB_PORT", 5432)
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	c.Redis.Port, parseErrs = optionalInt(parseErrs, "REDIS_PORT", 6379)
	c.Redis.Password = os.Getenv("REDIS_PASSWORD")
	c.Redis.DB, parseErrs = optionalInt(parseErrs, "REDIS_DB", 0)

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL, parseErrs = optionalDuration(parseErrs, "JWT_REFRESH_TTL")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.PhoneNumber = strings.TrimSpace(os.Getenv("TWILIO_PHONE_NUMBER"))
	c.Twilio.ValidateSignature, parseErrs = optionalBool(parseErrs, "TWILIO_VALIDATE_SIGNATURE")
	c.Twilio.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")

	c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAI.BaseURL = strings.TrimSpace(os.Getenv("OPENAI_BASE_URL"))
	c.OpenAI.TranscriptionModel = strings.TrimSpace(os.Getenv("OPENAI_TRANSCRIPTION_MODEL"))
	c.OpenAI.AnalysisModel = strings.TrimSpace(os.Getenv("OPENAI_ANALYSIS_MODEL"))
	c.OpenAI.Language = strings.TrimSpace(os.Getenv("TRANSCRIPTION_LANGUAGE"))
	c.OpenAI.RequestTimeout, parseErrs = optionalDuration(parseErrs, "OPENAI_REQUEST_TIMEOUT")

	c.Google.ProjectID = strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_PROJECT"))
	c.Google.Region = strings.TrimSpace(os.Getenv("GOOGLE_CLOUD_REGION"))
	c.Google.StorageEnabled, parseErrs = optionalBool(parseErrs, "GCS_RECORDINGS_ENABLED")

	c.Analysis.Provider = strings.ToLower(strings.TrimSpace(os.Getenv("ANALYSIS_PROVIDER")))
	c.Analysis.VertexModel = strings.TrimSpace(os.Getenv("VERTEX_MODEL"))

	c.Pipeline.MaxAttempts, parseErrs = optionalInt(parseErrs, "PIPELINE_MAX_ATTEMPTS", 0)
	c.Pipeline.InitialDelay, parseErrs = optionalDuration(parseErrs, "PIPELINE_RETRY_DELAY")
	c.Pipeline.StartDelay, parseErrs = optionalDuration(parseErrs, "PIPELINE_START_DELAY")
	c.Pipeline.LockTTL, parseErrs = optionalDuration(parseErrs, "PIPELINE_LOCK_TTL")
	c.Pipeline.FetchTimeout, parseErrs = optionalDuration(parseErrs, "RECORDING_FETCH_TIMEOUT")

	c.Upload.Dir = strings.TrimSpace(os.Getenv("UPLOAD_DIR"))
	{
		n, errs := optionalInt(parseErrs, "UPLOAD_MAX_BYTES", 0)
		parseErrs = errs
		c.Upload.MaxBytes = int64(n)
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate applies defaults in place, then reports every invalid setting at once.
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

	if c.Store.Driver == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("STORE_DRIVER is required in production"))
		} else {
			c.Store.Driver = "memory"
		}
	}
	switch c.Store.Driver {
	case "", "memory":
	case "postgres":
		errs = append(errs, c.validateDB()...)
	case "firestore":
		if c.Google.ProjectID == "" {
			errs = append(errs, errors.New("GOOGLE_CLOUD_PROJECT is required for the firestore store"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be one of memory, postgres, firestore, got %q", c.Store.Driver))
	}

	if c.Redis.Host != "" && (c.Redis.Port <= 0 || c.Redis.Port > 65535) {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" && c.IsProduction() {
		errs = append(errs, errors.New("JWT_SECRET is required in production"))
	}
	if c.IsProduction() && c.Auth.JWTSecret != "" {
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
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Twilio.PhoneNumber == "" {
		c.Twilio.PhoneNumber = "+15551234567"
	}
	if c.Twilio.ValidateSignature && c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required when TWILIO_VALIDATE_SIGNATURE is set"))
	}

	if c.OpenAI.TranscriptionModel == "" {
		c.OpenAI.TranscriptionModel = "whisper-1"
	}
	if c.OpenAI.AnalysisModel == "" {
		c.OpenAI.AnalysisModel = "gpt-3.5-turbo"
	}
	if c.OpenAI.Language == "" {
		c.OpenAI.Language = "en"
	}
	if c.OpenAI.RequestTimeout <= 0 {
		c.OpenAI.RequestTimeout = 2 * time.Minute
	}
	if c.OpenAI.APIKey == "" && c.IsProduction() {
		errs = append(errs, errors.New("OPENAI_API_KEY is required in production"))
	}

	if c.Analysis.Provider == "" {
		c.Analysis.Provider = "openai"
	}
	switch c.Analysis.Provider {
	case "openai":
	case "vertex":
		if c.Google.ProjectID == "" {
			errs = append(errs, errors.New("GOOGLE_CLOUD_PROJECT is required for the vertex analysis provider"))
		}
		if c.Google.Region == "" {
			c.Google.Region = "us-central1"
		}
		if c.Analysis.VertexModel == "" {
			c.Analysis.VertexModel = "gemini-1.5-flash"
		}
	default:
		errs = append(errs, fmt.Errorf("ANALYSIS_PROVIDER must be one of openai, vertex, got %q", c.Analysis.Provider))
	}

	if c.Pipeline.MaxAttempts <= 0 {
		c.Pipeline.MaxAttempts = 3
	}
	if c.Pipeline.InitialDelay <= 0 {
		c.Pipeline.InitialDelay = time.Second
	}
	if c.Pipeline.StartDelay < 0 {
		errs = append(errs, errors.New("PIPELINE_START_DELAY must not be negative"))
	}
	if c.Pipeline.LockTTL <= 0 {
		c.Pipeline.LockTTL = 10 * time.Minute
	}
	if c.Pipeline.FetchTimeout <= 0 {
		c.Pipeline.FetchTimeout = 60 * time.Second
	}

	if c.Upload.Dir == "" {
		c.Upload.Dir = "uploads"
	}
	if c.Upload.MaxBytes <= 0 {
		c.Upload.MaxBytes = 10 << 20
	}

	return joinErrors(errs)
}

func (c *Config) validateDB() []error {
	var errs []error
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
	return errs
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) AuthEnabled() bool {
	return c.Auth.JWTSecret != ""
}

func (c Config) RedisEnabled() bool {
	return c.Redis.Host != ""
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

func optionalInt(errs []error, key string, def int) (int, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, errs
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def, append(errs, fmt.Errorf("%s must be an integer, got %q", key, v))
	}
	return n, errs
}

func optionalDuration(errs []error, key string) (time.Duration, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, errs
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, append(errs, fmt.Errorf("%s must be a duration, got %q", key, v))
	}
	return d, errs
}

func optionalBool(errs []error, key string) (bool, []error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false, errs
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, append(errs, fmt.Errorf("%s must be a boolean, got %q", key, v))
	}
	return b, errs
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
