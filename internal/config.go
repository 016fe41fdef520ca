package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

type Config struct {
	Env      string         `mapstructure:"env" validate:"omitempty,oneof=development staging production"`
	Server   ServerConfig   `mapstructure:"http_server"`
	Database DatabaseConfig `mapstructure:"database"`
	Security SecurityConfig `mapstructure:"security"`
	Payment  PaymentConfig  `mapstructure:"payment"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	BaseURL           string        `mapstructure:"base_url" validate:"omitempty,url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"required,min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Source          string        `mapstructure:"source" validate:"required"`
}

type SecurityConfig struct {
	JWTSecret      string        `mapstructure:"jwt_secret" validate:"required,min=32"`
	JWTIssuer      string        `mapstructure:"jwt_issuer"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl" validate:"min=0"`
}

type PaymentConfig struct {
	DefaultCancelTimeout time.Duration   `mapstructure:"default_cancel_timeout" validate:"min=0"`
	PublicBaseURL        string          `mapstructure:"public_base_url" validate:"omitempty,url"`
	SweepInterval        time.Duration   `mapstructure:"sweep_interval" validate:"omitempty,min=1s"`
	SweepBatchSize       int             `mapstructure:"sweep_batch_size" validate:"min=0,max=10000"`
	Simulator            SimulatorConfig `mapstructure:"simulator"`
}

type SimulatorConfig struct {
	MaxWorkers   int           `mapstructure:"max_workers" validate:"min=0"`
	JobQueueSize int           `mapstructure:"job_queue_size" validate:"min=0"`
	SuccessRate  float64       `mapstructure:"success_rate" validate:"min=0,max=1"`
	MaxDelay     time.Duration `mapstructure:"max_delay" validate:"min=0"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json text"`
}

// ----------------- DEFAULTS -----------------

const (
	DefaultCancelTimeout  = 15 * time.Minute
	DefaultSweepInterval  = time.Minute
	DefaultSweepBatchSize = 100
	DefaultAccessTokenTTL = time.Hour
)

// ApplyDefaults fills zero values that have a sensible non-zero default.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Payment.SweepInterval == 0 {
		c.Payment.SweepInterval = DefaultSweepInterval
	}
	if c.Payment.SweepBatchSize == 0 {
		c.Payment.SweepBatchSize = DefaultSweepBatchSize
	}
	if c.Security.AccessTokenTTL == 0 {
		c.Security.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// ----------------- ENV LOADING -----------------

func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Env: getEnv("APP_ENV", "production"),
		Server: ServerConfig{
			Port:              getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:           getEnv("HTTP_BASE_URL", ""),
			AllowedOrigins:    getEnv("HTTP_ALLOWED_ORIGINS", "*"),
			ReadHeaderTimeout: getEnvAsDuration("HTTP_READ_HEADER_TIMEOUT", 5*time.Second),
			ReadTimeout:       getEnvAsDuration("HTTP_READ_TIMEOUT", 15*time.Second),
			IdleTimeout:       getEnvAsDuration("HTTP_IDLE_TIMEOUT", 60*time.Second),
			WriteTimeout:      getEnvAsDuration("HTTP_WRITE_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvAsDuration("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			Source:          getEnv("DB_SOURCE", ""),
		},
		Security: SecurityConfig{
			JWTSecret:      getEnv("JWT_SECRET", ""),
			JWTIssuer:      getEnv("JWT_ISSUER", ""),
			AccessTokenTTL: getEnvAsDuration("JWT_ACCESS_TOKEN_TTL", DefaultAccessTokenTTL),
		},
		Payment: PaymentConfig{
			DefaultCancelTimeout: getEnvAsDuration("PAYMENT_DEFAULT_CANCEL_TIMEOUT", DefaultCancelTimeout),
			PublicBaseURL:        getEnv("PAYMENT_PUBLIC_BASE_URL", ""),
			SweepInterval:        getEnvAsDuration("PAYMENT_SWEEP_INTERVAL", DefaultSweepInterval),
			SweepBatchSize:       getEnvAsInt("PAYMENT_SWEEP_BATCH_SIZE", DefaultSweepBatchSize),
			Simulator: SimulatorConfig{
				MaxWorkers:   getEnvAsInt("SIMULATOR_MAX_WORKERS", 4),
				JobQueueSize: getEnvAsInt("SIMULATOR_JOB_QUEUE_SIZE", 100),
				SuccessRate:  getEnvAsFloat("SIMULATOR_SUCCESS_RATE", 0.9),
				MaxDelay:     getEnvAsDuration("SIMULATOR_MAX_DELAY", 5*time.Second),
			},
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

// ----------------- VALIDATION -----------------

var configValidator = validator.New()

func (c *Config) Validate() error {
	var errs []string

	if err := configValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed on %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		origins := strings.Split(c.AllowedOrigins, ",")
		for _, origin := range origins {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

// AccessPointURL builds the public URL a provider calls back for a gateway endpoint.
func (c *PaymentConfig) AccessPointURL(code, endpoint string) string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/api/pay/" + url.PathEscape(code) + "/" + url.PathEscape(endpoint)
}
