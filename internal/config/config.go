// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// Env is the application environment (e.g. "development", "production"). Used with OTPReturnToClient.
	Env string `mapstructure:"APP_ENV"`
	// Realm selects the portal variant: "general" or "admin".
	Realm string `mapstructure:"REALM"`
	// DatabaseURL is the Postgres DSN of the credential, profile and audit store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisURL is used when STATE_STORE or OTP_CODE_STORE is "redis" (e.g. redis://localhost:6379/0).
	RedisURL string `mapstructure:"REDIS_URL"`
	// StateStore is where the per-realm flag and session token live: "file" (default) or "redis".
	StateStore string `mapstructure:"STATE_STORE"`
	// StateDir overrides the directory of the file state store; default is the user config dir.
	StateDir string `mapstructure:"STATE_DIR"`
	// Operator names whose state a shared redis store holds; default is the OS user.
	Operator string `mapstructure:"PORTAL_OPERATOR"`

	// OTPCodeTTL is the challenge expiry (e.g. "300s").
	OTPCodeTTL string `mapstructure:"OTP_TTL"`
	// OTPResendCooldown is the wait before a new code may be requested (e.g. "60s").
	OTPResendCooldown string `mapstructure:"OTP_RESEND_COOLDOWN"`
	// OTPMaxAttempts is the number of wrong codes a challenge accepts; default 5.
	OTPMaxAttempts int `mapstructure:"OTP_MAX_ATTEMPTS"`
	// OTPCodeStore keeps delivered code hashes: "memory" (default) or "redis".
	OTPCodeStore string `mapstructure:"OTP_CODE_STORE"`
	// OTPReturnToClient when true enables dev OTP mode: no SMS, the code is printed locally.
	// Must not be true when Env is production.
	OTPReturnToClient bool `mapstructure:"OTP_RETURN_TO_CLIENT"`

	// SMSLocalAPIKey is the API key for SMS Local. Required unless OTPReturnToClient is set.
	SMSLocalAPIKey string `mapstructure:"SMS_LOCAL_API_KEY"`
	// SMSLocalSender is the optional sender ID for SMS Local.
	SMSLocalSender string `mapstructure:"SMS_LOCAL_SENDER"`
	// SMSLocalBaseURL is the SMS Local API base URL.
	SMSLocalBaseURL string `mapstructure:"SMS_LOCAL_BASE_URL"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file. Empty derives it from JWTPrivateKey.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim of session tokens.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim of session tokens.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTSessionTTL is the external session lifetime (e.g. "8h").
	JWTSessionTTL string `mapstructure:"SESSION_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// ClientCallTimeout bounds every credential, profile and OTP call (e.g. "15s").
	ClientCallTimeout string `mapstructure:"CALL_TIMEOUT"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// OTel (optional). Empty endpoint disables export.
	OTelEndpoint    string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	OTelInsecure    bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Telemetry (optional). When Kafka brokers are set, auth events are produced to Kafka.
	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// AuthEventsKafkaTopic is the Kafka topic for auth events.
	AuthEventsKafkaTopic string `mapstructure:"AUTH_EVENTS_KAFKA_TOPIC"`

	// Worker-only: Loki URL for the events worker to push logs (e.g. http://localhost:3100).
	LokiURL string `mapstructure:"LOKI_URL"`
	// KafkaGroupID is the consumer group ID for the events worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("APP_ENV", "")
	v.SetDefault("REALM", "general")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("STATE_STORE", "file")
	v.SetDefault("STATE_DIR", "")
	v.SetDefault("PORTAL_OPERATOR", "")
	v.SetDefault("OTP_TTL", "300s")
	v.SetDefault("OTP_RESEND_COOLDOWN", "60s")
	v.SetDefault("OTP_MAX_ATTEMPTS", 5)
	v.SetDefault("OTP_CODE_STORE", "memory")
	v.SetDefault("OTP_RETURN_TO_CLIENT", false)
	v.SetDefault("SMS_LOCAL_API_KEY", "")
	v.SetDefault("SMS_LOCAL_SENDER", "")
	v.SetDefault("SMS_LOCAL_BASE_URL", "https://www.smslocal.com/dev/bulkV2")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "portal-auth")
	v.SetDefault("JWT_AUDIENCE", "portal")
	v.SetDefault("SESSION_TTL", "8h")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("CALL_TIMEOUT", "15s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_SERVICE_NAME", "portal")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUTH_EVENTS_KAFKA_TOPIC", "portal-auth-events")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("KAFKA_GROUP_ID", "portal-events-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	cfg.Realm = strings.ToLower(strings.TrimSpace(cfg.Realm))
	if cfg.Realm != "general" && cfg.Realm != "admin" {
		return nil, errors.New("config: REALM must be general or admin")
	}

	if cfg.OTPReturnToClient && cfg.Env == "production" {
		return nil, errors.New("config: OTP_RETURN_TO_CLIENT must not be true when APP_ENV=production")
	}

	switch cfg.StateStore {
	case "file", "redis":
	default:
		return nil, errors.New("config: STATE_STORE must be file or redis")
	}
	switch cfg.OTPCodeStore {
	case "memory", "redis":
	default:
		return nil, errors.New("config: OTP_CODE_STORE must be memory or redis")
	}
	if (cfg.StateStore == "redis" || cfg.OTPCodeStore == "redis") && cfg.RedisURL == "" {
		return nil, errors.New("config: REDIS_URL must be set when a redis store is selected")
	}

	if cfg.OTPMaxAttempts == 0 {
		cfg.OTPMaxAttempts = 5
	}
	if cfg.OTPMaxAttempts < 1 {
		return nil, errors.New("config: OTP_MAX_ATTEMPTS must be at least 1")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// OTPTTL parses OTPCodeTTL. Returns 300s if unset or invalid.
func (c *Config) OTPTTL() time.Duration {
	return parseDuration(c.OTPCodeTTL, 300*time.Second)
}

// ResendCooldown parses OTPResendCooldown. Returns 60s if unset or invalid.
func (c *Config) ResendCooldown() time.Duration {
	return parseDuration(c.OTPResendCooldown, 60*time.Second)
}

// SessionTTL parses JWTSessionTTL. Returns 8h if unset or invalid.
func (c *Config) SessionTTL() time.Duration {
	return parseDuration(c.JWTSessionTTL, 8*time.Hour)
}

// CallTimeout parses ClientCallTimeout. Returns 15s if unset or invalid.
func (c *Config) CallTimeout() time.Duration {
	return parseDuration(c.ClientCallTimeout, 15*time.Second)
}

// OperatorID returns Operator, else the OS user name, else "default".
func (c *Config) OperatorID() string {
	if op := strings.TrimSpace(c.Operator); op != "" {
		return op
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if name := os.Getenv("USER"); name != "" {
		return name
	}
	return "default"
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if event export is enabled (non-empty list) and to create the producer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
