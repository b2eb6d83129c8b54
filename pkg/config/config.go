package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// DefaultTokenSecret signs resume tokens outside production only.
	DefaultTokenSecret = "dev_session_secret"
)

var ErrInsecureTokenSecret = errors.New("SESSION_TOKEN_SECRET must be set to a non-default value in production")

type Config struct {
	Env        string
	ListenAddr string
	HTTPPort   int

	Database  DatabaseConfig
	Redis     RedisConfig
	Session   SessionConfig
	Auth      AuthConfig
	Profiles  ProfileCacheConfig
	Log       LogConfig
	WebSocket WebSocketConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool

	// AcquireTimeout bounds the wait for a pooled connection before a transaction starts.
	AcquireTimeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// SessionConfig tunes per-connection behaviour.
type SessionConfig struct {
	IdleTimeout   time.Duration
	WriteTimeout  time.Duration
	RateLimit     float64
	RateBurst     int
	MaxFrameBytes int
	Greeting      string
}

// AuthConfig configures session resume tokens.
type AuthConfig struct {
	TokenSecret string
	TokenTTL    time.Duration
	Issuer      string
}

// ProfileCacheConfig toggles the redis read-through cache for student profiles.
type ProfileCacheConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// WebSocketConfig toggles the websocket acceptor on the admin HTTP server.
type WebSocketConfig struct {
	Enabled        bool
	Path           string
	AllowedOrigins []string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that are unsafe for the configured environment.
func (c *Config) Validate() error {
	if c.Env == EnvProduction {
		secret := strings.TrimSpace(c.Auth.TokenSecret)
		if secret == "" || secret == DefaultTokenSecret {
			return ErrInsecureTokenSecret
		}
	}
	return nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.ListenAddr = v.GetString("LISTEN_ADDR")
	cfg.HTTPPort = v.GetInt("HTTP_PORT")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),

		AcquireTimeout: parseDuration(v.GetString("DB_ACQUIRE_TIMEOUT"), 15*time.Second),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Session = SessionConfig{
		IdleTimeout:   parseDuration(v.GetString("SESSION_IDLE_TIMEOUT"), 5*time.Minute),
		WriteTimeout:  parseDuration(v.GetString("SESSION_WRITE_TIMEOUT"), 10*time.Second),
		RateLimit:     v.GetFloat64("SESSION_RATE_LIMIT"),
		RateBurst:     v.GetInt("SESSION_RATE_BURST"),
		MaxFrameBytes: v.GetInt("MAX_FRAME_BYTES"),
		Greeting:      v.GetString("GREETING_MESSAGE"),
	}

	cfg.Auth = AuthConfig{
		TokenSecret: v.GetString("SESSION_TOKEN_SECRET"),
		TokenTTL:    parseDuration(v.GetString("SESSION_TOKEN_TTL"), 12*time.Hour),
		Issuer:      v.GetString("SESSION_TOKEN_ISSUER"),
	}

	cfg.Profiles = ProfileCacheConfig{
		CacheEnabled: v.GetBool("ENABLE_PROFILE_CACHE"),
		CacheTTL:     parseDuration(v.GetString("PROFILE_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.WebSocket = WebSocketConfig{
		Enabled:        v.GetBool("ENABLE_WEBSOCKET"),
		Path:           v.GetString("WEBSOCKET_PATH"),
		AllowedOrigins: splitAndTrim(v.GetString("WS_ALLOWED_ORIGINS")),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("LISTEN_ADDR", ":9400")
	v.SetDefault("HTTP_PORT", 8080)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "campus")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)
	v.SetDefault("DB_ACQUIRE_TIMEOUT", "15s")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("SESSION_IDLE_TIMEOUT", "5m")
	v.SetDefault("SESSION_WRITE_TIMEOUT", "10s")
	v.SetDefault("SESSION_RATE_LIMIT", 20)
	v.SetDefault("SESSION_RATE_BURST", 40)
	v.SetDefault("MAX_FRAME_BYTES", 1<<20)
	v.SetDefault("GREETING_MESSAGE", "Welcome to campus services")

	v.SetDefault("SESSION_TOKEN_SECRET", DefaultTokenSecret)
	v.SetDefault("SESSION_TOKEN_TTL", "12h")
	v.SetDefault("SESSION_TOKEN_ISSUER", "campus-gateway")

	v.SetDefault("ENABLE_PROFILE_CACHE", false)
	v.SetDefault("PROFILE_CACHE_TTL", "10m")

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_WEBSOCKET", false)
	v.SetDefault("WEBSOCKET_PATH", "/ws")
	v.SetDefault("WS_ALLOWED_ORIGINS", "")
}

// isMissingFile treats an absent .env as "use defaults and environment".
func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
