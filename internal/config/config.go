package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const defaultJWTSecret = "dev-secret-change-me"

type Config struct {
	Port                  string
	DatabaseDSN           string
	JWTSecret             string
	Env                   string
	AccessTokenTTLMinutes int
	RefreshTokenTTLDays   int
	LogFile               string

	RealtimeBroker string
	RedisURL       string
	NATSURL        string

	MessageRetentionHours int
	SweepIntervalMinutes  int

	CORSAllowedOrigins []string

	OTelEnabled  bool
	OTelEndpoint string
}

// fileValues holds keys read from the optional TOML file, lower-cased env names.
type fileValues map[string]string

func (f fileValues) getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	if v, ok := f[strings.ToLower(key)]; ok && v != "" {
		return v
	}
	return def
}

func (f fileValues) positive(key string, def int) int {
	n, err := strconv.Atoi(f.getenv(key, strconv.Itoa(def)))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func readFile(path string) fileValues {
	out := fileValues{}
	if path == "" {
		return out
	}
	var raw map[string]interface{}
	if _, err := toml.DecodeFile(path, &raw); err != nil {
		log.Warn().Err(err).Str("path", path).Msg("config file ignored")
		return out
	}
	for k, v := range raw {
		out[strings.ToLower(k)] = fmt.Sprint(v)
	}
	return out
}

// Load reads configuration from the environment. An optional .env is loaded
// first and CONFIG_FILE may point at a TOML file whose keys act as defaults.
func Load() Config {
	_ = godotenv.Load()
	f := readFile(os.Getenv("CONFIG_FILE"))

	var origins []string
	for _, o := range strings.Split(f.getenv("CORS_ALLOWED_ORIGINS", ""), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	otel, _ := strconv.ParseBool(f.getenv("OTEL_ENABLED", "false"))

	return Config{
		Port:                  f.getenv("APP_PORT", "8080"),
		DatabaseDSN:           f.getenv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=termchat port=5432 sslmode=disable TimeZone=UTC"),
		JWTSecret:             f.getenv("JWT_SECRET", defaultJWTSecret),
		Env:                   f.getenv("APP_ENV", "dev"),
		AccessTokenTTLMinutes: f.positive("ACCESS_TOKEN_TTL_MINUTES", 15),
		RefreshTokenTTLDays:   f.positive("REFRESH_TOKEN_TTL_DAYS", 7),
		LogFile:               f.getenv("LOG_FILE", ""),
		RealtimeBroker:        f.getenv("REALTIME_BROKER", "local"),
		RedisURL:              f.getenv("REDIS_URL", "redis://localhost:6379/0"),
		NATSURL:               f.getenv("NATS_URL", "nats://localhost:4222"),
		MessageRetentionHours: f.positive("MESSAGE_RETENTION_HOURS", 24),
		SweepIntervalMinutes:  f.positive("SWEEP_INTERVAL_MINUTES", 60),
		CORSAllowedOrigins:    origins,
		OTelEnabled:           otel,
		OTelEndpoint:          f.getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
	}
}

// Validate rejects configurations the server cannot start with.
func Validate(cfg Config) error {
	if cfg.Port == "" {
		return errors.New("APP_PORT must not be empty")
	}
	if cfg.DatabaseDSN == "" {
		return errors.New("DATABASE_DSN must not be empty")
	}
	if cfg.Env != "dev" && (cfg.JWTSecret == "" || cfg.JWTSecret == defaultJWTSecret) {
		return fmt.Errorf("JWT_SECRET must be set when APP_ENV=%s", cfg.Env)
	}
	switch cfg.RealtimeBroker {
	case "", "local", "redis", "nats":
	default:
		return fmt.Errorf("unknown REALTIME_BROKER %q", cfg.RealtimeBroker)
	}
	return nil
}
