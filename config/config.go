package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Host     string
	Port     string
	AppName  string
	LogLevel string

	// GameID keys this gateway's rows in the commission table.
	GameID string

	DB DBConfig

	// AuthSecretKey signs provider session tokens and is the fallback
	// verification key for agents without a game key.
	AuthSecretKey string

	API APIConfig

	WalletTimeout      time.Duration
	CacheTTL           time.Duration
	CacheSweepInterval time.Duration
	RoundLock          string

	NATSURL     string
	NATSSubject string
}

type DBConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	Migrate  bool
}

type APIConfig struct {
	URL       string
	Username  string
	Key       string
	ProductID string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Host:     getEnv("HOST", "127.0.0.1"),
		Port:     getEnv("PORT", "3000"),
		AppName:  getEnv("APP_NAME", "i8gateway"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		GameID:   getEnv("GAME_ID", "i8"),
		DB: DBConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     os.Getenv("DB_PORT"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     os.Getenv("DB_NAME"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		AuthSecretKey: os.Getenv("AUTH_SECRET_KEY"),
		API: APIConfig{
			URL:       os.Getenv("API_URL"),
			Username:  os.Getenv("API_USERNAME"),
			Key:       os.Getenv("API_KEY"),
			ProductID: os.Getenv("API_PRODUCT_ID"),
		},
		RoundLock:   getEnv("ROUND_LOCK", "memory"),
		NATSURL:     os.Getenv("NATS_URL"),
		NATSSubject: getEnv("NATS_SUBJECT", "i8gateway.ledger"),
	}

	var err error
	if cfg.DB.Migrate, err = getBool("DB_MIGRATE", false); err != nil {
		return nil, err
	}
	if cfg.WalletTimeout, err = getDuration("WALLET_TIMEOUT", 20*time.Second); err != nil {
		return nil, err
	}
	if cfg.CacheTTL, err = getDuration("CACHE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.CacheSweepInterval, err = getDuration("CACHE_SWEEP_INTERVAL", 10*time.Minute); err != nil {
		return nil, err
	}

	if cfg.DB.Port == "" {
		if cfg.DB.Driver == "mysql" {
			cfg.DB.Port = "3306"
		} else {
			cfg.DB.Port = "5432"
		}
	}

	switch cfg.DB.Driver {
	case "postgres", "mysql":
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DB.Driver)
	}
	switch cfg.RoundLock {
	case "memory", "database":
	default:
		return nil, fmt.Errorf("unsupported ROUND_LOCK %q", cfg.RoundLock)
	}
	if cfg.AuthSecretKey == "" {
		return nil, fmt.Errorf("AUTH_SECRET_KEY is required")
	}

	return cfg, nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%s", c.Host, c.Port)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	return d, nil
}
