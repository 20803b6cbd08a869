package config

import (
	"fmt"
	"os"
	"time"
)

type Config struct {
	BrokerURL string
	APIURL    string
	DBFile    string
	Notify    bool

	DedupWindow    time.Duration
	TypingExpiry   time.Duration
	TypingSuppress time.Duration

	// Reconnect policy applied by the caller of the transport,
	// not by the transport itself.
	ReconnectAttempts int
	ReconnectDelay    time.Duration
}

func Load() (*Config, error) {
	dedupWindow, err := time.ParseDuration(getEnv("LICHKA_DEDUP_WINDOW", "10s"))
	if err != nil {
		return nil, fmt.Errorf("LICHKA_DEDUP_WINDOW: %w", err)
	}
	typingExpiry, err := time.ParseDuration(getEnv("LICHKA_TYPING_EXPIRY", "3s"))
	if err != nil {
		return nil, fmt.Errorf("LICHKA_TYPING_EXPIRY: %w", err)
	}
	typingSuppress, err := time.ParseDuration(getEnv("LICHKA_TYPING_SUPPRESS", "1s"))
	if err != nil {
		return nil, fmt.Errorf("LICHKA_TYPING_SUPPRESS: %w", err)
	}

	cfg := &Config{
		BrokerURL:         getEnv("LICHKA_BROKER_URL", "ws://localhost:8080/ws"),
		APIURL:            getEnv("LICHKA_API_URL", "http://localhost:8080"),
		DBFile:            getEnv("LICHKA_DB", "lichka.db"),
		Notify:            getEnv("LICHKA_NOTIFY", "1") != "0",
		DedupWindow:       dedupWindow,
		TypingExpiry:      typingExpiry,
		TypingSuppress:    typingSuppress,
		ReconnectAttempts: 5,
		ReconnectDelay:    3 * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.BrokerURL == "" {
		return fmt.Errorf("LICHKA_BROKER_URL is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("LICHKA_API_URL is required")
	}
	if c.DedupWindow <= 0 || c.TypingExpiry <= 0 || c.TypingSuppress <= 0 {
		return fmt.Errorf("timing windows must be greater than 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
