package config

import (
	"encoding/base64"
	"fmt"
	"time"
)

const (
	DefaultMaxMessageLength = 1000
	DefaultRateLimitWindow  = time.Minute
	DefaultRateLimitMax     = 60
	DefaultMessageIndexCap  = 1000
	DefaultRecentCacheCap   = 100
	DefaultEventRetention   = 30 * 24 * time.Hour
	DefaultJanitorInterval  = time.Hour
)

type Config struct {
	ServerAddr     string
	RedisAddr      string
	RedisPassword  string
	AllowedOrigins []string
	SigningKey     []byte

	MaxMessageLength int
	RateLimitWindow  time.Duration
	RateLimitMax     int
	MessageIndexCap  int
	RecentCacheCap   int
	EventRetention   time.Duration
	JanitorInterval  time.Duration
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(serverAddr, redisAddr, redisPassword, base64Secret string, allowedOrigins []string) (*Config, error) {
	if serverAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}

	cfg := &Config{
		ServerAddr:       serverAddr,
		RedisAddr:        redisAddr,
		RedisPassword:    redisPassword,
		AllowedOrigins:   allowedOrigins,
		MaxMessageLength: DefaultMaxMessageLength,
		RateLimitWindow:  DefaultRateLimitWindow,
		RateLimitMax:     DefaultRateLimitMax,
		MessageIndexCap:  DefaultMessageIndexCap,
		RecentCacheCap:   DefaultRecentCacheCap,
		EventRetention:   DefaultEventRetention,
		JanitorInterval:  DefaultJanitorInterval,
	}

	if base64Secret != "" {
		signingKey, err := decodeSigningSecret(base64Secret)
		if err != nil {
			return nil, fmt.Errorf("decode signing secret: %w", err)
		}
		cfg.SigningKey = signingKey
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("max message length must be positive")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	if c.RateLimitMax <= 0 {
		return fmt.Errorf("rate limit max must be positive")
	}
	if c.MessageIndexCap <= 0 {
		return fmt.Errorf("message index cap must be positive")
	}
	if c.RecentCacheCap <= 0 {
		return fmt.Errorf("recent cache cap must be positive")
	}
	if c.RecentCacheCap > c.MessageIndexCap {
		return fmt.Errorf("recent cache cap cannot exceed message index cap")
	}
	if c.EventRetention <= 0 {
		return fmt.Errorf("event retention must be positive")
	}

	return nil
}
