package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	pkgstrings "attest/pkg/platform/strings"
)

// DefaultLockTTL matches the expiry of the concurrency lock records.
const DefaultLockTTL = 55 * time.Second

// DefaultKeyCollectionSize is the bucket size used when KEY_COLLECTION_SIZE is unset.
const DefaultKeyCollectionSize = 20

// insecureJWTSigningKey is the placeholder shipped in sample environments.
const insecureJWTSigningKey = "dev-secret-key-change-in-production"

// minJWTSigningKeyBytes is the HS256 key length floor.
const minJWTSigningKeyBytes = 32

// Config captures process level configuration.
type Config struct {
	Addr     string
	LogLevel string

	// ServerSecret derives the key that unlocks the root identity's secret key.
	ServerSecret string
	// ServerIdentityFile is the path of the root identity file written at bootstrap.
	ServerIdentityFile string
	// KeyCollectionSize is fixed for the lifetime of a deployment.
	KeyCollectionSize  int
	AuthorizationTypes []string
	LockTTL            time.Duration

	JWTSigningKey  string
	JWTIssuer      string
	JWTAudience    string
	AccessTokenTTL time.Duration
	ChallengeTTL   time.Duration

	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
}

// RedisConfig configures the optional Redis lock backend.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the optional credential event log.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables and validates it.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:               envOr("ATTEST_ADDR", ":8080"),
		LogLevel:           envOr("LOG_LEVEL", "info"),
		ServerSecret:       os.Getenv("SERVER_SECRET"),
		ServerIdentityFile: os.Getenv("SERVER_IDENTITY_FILE"),
		KeyCollectionSize:  DefaultKeyCollectionSize,
		AuthorizationTypes: pkgstrings.SplitList(envOr("AUTHORIZATION_TYPES", "organization,service")),
		LockTTL:            DefaultLockTTL,
		JWTSigningKey:      os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:          envOr("JWT_ISSUER", "attest"),
		JWTAudience:        envOr("JWT_AUDIENCE", "attest-api"),
		AccessTokenTTL:     time.Hour,
		ChallengeTTL:       2 * time.Minute,
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     10,
			MinIdleConns: 2,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers: pkgstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("KAFKA_TOPIC", "verifiable-credentials"),
		},
	}

	if raw := os.Getenv("KEY_COLLECTION_SIZE"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse KEY_COLLECTION_SIZE: %w", err)
		}
		cfg.KeyCollectionSize = size
	}
	if raw := os.Getenv("LOCK_TTL"); raw != "" {
		ttl, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse LOCK_TTL: %w", err)
		}
		cfg.LockTTL = ttl
	}
	for key, dst := range map[string]*time.Duration{
		"ACCESS_TOKEN_TTL": &cfg.AccessTokenTTL,
		"CHALLENGE_TTL":    &cfg.ChallengeTTL,
	} {
		raw := os.Getenv(key)
		if raw == "" {
			continue
		}
		d, err := time.ParseDuration(raw)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", key, err)
		}
		*dst = d
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.ServerSecret == "" {
		errs = append(errs, errors.New("a server secret must be defined (SERVER_SECRET)"))
	}
	if c.ServerIdentityFile == "" {
		errs = append(errs, errors.New("a server identity file must be specified (SERVER_IDENTITY_FILE)"))
	}
	if c.KeyCollectionSize <= 0 {
		errs = append(errs, fmt.Errorf("KEY_COLLECTION_SIZE must be positive, got %d", c.KeyCollectionSize))
	}
	if c.LockTTL <= 0 {
		errs = append(errs, fmt.Errorf("LOCK_TTL must be positive, got %s", c.LockTTL))
	}
	switch {
	case c.JWTSigningKey == "":
		errs = append(errs, errors.New("a token signing key must be defined (JWT_SIGNING_KEY)"))
	case c.JWTSigningKey == insecureJWTSigningKey:
		errs = append(errs, errors.New("JWT_SIGNING_KEY still holds the sample placeholder"))
	case len(c.JWTSigningKey) < minJWTSigningKeyBytes:
		errs = append(errs, fmt.Errorf("JWT_SIGNING_KEY must be at least %d bytes", minJWTSigningKeyBytes))
	}
	if c.AccessTokenTTL <= 0 || c.ChallengeTTL <= 0 {
		errs = append(errs, errors.New("ACCESS_TOKEN_TTL and CHALLENGE_TTL must be positive"))
	}
	return errors.Join(errs...)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
