package config

import (
	_ "embed"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Database     DatabaseConfig
	Embedding    EmbeddingConfig
	Verification VerificationConfig
	Auth         AuthConfig
	Web          WebConfig
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL; empty falls back to the in-memory store
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type EmbeddingConfig struct {
	URL          string // defaults to http://localhost:8000
	Model        string // defaults to mobilefacenet
	Dim          int    // required embedding length, defaults to 192; must match the vector() column width in the schema
	MaxFrameSize int    // frames above this edge length are downscaled before upload
}

// VerificationConfig bounds a single verification attempt.
type VerificationConfig struct {
	MatchThreshold  float64
	MaxFrames       int
	MaxEmbedRetries int
	FrameTimeout    time.Duration
	SessionTTL      time.Duration
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
}

type WebConfig struct {
	Host           string
	Port           int
	PublicURL      string // base URL used in shareable session links
	AllowedOrigins string
}

// defaults is the embedded defaults.yaml layout. Durations are strings
// because yaml.v3 has no native time.Duration support.
type defaults struct {
	Verification struct {
		MatchThreshold  float64 `yaml:"match_threshold"`
		MaxFrames       int     `yaml:"max_frames"`
		MaxEmbedRetries int     `yaml:"max_embed_retries"`
		FrameTimeout    string  `yaml:"frame_timeout"`
		SessionTTL      string  `yaml:"session_ttl"`
	} `yaml:"verification"`
}

// mustParseDuration parses a duration from the embedded defaults.
func mustParseDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		panic("invalid duration in embedded defaults.yaml: " + s)
	}
	return d
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable as a float in (0, 1].
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 && f <= 1 {
		return f
	}
	return defaultVal
}

// envDuration reads an environment variable as a positive duration.
func envDuration(key string, defaultVal time.Duration) time.Duration {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return defaultVal
}

// envString reads an environment variable with a fallback.
func envString(key, defaultVal string) string {
	if s := os.Getenv(key); s != "" {
		return s
	}
	return defaultVal
}

func Load() *Config {
	var def defaults
	if err := yaml.Unmarshal(defaultsYAML, &def); err != nil {
		// Embedded file, should never happen in practice.
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Embedding: EmbeddingConfig{
			URL:          envString("EMBEDDING_URL", "http://localhost:8000"),
			Model:        envString("EMBEDDING_MODEL", "mobilefacenet"),
			Dim:          envInt("EMBEDDING_DIM", 192),
			MaxFrameSize: envInt("EMBEDDING_MAX_FRAME_SIZE", 640),
		},
		Verification: VerificationConfig{
			MatchThreshold:  envFloat("MATCH_THRESHOLD", def.Verification.MatchThreshold),
			MaxFrames:       envInt("MAX_FRAMES", def.Verification.MaxFrames),
			MaxEmbedRetries: envInt("MAX_EMBED_RETRIES", def.Verification.MaxEmbedRetries),
			FrameTimeout:    envDuration("FRAME_TIMEOUT", mustParseDuration(def.Verification.FrameTimeout)),
			SessionTTL:      envDuration("SESSION_TTL", mustParseDuration(def.Verification.SessionTTL)),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("AUTH_JWT_SECRET"),
			TokenTTL:  envDuration("AUTH_TOKEN_TTL", 24*time.Hour),
		},
		Web: WebConfig{
			Host:           envString("WEB_HOST", "0.0.0.0"),
			Port:           envInt("WEB_PORT", 8080),
			PublicURL:      envString("PUBLIC_URL", "http://localhost:8080"),
			AllowedOrigins: os.Getenv("WEB_ALLOWED_ORIGINS"),
		},
	}
}
