// Package config loads the service configuration once at startup. The
// resulting Config is a value: callers pass it (or pieces of it) explicitly
// to the components that need it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderRekognition = "rekognition"
	ProviderGRPC        = "grpc"

	StoreDynamoDB = "dynamodb"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

// Config holds every environment-level input of the service.
type Config struct {
	Addr string `yaml:"addr"`

	CollectionID      string        `yaml:"collection_id"`
	ProfilesTable     string        `yaml:"faces_table"`
	MinConfidence     float64       `yaml:"min_confidence"`
	ObjectsOfInterest []string      `yaml:"objects_of_interest"`
	CheckTimeout      time.Duration `yaml:"check_timeout"`

	Region      string `yaml:"region"`
	EndpointURL string `yaml:"endpoint_url"`

	ProviderBackend  string `yaml:"provider_backend"`
	ProviderGRPCAddr string `yaml:"provider_grpc_addr"`

	StoreBackend    string        `yaml:"store_backend"`
	DatabaseDSN     string        `yaml:"database_dsn"`
	MongoURI        string        `yaml:"mongo_uri"`
	MongoDatabase   string        `yaml:"mongo_database"`
	RedisAddr       string        `yaml:"redis_addr"`
	ProfileCacheTTL time.Duration `yaml:"profile_cache_ttl"`

	MaxAttempts int `yaml:"collaborator_max_attempts"`

	JWTSecret    string `yaml:"jwt_secret"`
	JWTAudience  string `yaml:"jwt_audience"`
	LogLevel     string `yaml:"log_level"`
	MaxBodyBytes int64  `yaml:"max_body_bytes"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Addr:              ":8080",
		MinConfidence:     80,
		ObjectsOfInterest: []string{"Mobile Phone", "Cell Phone"},
		CheckTimeout:      10 * time.Second,
		Region:            "us-east-1",
		ProviderBackend:   ProviderRekognition,
		StoreBackend:      StoreDynamoDB,
		MongoDatabase:     "proctor",
		ProfileCacheTTL:   time.Hour,
		MaxAttempts:       3,
		LogLevel:          "info",
		MaxBodyBytes:      8 << 20,
	}
}

// Load reads CONFIG_FILE (if set) and overlays environment variables on top.
func Load() (Config, error) {
	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	cfg.ObjectsOfInterest = normalizeLabels(cfg.ObjectsOfInterest)
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Addr = getEnv("ADDR", cfg.Addr)
	cfg.CollectionID = getEnv("COLLECTION_ID", cfg.CollectionID)
	cfg.ProfilesTable = getEnv("FACES_TABLENAME", cfg.ProfilesTable)
	cfg.Region = getEnv("REGION", cfg.Region)
	cfg.EndpointURL = getEnv("AWS_ENDPOINT_URL", cfg.EndpointURL)
	cfg.ProviderBackend = getEnv("PROVIDER_BACKEND", cfg.ProviderBackend)
	cfg.ProviderGRPCAddr = getEnv("PROVIDER_GRPC_ADDR", cfg.ProviderGRPCAddr)
	cfg.StoreBackend = getEnv("IDENTITY_STORE_BACKEND", cfg.StoreBackend)
	cfg.DatabaseDSN = getEnv("DATABASE_DSN", cfg.DatabaseDSN)
	cfg.MongoURI = getEnv("MONGO_URI", cfg.MongoURI)
	cfg.MongoDatabase = getEnv("MONGO_DATABASE", cfg.MongoDatabase)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTAudience = getEnv("JWT_AUDIENCE", cfg.JWTAudience)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	if v := os.Getenv("OBJECTS_OF_INTEREST_LABELS"); v != "" {
		cfg.ObjectsOfInterest = ParseLabels(v)
	}

	var errs []error
	if v := os.Getenv("MIN_CONFIDENCE"); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MIN_CONFIDENCE: %w", err))
		}
		cfg.MinConfidence = f
	}
	if v := os.Getenv("COLLABORATOR_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			errs = append(errs, fmt.Errorf("COLLABORATOR_MAX_ATTEMPTS: %w", err))
		}
		cfg.MaxAttempts = n
	}
	if v := os.Getenv("MAX_BODY_BYTES"); v != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_BODY_BYTES: %w", err))
		}
		cfg.MaxBodyBytes = n
	}
	errs = append(errs, durationEnv("CHECK_TIMEOUT", &cfg.CheckTimeout))
	errs = append(errs, durationEnv("PROFILE_CACHE_TTL", &cfg.ProfileCacheTTL))
	return errors.Join(errs...)
}

// Validate rejects configurations the service cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.CollectionID == "" {
		errs = append(errs, errors.New("COLLECTION_ID is required"))
	}
	if c.ProfilesTable == "" {
		errs = append(errs, errors.New("FACES_TABLENAME is required"))
	}
	if c.MinConfidence < 0 || c.MinConfidence > 100 {
		errs = append(errs, fmt.Errorf("MIN_CONFIDENCE must be within [0,100], got %v", c.MinConfidence))
	}
	if c.CheckTimeout <= 0 {
		errs = append(errs, errors.New("CHECK_TIMEOUT must be positive"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, errors.New("COLLABORATOR_MAX_ATTEMPTS must be at least 1"))
	}
	if c.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("MAX_BODY_BYTES must be positive"))
	}
	switch c.ProviderBackend {
	case ProviderRekognition:
	case ProviderGRPC:
		if c.ProviderGRPCAddr == "" {
			errs = append(errs, errors.New("PROVIDER_GRPC_ADDR is required for the grpc provider"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown PROVIDER_BACKEND %q", c.ProviderBackend))
	}
	switch c.StoreBackend {
	case StoreDynamoDB:
	case StorePostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN is required for the postgres store"))
		}
	case StoreMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required for the mongo store"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown IDENTITY_STORE_BACKEND %q", c.StoreBackend))
	}
	return errors.Join(errs...)
}

// ParseLabels splits a comma-separated deny-list. Items are trimmed and
// empty items dropped; order is preserved.
func ParseLabels(raw string) []string {
	return normalizeLabels(strings.Split(raw, ","))
}

func normalizeLabels(in []string) []string {
	out := make([]string, 0, len(in))
	for _, label := range in {
		if label = strings.TrimSpace(label); label != "" {
			out = append(out, label)
		}
	}
	return out
}

func durationEnv(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
