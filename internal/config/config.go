// Package config loads the command-line client configuration from YAML and
// the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Transport names.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Config is the top-level configuration of the graphstore command.
type Config struct {
	Transport     TransportConfig     `yaml:"transport"`
	Subscriptions SubscriptionsConfig `yaml:"subscriptions"`
	Cache         CacheConfig         `yaml:"cache"`
	Throttle      ThrottleConfig      `yaml:"throttle"`
	OTel          OTelConfig          `yaml:"otel"`
}

type TransportConfig struct {
	Kind      string            `yaml:"kind" validate:"oneof=http grpc"`
	Endpoint  string            `yaml:"endpoint" validate:"required"`
	Headers   map[string]string `yaml:"headers"`
	Persisted bool              `yaml:"persisted"`
	Timeout   time.Duration     `yaml:"timeout" validate:"gte=0"`
	MaxConns  int               `yaml:"max_conns" validate:"gte=0"`
	// Service is the gRPC gateway service name; empty uses the default.
	Service string `yaml:"service"`
}

type SubscriptionsConfig struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

type CacheConfig struct {
	KeyFields map[string][]string `yaml:"key_fields" validate:"dive,min=1,dive,required"`
	Persist   string              `yaml:"persist"`
	GCDelay   time.Duration       `yaml:"gc_delay" validate:"gte=0"`
}

type ThrottleConfig struct {
	// RPS of zero disables throttling.
	RPS   float64 `yaml:"rps" validate:"gte=0"`
	Burst int     `yaml:"burst" validate:"gte=0"`
}

type OTelConfig struct {
	Endpoint    string `yaml:"endpoint"`
	Service     string `yaml:"service"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Transport: TransportConfig{
			Kind:     TransportHTTP,
			Endpoint: "http://localhost:8080/graphql",
			Timeout:  10 * time.Second,
			MaxConns: 2,
		},
		Throttle: ThrottleConfig{Burst: 1},
		OTel:     OTelConfig{Service: "graphstore"},
	}
}

var validate = validator.New()

// Load reads path over the defaults, applies GRAPHSTORE_* environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) error {
	if v := getenv("GRAPHSTORE_TRANSPORT"); v != "" {
		cfg.Transport.Kind = v
	}
	if v := getenv("GRAPHSTORE_ENDPOINT"); v != "" {
		cfg.Transport.Endpoint = v
	}
	if v := getenv("GRAPHSTORE_SUBSCRIPTIONS_URL"); v != "" {
		cfg.Subscriptions.URL = v
	}
	if v := getenv("GRAPHSTORE_CACHE_PERSIST"); v != "" {
		cfg.Cache.Persist = v
	}
	if v := getenv("GRAPHSTORE_OTEL_ENDPOINT"); v != "" {
		cfg.OTel.Endpoint = v
	}
	if v := getenv("GRAPHSTORE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("GRAPHSTORE_TIMEOUT: %w", err)
		}
		cfg.Transport.Timeout = d
	}
	if v := getenv("GRAPHSTORE_THROTTLE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("GRAPHSTORE_THROTTLE_RPS: %w", err)
		}
		cfg.Throttle.RPS = f
	}
	return nil
}

// Validate checks field constraints and reports every violation.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
