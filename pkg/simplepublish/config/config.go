package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tendant/simple-publish/pkg/simplepublish"
	cloudeventsink "github.com/tendant/simple-publish/pkg/simplepublish/events/cloudevents"
	"github.com/tendant/simple-publish/pkg/simplepublish/metrics"
	"github.com/tendant/simple-publish/pkg/simplepublish/presets"
	memorypub "github.com/tendant/simple-publish/pkg/simplepublish/publisher/memory"
	s3pub "github.com/tendant/simple-publish/pkg/simplepublish/publisher/s3"
	"github.com/tendant/simple-publish/pkg/simplepublish/publisher/webhook"
	"github.com/tendant/simple-publish/pkg/simplepublish/publisher/wordpress"
	memorystore "github.com/tendant/simple-publish/pkg/simplepublish/store/memory"
	pgstore "github.com/tendant/simple-publish/pkg/simplepublish/store/postgres"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of
// library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	cfg := ServerConfig{
		Port:               "8080",
		Environment:        "development",
		DatabaseType:       "memory",
		EnableEventLogging: true,
		EnableMetrics:      true,
	}
	for _, name := range presets.Targets() {
		cfg.Publishers = append(cfg.Publishers, PublisherConfig{
			Name:   name,
			Type:   "memory",
			Config: map[string]interface{}{},
		})
	}
	return cfg
}

// ServerConfig represents server configuration for the simple-publish service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"

	// Publisher configuration
	Publishers []PublisherConfig

	// API options
	JWTSecret string // empty leaves the API unprotected

	// Event delivery
	EventsURL          string // CloudEvents receiver endpoint; empty disables
	EnableEventLogging bool   // log events when no receiver is configured

	// Metrics
	EnableMetrics bool
}

// PublisherConfig represents configuration for one publishing target
type PublisherConfig struct {
	Name   string
	Type   string // "memory", "webhook", "wordpress", "s3"
	Config map[string]interface{}
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	if len(c.Publishers) == 0 {
		return errors.New("at least one publisher is required")
	}
	for _, pub := range c.Publishers {
		if pub.Name == "" {
			return errors.New("publisher name is required")
		}
		switch pub.Type {
		case "memory", "webhook", "wordpress", "s3":
		default:
			return fmt.Errorf("unsupported publisher type: %s", pub.Type)
		}
	}

	return nil
}

// Build creates the store and a Service over it. The store is returned too
// so workers can run maintenance sweeps against the same queue.
func (c *ServerConfig) Build(ctx context.Context) (simplepublish.Service, simplepublish.ItemStore, error) {
	store, err := c.buildStore(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build store: %w", err)
	}

	options := []simplepublish.Option{
		simplepublish.WithStore(store),
		simplepublish.WithRules(c.buildRules()),
		simplepublish.WithSlots(presets.AllSlots()),
	}

	for _, pubCfg := range c.Publishers {
		pub, err := c.buildPublisher(ctx, pubCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build publisher %s: %w", pubCfg.Name, err)
		}
		options = append(options, simplepublish.WithPublisher(pubCfg.Name, pub))
	}

	switch {
	case c.EventsURL != "":
		sink, err := cloudeventsink.New(c.EventsURL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build event sink: %w", err)
		}
		options = append(options, simplepublish.WithEventSink(sink))
	case c.EnableEventLogging:
		options = append(options, simplepublish.WithEventSink(simplepublish.NewLoggingEventSink(slog.Default())))
	}

	if c.EnableMetrics {
		options = append(options, simplepublish.WithMetrics(metrics.NewCollector(prometheus.DefaultRegisterer)))
	}

	svc, err := simplepublish.New(options...)
	if err != nil {
		return nil, nil, err
	}
	return svc, store, nil
}

// BuildService creates a Service instance from the server configuration
func (c *ServerConfig) BuildService(ctx context.Context) (simplepublish.Service, error) {
	svc, _, err := c.Build(ctx)
	return svc, err
}

// buildStore creates an ItemStore based on the configuration
func (c *ServerConfig) buildStore(ctx context.Context) (simplepublish.ItemStore, error) {
	switch c.DatabaseType {
	case "memory":
		return memorystore.New(), nil
	case "postgres":
		if c.DatabaseURL == "" {
			return nil, errors.New("database_url is required for postgres")
		}
		cfg, err := pgxpool.ParseConfig(c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create pgx pool: %w", err)
		}
		migrateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := pgstore.EnsureSchema(migrateCtx, pool); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ensure schema: %w", err)
		}
		return pgstore.NewWithPool(pool), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", c.DatabaseType)
	}
}

// buildRules merges the platform presets with permissive rules for any
// configured target the presets do not know.
func (c *ServerConfig) buildRules() simplepublish.StaticRules {
	rules := presets.All()
	for _, pub := range c.Publishers {
		name := simplepublish.NormalizeTarget(pub.Name)
		if _, ok := rules[name]; !ok {
			rules[name] = presets.Default()
		}
	}
	return rules
}

// buildPublisher creates a Publisher based on the publisher configuration
func (c *ServerConfig) buildPublisher(ctx context.Context, config PublisherConfig) (simplepublish.Publisher, error) {
	switch config.Type {
	case "memory":
		return memorypub.New(config.Name), nil

	case "webhook":
		url := getString(config.Config, "url", "")
		if url == "" {
			return nil, errors.New("webhook publisher requires a url")
		}
		var opts []webhook.Option
		if token := getString(config.Config, "token", ""); token != "" {
			opts = append(opts, webhook.WithBearerToken(token))
		}
		return webhook.New(config.Name, url, opts...), nil

	case "wordpress":
		baseURL := getString(config.Config, "base_url", "")
		username := getString(config.Config, "username", "")
		password := getString(config.Config, "app_password", "")
		if baseURL == "" || username == "" || password == "" {
			return nil, errors.New("wordpress publisher requires base_url, username and app_password")
		}
		return wordpress.New(baseURL, username, password, wordpress.WithTarget(config.Name)), nil

	case "s3":
		s3Config := s3pub.Config{
			Target:          config.Name,
			Region:          getString(config.Config, "region", "us-east-1"),
			Bucket:          getString(config.Config, "bucket", ""),
			AccessKeyID:     getString(config.Config, "access_key_id", ""),
			SecretAccessKey: getString(config.Config, "secret_access_key", ""),
			Endpoint:        getString(config.Config, "endpoint", ""),
			UsePathStyle:    getBool(config.Config, "use_path_style", false),
			PublicBaseURL:   getString(config.Config, "public_base_url", ""),
		}
		return s3pub.New(ctx, s3Config)

	default:
		return nil, fmt.Errorf("unsupported publisher type: %s", config.Type)
	}
}

func getString(config map[string]interface{}, key string, defaultValue string) string {
	if value, exists := config[key]; exists {
		if str, ok := value.(string); ok {
			return str
		}
	}
	return defaultValue
}

func getBool(config map[string]interface{}, key string, defaultValue bool) bool {
	if value, exists := config[key]; exists {
		if b, ok := value.(bool); ok {
			return b
		}
		if str, ok := value.(string); ok {
			if b, err := strconv.ParseBool(str); err == nil {
				return b
			}
		}
	}
	return defaultValue
}
