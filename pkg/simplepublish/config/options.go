package config

import (
	"fmt"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the queue store backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithJWTSecret protects the HTTP API with bearer tokens
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		c.JWTSecret = secret
		return nil
	}
}

// WithoutDefaultPublishers clears the built-in in-memory publisher set so
// explicitly configured publishers stand alone
func WithoutDefaultPublishers() Option {
	return func(c *ServerConfig) error {
		c.Publishers = nil
		return nil
	}
}

// WithMemoryPublisher adds an in-memory publisher (for testing)
// If name is empty, defaults to "memory"
func WithMemoryPublisher(name string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "memory"
		}

		publisher := PublisherConfig{
			Name:   name,
			Type:   "memory",
			Config: map[string]interface{}{},
		}

		c.Publishers = upsertPublisher(c.Publishers, publisher)
		return nil
	}
}

// WithWebhookPublisher adds a webhook publishing target
// If name is empty, defaults to "webhook"
func WithWebhookPublisher(name, url, token string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "webhook"
		}
		if url == "" {
			return fmt.Errorf("webhook URL cannot be empty")
		}

		publisher := PublisherConfig{
			Name: name,
			Type: "webhook",
			Config: map[string]interface{}{
				"url": url,
			},
		}
		if token != "" {
			publisher.Config["token"] = token
		}

		c.Publishers = upsertPublisher(c.Publishers, publisher)
		return nil
	}
}

// WithWordPressPublisher adds a WordPress REST publishing target
// If name is empty, defaults to "wordpress"
func WithWordPressPublisher(name, baseURL, username, appPassword string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "wordpress"
		}
		if baseURL == "" || username == "" || appPassword == "" {
			return fmt.Errorf("wordpress publisher requires base URL, username and app password")
		}

		publisher := PublisherConfig{
			Name: name,
			Type: "wordpress",
			Config: map[string]interface{}{
				"base_url":     baseURL,
				"username":     username,
				"app_password": appPassword,
			},
		}

		c.Publishers = upsertPublisher(c.Publishers, publisher)
		return nil
	}
}

// WithS3Publisher adds an S3 archive publishing target
// If name is empty, defaults to "s3"
func WithS3Publisher(name, bucket, region string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "s3"
		}
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if region == "" {
			region = "us-east-1" // Default region
		}

		publisher := PublisherConfig{
			Name: name,
			Type: "s3",
			Config: map[string]interface{}{
				"bucket": bucket,
				"region": region,
			},
		}

		c.Publishers = upsertPublisher(c.Publishers, publisher)
		return nil
	}
}

// WithS3Credentials sets AWS credentials for an S3 publisher
func WithS3Credentials(name, accessKeyID, secretAccessKey string) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "s3"
		}

		// Find existing S3 publisher or create new one
		for i := range c.Publishers {
			if c.Publishers[i].Name == name && c.Publishers[i].Type == "s3" {
				c.Publishers[i].Config["access_key_id"] = accessKeyID
				c.Publishers[i].Config["secret_access_key"] = secretAccessKey
				return nil
			}
		}

		publisher := PublisherConfig{
			Name: name,
			Type: "s3",
			Config: map[string]interface{}{
				"access_key_id":     accessKeyID,
				"secret_access_key": secretAccessKey,
			},
		}
		c.Publishers = append(c.Publishers, publisher)
		return nil
	}
}

// WithS3Endpoint sets a custom S3 endpoint (for MinIO, LocalStack, etc.)
func WithS3Endpoint(name, endpoint string, usePathStyle bool) Option {
	return func(c *ServerConfig) error {
		if name == "" {
			name = "s3"
		}

		// Find existing S3 publisher or create new one
		for i := range c.Publishers {
			if c.Publishers[i].Name == name && c.Publishers[i].Type == "s3" {
				c.Publishers[i].Config["endpoint"] = endpoint
				c.Publishers[i].Config["use_path_style"] = usePathStyle
				return nil
			}
		}

		publisher := PublisherConfig{
			Name: name,
			Type: "s3",
			Config: map[string]interface{}{
				"endpoint":       endpoint,
				"use_path_style": usePathStyle,
			},
		}
		c.Publishers = append(c.Publishers, publisher)
		return nil
	}
}

// WithCloudEvents posts lifecycle events to a CloudEvents receiver
func WithCloudEvents(url string) Option {
	return func(c *ServerConfig) error {
		if url == "" {
			return fmt.Errorf("events URL cannot be empty")
		}
		c.EventsURL = url
		return nil
	}
}

// WithEventLogging enables or disables event logging
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// WithMetrics enables or disables Prometheus metrics
func WithMetrics(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableMetrics = enabled
		return nil
	}
}

// WithDefaults is a convenience option that applies sensible defaults
// This is useful as a base before applying more specific options
func WithDefaults() Option {
	return func(c *ServerConfig) error {
		*c = defaults()
		return nil
	}
}
