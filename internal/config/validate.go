package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/hay-kot/criterio"
)

// Validate checks the configuration for structural errors. All problems are
// reported together as criterio field errors.
func (c *Config) Validate() error {
	return criterio.ValidateStruct(
		c.validateServer(),
		c.validateStorage(),
		c.validateEmbedding(),
		c.validateClient(),
		criterio.Run("output_format", c.OutputFormat, oneOf("text", "json")),
		criterio.Run("logging.level", c.Logging.Level, oneOf("debug", "info", "warn", "error")),
	)
}

func (c *Config) validateServer() error {
	var errs criterio.FieldErrorsBuilder
	if c.Server.Addr == "" {
		errs = errs.Append("server.addr", fmt.Errorf("is required"))
	}
	if err := positiveDuration(c.Server.ShutdownTimeout); err != nil {
		errs = errs.Append("server.shutdown_timeout", err)
	}
	return errs.ToError()
}

func (c *Config) validateStorage() error {
	var errs criterio.FieldErrorsBuilder
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Storage.SQLite.Path == "" {
			errs = errs.Append("storage.sqlite.path", fmt.Errorf("is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Storage.Postgres.URL == "" {
			errs = errs.Append("storage.postgres.url", fmt.Errorf("is required for the postgres driver"))
		}
	default:
		errs = errs.Append("storage.driver", fmt.Errorf("unknown driver %q (valid: memory, sqlite, postgres)", c.Storage.Driver))
	}
	return errs.ToError()
}

func (c *Config) validateEmbedding() error {
	var errs criterio.FieldErrorsBuilder
	if err := oneOf("subprocess", "ollama", "hash")(c.Embedding.Provider); err != nil {
		errs = errs.Append("embedding.provider", err)
	}
	if c.Embedding.Dimensions <= 0 {
		errs = errs.Append("embedding.dimensions", fmt.Errorf("must be positive, got %d", c.Embedding.Dimensions))
	}
	if c.Embedding.Provider == "ollama" {
		if err := httpURL(c.Embedding.URL); err != nil {
			errs = errs.Append("embedding.url", err)
		}
	}
	if err := positiveDuration(c.Embedding.Timeout); err != nil {
		errs = errs.Append("embedding.timeout", err)
	}
	return errs.ToError()
}

func (c *Config) validateClient() error {
	var errs criterio.FieldErrorsBuilder
	if err := httpURL(c.Client.APIURL); err != nil {
		errs = errs.Append("client.api_url", err)
	}
	if err := positiveDuration(c.Client.CacheTTL); err != nil {
		errs = errs.Append("client.cache_ttl", err)
	}
	if err := positiveDuration(c.Client.Timeout); err != nil {
		errs = errs.Append("client.timeout", err)
	}
	return errs.ToError()
}

func oneOf(valid ...string) func(string) error {
	return func(v string) error {
		for _, s := range valid {
			if v == s {
				return nil
			}
		}
		return fmt.Errorf("invalid value %q (valid: %v)", v, valid)
	}
}

// positiveDuration accepts an empty string (use the default) or a duration > 0.
func positiveDuration(s string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	if d <= 0 {
		return fmt.Errorf("must be positive, got %q", s)
	}
	return nil
}

func httpURL(s string) error {
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("must be an http(s) URL, got %q", s)
	}
	return nil
}
