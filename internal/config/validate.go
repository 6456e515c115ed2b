package config

import (
	"errors"
	"fmt"
	"strings"

	"catalogcron/internal/schedule"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateQueue(); err != nil {
		return err
	}
	if err := c.validateGraphStore(); err != nil {
		return err
	}
	if err := c.validateAnnotator(); err != nil {
		return err
	}
	if err := c.validateMaintenance(); err != nil {
		return err
	}
	if err := c.validateWarmer(); err != nil {
		return err
	}
	if err := c.validateSchedule(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateQueue() error {
	switch c.Queue.Backend {
	case "sqlite":
	case "redis":
		if c.Queue.RedisURL == "" {
			return errors.New("queue.redis_url is required for the redis backend (or set CATALOGCRON_REDIS_URL)")
		}
	case "postgres":
		if c.Queue.PostgresURL == "" {
			return errors.New("queue.postgres_url is required for the postgres backend (or set CATALOGCRON_POSTGRES_URL)")
		}
	default:
		return fmt.Errorf("queue.backend: unsupported value %q (want sqlite, redis or postgres)", c.Queue.Backend)
	}
	if strings.TrimSpace(c.Queue.KeyPrefix) == "" {
		return errors.New("queue.key_prefix must not be blank")
	}
	return nil
}

func (c *Config) validateGraphStore() error {
	switch c.GraphStore.Backend {
	case "sqlite":
		return nil
	case "surrealdb":
		if c.GraphStore.Surreal.URL == "" {
			return errors.New("graphstore.surrealdb.url is required for the surrealdb backend")
		}
		switch c.GraphStore.Surreal.AuthLevel {
		case "root", "database":
		default:
			return fmt.Errorf("graphstore.surrealdb.auth_level: unsupported value %q", c.GraphStore.Surreal.AuthLevel)
		}
		return nil
	default:
		return fmt.Errorf("graphstore.backend: unsupported value %q (want sqlite or surrealdb)", c.GraphStore.Backend)
	}
}

func (c *Config) validateAnnotator() error {
	if c.Annotator.Enabled && c.Annotator.RedisURL == "" {
		return errors.New("annotator.redis_url is required when the annotator is enabled")
	}
	return nil
}

func (c *Config) validateMaintenance() error {
	if c.Maintenance.RecentWindow < 1 {
		return errors.New("maintenance.recent_window must be at least 1")
	}
	if c.Maintenance.ClassCountThreshold < 0 {
		return errors.New("maintenance.class_count_threshold must not be negative")
	}
	if c.Maintenance.SettleDelaySeconds < 0 {
		return errors.New("maintenance.settle_delay_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateWarmer() error {
	switch c.Warmer.Status {
	case "RDF", "READY", "ANY":
	default:
		return fmt.Errorf("warmer.status: unsupported value %q (want RDF, READY or ANY)", c.Warmer.Status)
	}
	if c.Warmer.PageSize < 1 {
		return errors.New("warmer.page_size must be positive")
	}
	return nil
}

func (c *Config) validateSchedule() error {
	for name, expr := range map[string]string{
		"schedule.parse": c.Schedule.Parse,
		"schedule.flush": c.Schedule.Flush,
		"schedule.warm":  c.Schedule.Warm,
	} {
		if strings.TrimSpace(expr) == "" {
			continue
		}
		if _, err := schedule.Parse(expr, 0); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.Logging.RetentionDays < 0 {
		return errors.New("logging.retention_days must not be negative")
	}
	return nil
}
