package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeQueue(); err != nil {
		return err
	}
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	if err := c.normalizeGraphStore(); err != nil {
		return err
	}
	c.normalizePipeline()
	c.normalizeAnnotator()
	c.normalizeWarmer()
	c.normalizeDaemon()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.RepositoryDir) == "" {
		c.Paths.RepositoryDir = filepath.Join(c.Paths.DataDir, "repository")
	}
	if c.Paths.RepositoryDir, err = expandPath(c.Paths.RepositoryDir); err != nil {
		return fmt.Errorf("paths.repository_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ReportPath) == "" {
		c.Paths.ReportPath = filepath.Join(c.Paths.DataDir, "ontologies_report.json")
	}
	if c.Paths.ReportPath, err = expandPath(c.Paths.ReportPath); err != nil {
		return fmt.Errorf("paths.report_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.DictionaryPath) == "" {
		c.Paths.DictionaryPath = filepath.Join(c.Paths.DataDir, "dictionary.txt")
	}
	if c.Paths.DictionaryPath, err = expandPath(c.Paths.DictionaryPath); err != nil {
		return fmt.Errorf("paths.dictionary_path: %w", err)
	}
	return nil
}

func (c *Config) normalizeQueue() error {
	c.Queue.Backend = strings.ToLower(strings.TrimSpace(c.Queue.Backend))
	if c.Queue.Backend == "" {
		c.Queue.Backend = defaultQueueBackend
	}
	c.Queue.Holder = strings.TrimSpace(c.Queue.Holder)
	if c.Queue.Holder == "" {
		c.Queue.Holder = defaultQueueHolder
	}
	if c.Queue.KeyPrefix == "" {
		c.Queue.KeyPrefix = defaultQueueKeyPrefix
	}
	if strings.TrimSpace(c.Queue.SQLitePath) == "" {
		c.Queue.SQLitePath = filepath.Join(c.Paths.DataDir, "queue.db")
	}
	var err error
	if c.Queue.SQLitePath, err = expandPath(c.Queue.SQLitePath); err != nil {
		return fmt.Errorf("queue.sqlite_path: %w", err)
	}
	if c.Queue.RedisURL == "" {
		if value, ok := os.LookupEnv("CATALOGCRON_REDIS_URL"); ok {
			c.Queue.RedisURL = value
		}
	}
	if c.Queue.PostgresURL == "" {
		if value, ok := os.LookupEnv("CATALOGCRON_POSTGRES_URL"); ok {
			c.Queue.PostgresURL = value
		}
	}
	c.Queue.RedisURL = strings.TrimSpace(c.Queue.RedisURL)
	c.Queue.PostgresURL = strings.TrimSpace(c.Queue.PostgresURL)
	return nil
}

func (c *Config) normalizeCatalog() error {
	if strings.TrimSpace(c.Catalog.DBPath) == "" {
		c.Catalog.DBPath = filepath.Join(c.Paths.DataDir, "catalog.db")
	}
	var err error
	if c.Catalog.DBPath, err = expandPath(c.Catalog.DBPath); err != nil {
		return fmt.Errorf("catalog.db_path: %w", err)
	}
	c.Catalog.BaseIRI = strings.TrimRight(strings.TrimSpace(c.Catalog.BaseIRI), "/")
	if c.Catalog.BaseIRI == "" {
		c.Catalog.BaseIRI = defaultBaseIRI
	}
	return nil
}

func (c *Config) normalizeGraphStore() error {
	c.GraphStore.Backend = strings.ToLower(strings.TrimSpace(c.GraphStore.Backend))
	if c.GraphStore.Backend == "" {
		c.GraphStore.Backend = defaultGraphBackend
	}
	if strings.TrimSpace(c.GraphStore.SQLitePath) == "" {
		c.GraphStore.SQLitePath = filepath.Join(c.Paths.DataDir, "graphs.db")
	}
	var err error
	if c.GraphStore.SQLitePath, err = expandPath(c.GraphStore.SQLitePath); err != nil {
		return fmt.Errorf("graphstore.sqlite_path: %w", err)
	}
	s := &c.GraphStore.Surreal
	s.URL = strings.TrimSpace(s.URL)
	if s.Password == "" {
		if value, ok := os.LookupEnv("CATALOGCRON_SURREAL_PASSWORD"); ok {
			s.Password = value
		}
	}
	if strings.TrimSpace(s.Namespace) == "" {
		s.Namespace = defaultSurrealNamespace
	}
	if strings.TrimSpace(s.Database) == "" {
		s.Database = defaultSurrealDatabase
	}
	s.AuthLevel = strings.ToLower(strings.TrimSpace(s.AuthLevel))
	if s.AuthLevel == "" {
		s.AuthLevel = defaultSurrealAuthLevel
	}
	return nil
}

func (c *Config) normalizePipeline() {
	c.Pipeline.ParserCommand = trimArgs(c.Pipeline.ParserCommand)
	c.Pipeline.IndexCommand = trimArgs(c.Pipeline.IndexCommand)
	c.Pipeline.ManifestName = strings.TrimSpace(c.Pipeline.ManifestName)
	if c.Pipeline.ManifestName == "" {
		c.Pipeline.ManifestName = defaultManifestName
	}
}

func (c *Config) normalizeAnnotator() {
	if c.Annotator.RedisURL == "" {
		if value, ok := os.LookupEnv("CATALOGCRON_REDIS_URL"); ok {
			c.Annotator.RedisURL = value
		}
	}
	c.Annotator.RedisURL = strings.TrimSpace(c.Annotator.RedisURL)
	c.Annotator.KeyPrefix = strings.TrimSpace(c.Annotator.KeyPrefix)
	if c.Annotator.KeyPrefix == "" {
		c.Annotator.KeyPrefix = defaultAnnotatorKeyPrefix
	}
}

func (c *Config) normalizeWarmer() {
	c.Warmer.Status = strings.ToUpper(strings.TrimSpace(c.Warmer.Status))
	if c.Warmer.Status == "" {
		c.Warmer.Status = defaultWarmerStatus
	}
	if c.Warmer.PageSize == 0 {
		c.Warmer.PageSize = defaultWarmerPageSize
	}
}

func (c *Config) normalizeDaemon() {
	c.Daemon.APIBind = strings.TrimSpace(c.Daemon.APIBind)
	if c.Daemon.APIToken == "" {
		if value, ok := os.LookupEnv("CATALOGCRON_API_TOKEN"); ok {
			c.Daemon.APIToken = value
		}
	}
	c.Daemon.APIToken = strings.TrimSpace(c.Daemon.APIToken)
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		c.Notifications.NtfyTopic = strings.TrimSpace(os.Getenv("CATALOGCRON_NTFY_TOPIC"))
	}
	if c.Notifications.RequestTimeoutSeconds <= 0 {
		c.Notifications.RequestTimeoutSeconds = defaultNtfyTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if len(c.Logging.RoutineOverrides) > 0 {
		normalized := make(map[string]string, len(c.Logging.RoutineOverrides))
		for routine, level := range c.Logging.RoutineOverrides {
			key := strings.ToLower(strings.TrimSpace(routine))
			if key == "" {
				continue
			}
			normalized[key] = strings.ToLower(strings.TrimSpace(level))
		}
		c.Logging.RoutineOverrides = normalized
	}
}

func trimArgs(args []string) []string {
	if len(args) == 0 {
		return nil
	}
	out := make([]string, 0, len(args))
	for _, arg := range args {
		if trimmed := strings.TrimSpace(arg); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
