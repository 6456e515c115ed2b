package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DataDir        string `toml:"data_dir"`
	LogDir         string `toml:"log_dir"`
	RepositoryDir  string `toml:"repository_dir"`
	ReportPath     string `toml:"report_path"`
	DictionaryPath string `toml:"dictionary_path"`
}

// Queue selects and configures the parse queue entry store.
type Queue struct {
	Backend        string `toml:"backend"`
	Holder         string `toml:"holder"`
	KeyPrefix      string `toml:"key_prefix"`
	SQLitePath     string `toml:"sqlite_path"`
	RedisURL       string `toml:"redis_url"`
	PostgresURL    string `toml:"postgres_url"`
	PurgeMalformed bool   `toml:"purge_malformed"`
}

// Catalog configures the ontology and submission catalog database.
type Catalog struct {
	DBPath  string `toml:"db_path"`
	BaseIRI string `toml:"base_iri"`
}

// Surreal holds SurrealDB connection settings for the graph store.
type Surreal struct {
	URL       string `toml:"url"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	AuthLevel string `toml:"auth_level"`
}

// GraphStore selects where derived class graphs live.
type GraphStore struct {
	Backend    string  `toml:"backend"`
	SQLitePath string  `toml:"sqlite_path"`
	Surreal    Surreal `toml:"surrealdb"`
}

// Pipeline configures external processing stages.
type Pipeline struct {
	ParserCommand []string `toml:"parser_command"`
	IndexCommand  []string `toml:"index_command"`
	ManifestName  string   `toml:"manifest_name"`
}

// Annotator configures the term cache used by the annotator service.
type Annotator struct {
	Enabled   bool   `toml:"enabled"`
	RedisURL  string `toml:"redis_url"`
	KeyPrefix string `toml:"key_prefix"`
}

// Maintenance holds the archival and stale data thresholds.
type Maintenance struct {
	RecentWindow        int `toml:"recent_window"`
	ClassCountThreshold int `toml:"class_count_threshold"`
	SettleDelaySeconds  int `toml:"settle_delay_seconds"`
}

// Warmer configures the cache warmer routine.
type Warmer struct {
	Status       string `toml:"status"`
	IncludeViews bool   `toml:"include_views"`
	PageSize     int    `toml:"page_size"`
}

// Schedule holds the daemon routine schedules.
type Schedule struct {
	Parse string `toml:"parse"`
	Flush string `toml:"flush"`
	Warm  string `toml:"warm"`
}

// Daemon configures the long-running process. An empty APIBind disables the
// HTTP status API.
type Daemon struct {
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Notifications configures ntfy alerts. An empty topic disables them.
type Notifications struct {
	NtfyTopic             string `toml:"ntfy_topic"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format           string            `toml:"format"`
	Level            string            `toml:"level"`
	RetentionDays    int               `toml:"retention_days"`
	RoutineOverrides map[string]string `toml:"routine_overrides"`
}

// Config encapsulates all configuration values for catalogcron.
//
// Configuration sections by subsystem:
//   - Paths: data, log, repository, report and dictionary locations
//   - Queue: parse queue entry store backend
//   - Catalog: ontology/submission catalog database
//   - GraphStore: derived class graph backend
//   - Pipeline: external parser and indexer commands
//   - Annotator: Redis term cache
//   - Maintenance: archival window, class count threshold, settle delay
//   - Warmer: cache warmer filters
//   - Schedule: daemon routine schedules
//   - Daemon: status API bind address and token
//   - Notifications: ntfy alerts for failed routines
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Queue         Queue         `toml:"queue"`
	Catalog       Catalog       `toml:"catalog"`
	GraphStore    GraphStore    `toml:"graphstore"`
	Pipeline      Pipeline      `toml:"pipeline"`
	Annotator     Annotator     `toml:"annotator"`
	Maintenance   Maintenance   `toml:"maintenance"`
	Warmer        Warmer        `toml:"warmer"`
	Schedule      Schedule      `toml:"schedule"`
	Daemon        Daemon        `toml:"daemon"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Normalize expands paths and applies derived defaults on a config that was
// not produced by Load, such as one assembled in tests.
func (c *Config) Normalize() error {
	return c.normalize()
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("catalogcron.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.RepositoryDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// SettleDelay is the pause taken before each destructive graph deletion.
func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Maintenance.SettleDelaySeconds) * time.Second
}

// LockPath is the daemon single-instance lock file.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.LogDir, "catalogcrond.lock")
}

// PIDPath is the file the running daemon records its process id in.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.LogDir, "catalogcrond.pid")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
