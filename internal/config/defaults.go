package config

const (
	defaultConfigPath          = "~/.config/catalogcron/config.toml"
	defaultDataDir             = "~/.local/share/catalogcron"
	defaultLogDir              = "~/.local/share/catalogcron/logs"
	defaultRepositoryDir       = "~/.local/share/catalogcron/repository"
	defaultQueueBackend        = "sqlite"
	defaultQueueHolder         = "parseQueue"
	defaultQueueKeyPrefix      = "sub:"
	defaultBaseIRI             = "http://data.catalogcron.org"
	defaultGraphBackend        = "sqlite"
	defaultSurrealNamespace    = "catalogcron"
	defaultSurrealDatabase     = "graphs"
	defaultSurrealAuthLevel    = "root"
	defaultManifestName        = "classes.jsonl"
	defaultAnnotatorKeyPrefix  = "annotator"
	defaultRecentWindow        = 11
	defaultClassCountThreshold = 1
	defaultSettleDelaySeconds  = 5
	defaultWarmerStatus        = "RDF"
	defaultWarmerPageSize      = 100
	defaultParseSchedule       = "with 5m interval"
	defaultFlushSchedule       = "0 22 * * 6"
	defaultWarmSchedule        = "0 */3 * * *"
	defaultNtfyTimeoutSeconds  = 10
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:       defaultDataDir,
			LogDir:        defaultLogDir,
			RepositoryDir: defaultRepositoryDir,
		},
		Queue: Queue{
			Backend:   defaultQueueBackend,
			Holder:    defaultQueueHolder,
			KeyPrefix: defaultQueueKeyPrefix,
		},
		Catalog: Catalog{
			BaseIRI: defaultBaseIRI,
		},
		GraphStore: GraphStore{
			Backend: defaultGraphBackend,
			Surreal: Surreal{
				Namespace: defaultSurrealNamespace,
				Database:  defaultSurrealDatabase,
				AuthLevel: defaultSurrealAuthLevel,
			},
		},
		Pipeline: Pipeline{
			ManifestName: defaultManifestName,
		},
		Annotator: Annotator{
			KeyPrefix: defaultAnnotatorKeyPrefix,
		},
		Maintenance: Maintenance{
			RecentWindow:        defaultRecentWindow,
			ClassCountThreshold: defaultClassCountThreshold,
			SettleDelaySeconds:  defaultSettleDelaySeconds,
		},
		Warmer: Warmer{
			Status:   defaultWarmerStatus,
			PageSize: defaultWarmerPageSize,
		},
		Schedule: Schedule{
			Parse: defaultParseSchedule,
			Flush: defaultFlushSchedule,
			Warm:  defaultWarmSchedule,
		},
		Notifications: Notifications{
			RequestTimeoutSeconds: defaultNtfyTimeoutSeconds,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
