// Package annotator maintains the Redis term cache used by the annotator
// service and the dictionary file generated from it.
//
// Every labelled class of a submission becomes a field of the hash
// <prefix>:term:<normalized label>. The field is "<ACRONYM>|<class IRI>" and
// the value the class IRI, so ontologies sharing a class IRI keep separate
// entries. <prefix>:ont:<ACRONYM> tracks which term hashes an ontology
// contributed to so a rebuild can drop stale entries first.
package annotator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/gomodule/redigo/redis"

	"catalogcron/internal/catalog"
	"catalogcron/internal/config"
	"catalogcron/internal/fileutil"
	"catalogcron/internal/graphstore"
	"catalogcron/internal/logging"
	"catalogcron/internal/services"
)

const (
	pageSize  = 500
	scanCount = 500
)

// Options configures an Annotator.
type Options struct {
	RedisURL       string
	KeyPrefix      string
	DictionaryPath string
	Graphs         graphstore.Store
}

// Annotator writes term cache entries to Redis.
type Annotator struct {
	pool     *redis.Pool
	prefix   string
	dictPath string
	graphs   graphstore.Store
}

// New connects to Redis and verifies the server answers.
func New(ctx context.Context, opts Options) (*Annotator, error) {
	if opts.Graphs == nil {
		return nil, services.Wrap(services.ErrConfiguration, "annotator", "init", "graph store is required", nil)
	}
	url := opts.RedisURL
	pool := &redis.Pool{
		MaxIdle:     2,
		IdleTimeout: 5 * time.Minute,
		Dial: func() (redis.Conn, error) {
			return redis.DialURL(url)
		},
	}
	prefix := strings.TrimSpace(opts.KeyPrefix)
	if prefix == "" {
		prefix = "annotator"
	}
	a := &Annotator{pool: pool, prefix: prefix, dictPath: opts.DictionaryPath, graphs: opts.Graphs}
	if err := a.do(ctx, func(c redis.Conn) error {
		_, err := c.Do("PING")
		return err
	}); err != nil {
		_ = pool.Close()
		return nil, services.Wrap(services.ErrConfiguration, "annotator", "connect", "redis unreachable", err)
	}
	return a, nil
}

// NewFromConfig returns nil, nil when the annotator is disabled.
func NewFromConfig(ctx context.Context, cfg *config.Config, graphs graphstore.Store) (*Annotator, error) {
	if !cfg.Annotator.Enabled {
		return nil, nil
	}
	return New(ctx, Options{
		RedisURL:       cfg.Annotator.RedisURL,
		KeyPrefix:      cfg.Annotator.KeyPrefix,
		DictionaryPath: cfg.Paths.DictionaryPath,
		Graphs:         graphs,
	})
}

// Close releases pooled connections.
func (a *Annotator) Close() error {
	if a == nil || a.pool == nil {
		return nil
	}
	return a.pool.Close()
}

func (a *Annotator) do(ctx context.Context, fn func(redis.Conn) error) error {
	conn, err := a.pool.GetContext(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func (a *Annotator) termKey(label string) string {
	return a.prefix + ":term:" + label
}

func (a *Annotator) ontologyKey(acronym string) string {
	return a.prefix + ":ont:" + acronym
}

func termField(acronym, classID string) string {
	return acronym + "|" + classID
}

// NormalizeLabel lower-cases a label and collapses whitespace.
func NormalizeLabel(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), " ")
}

// CreateTermCache replaces the ontology's term entries with the labelled
// classes of sub and returns how many classes were cached.
func (a *Annotator) CreateTermCache(ctx context.Context, logger *slog.Logger, sub catalog.Submission) (int, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	acronym := sub.Acronym()
	cached := 0
	err := a.do(ctx, func(c redis.Conn) error {
		removed, err := a.clearOntology(c, acronym)
		if err != nil {
			return err
		}
		logger.Debug("previous term entries removed", logging.String(logging.FieldAcronym, acronym), logging.Int("removed", removed))

		for page := 1; ; page++ {
			classes, err := a.graphs.Classes(ctx, sub.ID(), page, pageSize)
			if err != nil {
				return fmt.Errorf("read classes: %w", err)
			}
			for _, class := range classes {
				label := NormalizeLabel(class.Label)
				if label == "" {
					continue
				}
				key := a.termKey(label)
				if _, err := c.Do("HSET", key, termField(acronym, class.ID), class.ID); err != nil {
					return fmt.Errorf("cache term %q: %w", label, err)
				}
				if _, err := c.Do("SADD", a.ontologyKey(acronym), key); err != nil {
					return fmt.Errorf("track term %q: %w", label, err)
				}
				cached++
			}
			if len(classes) < pageSize {
				return nil
			}
		}
	})
	if err != nil {
		return cached, services.Wrap(services.ErrTransient, "annotator", "term cache", sub.ID(), err)
	}
	logger.Info("term cache created",
		logging.String(logging.FieldAcronym, acronym),
		logging.Int("terms", cached),
		logging.String(logging.FieldEventType, "term_cache_created"),
	)
	return cached, nil
}

func (a *Annotator) clearOntology(c redis.Conn, acronym string) (int, error) {
	keys, err := redis.Strings(c.Do("SMEMBERS", a.ontologyKey(acronym)))
	if err != nil && err != redis.ErrNil {
		return 0, fmt.Errorf("list term keys: %w", err)
	}
	owned := termField(acronym, "")
	removed := 0
	for _, key := range keys {
		fields, err := redis.Strings(c.Do("HKEYS", key))
		if err != nil && err != redis.ErrNil {
			return removed, fmt.Errorf("read %s: %w", key, err)
		}
		for _, field := range fields {
			if !strings.HasPrefix(field, owned) {
				continue
			}
			if _, err := c.Do("HDEL", key, field); err != nil {
				return removed, fmt.Errorf("remove %s from %s: %w", field, key, err)
			}
			removed++
		}
	}
	if _, err := c.Do("DEL", a.ontologyKey(acronym)); err != nil {
		return removed, fmt.Errorf("reset term key set: %w", err)
	}
	return removed, nil
}

// GenerateDictionary writes one "label<TAB>class ids" line per cached term
// to the dictionary file and returns the number of lines.
func (a *Annotator) GenerateDictionary(ctx context.Context, logger *slog.Logger) (int, error) {
	if strings.TrimSpace(a.dictPath) == "" {
		return 0, services.Wrap(services.ErrConfiguration, "annotator", "dictionary", "dictionary path is not configured", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	prefix := a.termKey("")
	var lines []string
	err := a.do(ctx, func(c redis.Conn) error {
		cursor := 0
		for {
			values, err := redis.Values(c.Do("SCAN", cursor, "MATCH", prefix+"*", "COUNT", scanCount))
			if err != nil {
				return fmt.Errorf("scan term keys: %w", err)
			}
			var keys []string
			if _, err := redis.Scan(values, &cursor, &keys); err != nil {
				return fmt.Errorf("decode scan reply: %w", err)
			}
			for _, key := range keys {
				values, err := redis.Strings(c.Do("HVALS", key))
				if err != nil {
					return fmt.Errorf("read %s: %w", key, err)
				}
				ids := uniqueSorted(values)
				if len(ids) == 0 {
					continue
				}
				lines = append(lines, strings.TrimPrefix(key, prefix)+"\t"+strings.Join(ids, ","))
			}
			if cursor == 0 {
				return nil
			}
		}
	})
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "annotator", "dictionary", "", err)
	}
	sort.Strings(lines)
	if err := fileutil.WriteAtomic(a.dictPath, []byte(strings.Join(lines, "\n")+"\n")); err != nil {
		return 0, fmt.Errorf("write dictionary: %w", err)
	}
	logger.Info("dictionary generated",
		logging.String("path", a.dictPath),
		logging.Int("terms", len(lines)),
		logging.String(logging.FieldEventType, "dictionary_generated"),
	)
	return len(lines), nil
}

func uniqueSorted(values []string) []string {
	sort.Strings(values)
	var out []string
	for _, v := range values {
		if len(out) > 0 && out[len(out)-1] == v {
			continue
		}
		out = append(out, v)
	}
	return out
}
