package graphstore

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/contrib/rews"
	"github.com/surrealdb/surrealdb.go/pkg/connection"
	"github.com/surrealdb/surrealdb.go/pkg/connection/gorillaws"
	"github.com/surrealdb/surrealdb.go/pkg/logger"
	"github.com/surrealdb/surrealdb.go/surrealcbor"

	"catalogcron/internal/config"
	"catalogcron/internal/logging"
)

func init() {
	// WebSocket upgrades fail when wss negotiates HTTP/2.
	gorillaws.DefaultDialer.TLSClientConfig = &tls.Config{
		NextProtos: []string{"http/1.1"},
	}
}

const surrealSchema = `
DEFINE TABLE IF NOT EXISTS class SCHEMALESS;
DEFINE INDEX IF NOT EXISTS class_graph ON class FIELDS graph;
DEFINE INDEX IF NOT EXISTS class_graph_id ON class FIELDS graph, class_id UNIQUE;
`

// SurrealStore keeps derived graphs in a SurrealDB "class" table with one
// record per (graph, class_id).
type SurrealStore struct {
	conn   *rews.Connection[*gorillaws.Connection]
	db     *surrealdb.DB
	logger *slog.Logger
}

type countRow struct {
	C int `json:"c"`
}

type graphRow struct {
	Graph string `json:"graph"`
}

// OpenSurreal connects with an auto-reconnecting WebSocket, signs in and
// defines the class table.
func OpenSurreal(ctx context.Context, cfg config.Surreal, log *slog.Logger) (*SurrealStore, error) {
	log = logging.NewComponentLogger(log, "graphstore")
	sdkLogger := logger.New(log.Handler())
	codec := surrealcbor.New()

	// gorillaws appends /rpc itself.
	baseURL := strings.TrimSuffix(cfg.URL, "/rpc")

	conn := rews.New(
		func(ctx context.Context) (*gorillaws.Connection, error) {
			return gorillaws.New(&connection.Config{
				BaseURL:     baseURL,
				Marshaler:   codec,
				Unmarshaler: codec,
				Logger:      sdkLogger,
			}), nil
		},
		5*time.Second,
		codec,
		sdkLogger,
	)
	retryer := rews.NewExponentialBackoffRetryer()
	retryer.InitialDelay = time.Second
	retryer.MaxDelay = 30 * time.Second
	retryer.Multiplier = 2.0
	retryer.MaxRetries = 10
	conn.Retryer = retryer

	if err := conn.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect surrealdb: %w", err)
	}
	db, err := surrealdb.FromConnection(ctx, conn)
	if err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("surrealdb from connection: %w", err)
	}

	auth := surrealdb.Auth{Username: cfg.Username, Password: cfg.Password}
	if cfg.AuthLevel == "database" {
		auth.Namespace = cfg.Namespace
		auth.Database = cfg.Database
	}
	if _, err := db.SignIn(ctx, auth); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("surrealdb signin: %w", err)
	}
	if err := db.Use(ctx, cfg.Namespace, cfg.Database); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("surrealdb use %s/%s: %w", cfg.Namespace, cfg.Database, err)
	}
	if _, err := surrealdb.Query[any](ctx, db, surrealSchema, nil); err != nil {
		_ = conn.Close(ctx)
		return nil, fmt.Errorf("define class table: %w", err)
	}

	log.Info("graph store connected",
		logging.String("url", cfg.URL),
		logging.String("namespace", cfg.Namespace),
		logging.String("database", cfg.Database),
	)
	return &SurrealStore{conn: conn, db: db, logger: log}, nil
}

func (s *SurrealStore) Graphs(ctx context.Context) ([]string, error) {
	results, err := surrealdb.Query[[]graphRow](ctx, s.db, `SELECT graph FROM class GROUP BY graph`, nil)
	if err != nil {
		return nil, fmt.Errorf("list graphs: %w", err)
	}
	var graphs []string
	if results != nil && len(*results) > 0 {
		for _, row := range (*results)[0].Result {
			graphs = append(graphs, row.Graph)
		}
	}
	return graphs, nil
}

func (s *SurrealStore) PutClasses(ctx context.Context, graph string, classes []Class) error {
	rows := make([]map[string]any, 0, len(classes))
	for _, c := range classes {
		mappings := c.Mappings
		if mappings == nil {
			mappings = []string{}
		}
		rows = append(rows, map[string]any{
			"graph":    graph,
			"class_id": c.ID,
			"label":    c.Label,
			"mappings": mappings,
		})
	}
	_, err := surrealdb.Query[any](ctx, s.db, `
		BEGIN TRANSACTION;
		DELETE class WHERE graph = $graph;
		INSERT INTO class $rows;
		COMMIT TRANSACTION;
	`, map[string]any{"graph": graph, "rows": rows})
	if err != nil {
		return fmt.Errorf("put classes for %s: %w", graph, err)
	}
	return nil
}

func (s *SurrealStore) SetLabels(ctx context.Context, graph string, labels map[string]string) error {
	for id, label := range labels {
		_, err := surrealdb.Query[any](ctx, s.db,
			`UPDATE class SET label = $label WHERE graph = $graph AND class_id = $id`,
			map[string]any{"graph": graph, "id": id, "label": label})
		if err != nil {
			return fmt.Errorf("set label for %s: %w", id, err)
		}
	}
	return nil
}

func (s *SurrealStore) Classes(ctx context.Context, graph string, page, size int) ([]Class, error) {
	limit, offset := pageBounds(page, size)
	results, err := surrealdb.Query[[]Class](ctx, s.db, `
		SELECT class_id, label, mappings FROM class
		WHERE graph = $graph ORDER BY class_id LIMIT $limit START $start
	`, map[string]any{"graph": graph, "limit": limit, "start": offset})
	if err != nil {
		return nil, fmt.Errorf("read classes: %w", err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

func (s *SurrealStore) CountClasses(ctx context.Context, graph string) (int, error) {
	return s.count(ctx, `SELECT count() AS c FROM class WHERE graph = $graph GROUP ALL`, graph)
}

func (s *SurrealStore) CountMappings(ctx context.Context, graph string) (int, error) {
	return s.count(ctx, `SELECT math::sum(array::len(mappings)) AS c FROM class WHERE graph = $graph GROUP ALL`, graph)
}

func (s *SurrealStore) count(ctx context.Context, sql, graph string) (int, error) {
	results, err := surrealdb.Query[[]countRow](ctx, s.db, sql, map[string]any{"graph": graph})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", graph, err)
	}
	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return 0, nil
	}
	return (*results)[0].Result[0].C, nil
}

func (s *SurrealStore) DeleteGraph(ctx context.Context, graph string) error {
	if _, err := surrealdb.Query[any](ctx, s.db, `DELETE class WHERE graph = $graph`, map[string]any{"graph": graph}); err != nil {
		return fmt.Errorf("delete graph %s: %w", graph, err)
	}
	return nil
}

func (s *SurrealStore) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.conn.Close(ctx)
}
