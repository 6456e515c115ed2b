package graphstore

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"

	"catalogcron/internal/sqlitedb"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// SQLiteStore keeps derived graphs in a local SQLite table.
type SQLiteStore struct {
	db *sqlitedb.DB
}

// OpenSQLite opens or creates the graph database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqlitedb.Open(ctx, path, schemaSQL, schemaVersion)
	if err != nil {
		return nil, fmt.Errorf("open graph database: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Graphs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT graph FROM classes ORDER BY graph")
	if err != nil {
		return nil, fmt.Errorf("list graphs: %w", err)
	}
	defer rows.Close()
	var graphs []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan graph: %w", err)
		}
		graphs = append(graphs, g)
	}
	return graphs, rows.Err()
}

func (s *SQLiteStore) PutClasses(ctx context.Context, graph string, classes []Class) error {
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM classes WHERE graph = ?", graph); err != nil {
			return fmt.Errorf("clear graph %s: %w", graph, err)
		}
		stmt, err := tx.PrepareContext(ctx, `
INSERT INTO classes (graph, class_id, label, mappings_json, mapping_count) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(graph, class_id) DO UPDATE SET label = excluded.label, mappings_json = excluded.mappings_json, mapping_count = excluded.mapping_count`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, c := range classes {
			mappings := c.Mappings
			if mappings == nil {
				mappings = []string{}
			}
			encoded, err := json.Marshal(mappings)
			if err != nil {
				return fmt.Errorf("encode mappings for %s: %w", c.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, graph, c.ID, c.Label, string(encoded), len(mappings)); err != nil {
				return fmt.Errorf("insert class %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) SetLabels(ctx context.Context, graph string, labels map[string]string) error {
	if len(labels) == 0 {
		return nil
	}
	return s.db.InTx(ctx, func(tx *sql.Tx) error {
		for id, label := range labels {
			if _, err := tx.ExecContext(ctx, "UPDATE classes SET label = ? WHERE graph = ? AND class_id = ?", label, graph, id); err != nil {
				return fmt.Errorf("set label for %s: %w", id, err)
			}
		}
		return nil
	})
}

func (s *SQLiteStore) Classes(ctx context.Context, graph string, page, size int) ([]Class, error) {
	limit, offset := pageBounds(page, size)
	rows, err := s.db.QueryContext(ctx,
		"SELECT class_id, label, mappings_json FROM classes WHERE graph = ? ORDER BY class_id LIMIT ? OFFSET ?",
		graph, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("read classes: %w", err)
	}
	defer rows.Close()
	var out []Class
	for rows.Next() {
		var (
			c   Class
			raw string
		)
		if err := rows.Scan(&c.ID, &c.Label, &raw); err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &c.Mappings); err != nil {
			return nil, fmt.Errorf("decode mappings for %s: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountClasses(ctx context.Context, graph string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM classes WHERE graph = ?", graph).Scan(&n); err != nil {
		return 0, fmt.Errorf("count classes: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) CountMappings(ctx context.Context, graph string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(mapping_count), 0) FROM classes WHERE graph = ?", graph).Scan(&n); err != nil {
		return 0, fmt.Errorf("count mappings: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) DeleteGraph(ctx context.Context, graph string) error {
	if _, err := s.db.ExecWithRetry(ctx, "DELETE FROM classes WHERE graph = ?", graph); err != nil {
		return fmt.Errorf("delete graph %s: %w", graph, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
