// Package graphstore holds the derived class graphs produced by RDF
// processing. Each graph is named by its submission IRI and contains class
// records with labels and mapping targets.
package graphstore

import (
	"context"
	"fmt"
	"log/slog"

	"catalogcron/internal/config"
)

// Class is one class record inside a derived graph.
type Class struct {
	ID       string   `json:"class_id"`
	Label    string   `json:"label"`
	Mappings []string `json:"mappings"`
}

// Store reads and writes derived graphs.
type Store interface {
	// Graphs lists every graph name present in the store.
	Graphs(ctx context.Context) ([]string, error)
	// PutClasses replaces the contents of graph with classes.
	PutClasses(ctx context.Context, graph string, classes []Class) error
	// SetLabels updates labels for existing class ids.
	SetLabels(ctx context.Context, graph string, labels map[string]string) error
	// Classes returns one page of records ordered by class id. Pages start at 1.
	Classes(ctx context.Context, graph string, page, size int) ([]Class, error)
	CountClasses(ctx context.Context, graph string) (int, error)
	CountMappings(ctx context.Context, graph string) (int, error)
	// DeleteGraph drops graph; a missing graph is not an error.
	DeleteGraph(ctx context.Context, graph string) error
	Close() error
}

// Open returns the backend selected by cfg.GraphStore.Backend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	switch cfg.GraphStore.Backend {
	case "", "sqlite":
		return OpenSQLite(ctx, cfg.GraphStore.SQLitePath)
	case "surrealdb":
		return OpenSurreal(ctx, cfg.GraphStore.Surreal, logger)
	default:
		return nil, fmt.Errorf("graph store backend %q not supported", cfg.GraphStore.Backend)
	}
}

func pageBounds(page, size int) (limit, offset int) {
	if size <= 0 {
		size = 50
	}
	if page < 1 {
		page = 1
	}
	return size, (page - 1) * size
}
