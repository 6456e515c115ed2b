package catalogdb

import (
	"context"
	"fmt"

	"catalogcron/internal/catalog"
	"catalogcron/internal/graphstore"
)

// allOntologies is the mapping_counts key holding the catalog-wide total.
const allOntologies = "*"

// RefreshMappingCounts recomputes the catalog-wide mapping total across every
// derived graph and returns it.
func (d *DB) RefreshMappingCounts(ctx context.Context) (int, error) {
	graphs, err := d.graphs.Graphs(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, g := range graphs {
		n, err := d.graphs.CountMappings(ctx, g)
		if err != nil {
			return 0, err
		}
		total += n
	}
	if err := d.saveMappingCount(ctx, allOntologies, total); err != nil {
		return 0, err
	}
	return total, nil
}

// RefreshOntologyMappingCounts recomputes the mapping count of every
// ontology's latest ready submission and returns how many were updated.
func (d *DB) RefreshOntologyMappingCounts(ctx context.Context) (int, error) {
	onts, err := d.Ontologies(ctx)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, ont := range onts {
		latest, err := ont.LatestReady(ctx)
		if err != nil {
			return updated, err
		}
		count := 0
		if latest != nil {
			if count, err = d.graphs.CountMappings(ctx, latest.ID()); err != nil {
				return updated, err
			}
		}
		if err := d.saveMappingCount(ctx, ont.ID(), count); err != nil {
			return updated, err
		}
		updated++
	}
	return updated, nil
}

// MappingCounts returns the stored counts keyed by ontology IRI, with the
// catalog-wide total under "*".
func (d *DB) MappingCounts(ctx context.Context) (map[string]int, error) {
	rows, err := d.db.QueryContext(ctx, "SELECT ontology_id, count FROM mapping_counts")
	if err != nil {
		return nil, fmt.Errorf("read mapping counts: %w", err)
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var (
			id string
			n  int
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		out[id] = n
	}
	return out, rows.Err()
}

// FirstPage reads page 1 of sub's class records.
func (d *DB) FirstPage(ctx context.Context, sub catalog.Submission, size int) ([]graphstore.Class, error) {
	return d.graphs.Classes(ctx, sub.ID(), 1, size)
}

func (d *DB) saveMappingCount(ctx context.Context, id string, count int) error {
	_, err := d.db.ExecWithRetry(ctx, `
INSERT INTO mapping_counts (ontology_id, count, updated_at) VALUES (?, ?, ?)
ON CONFLICT(ontology_id) DO UPDATE SET count = excluded.count, updated_at = excluded.updated_at`,
		id, count, now())
	if err != nil {
		return fmt.Errorf("save mapping count for %s: %w", id, err)
	}
	return nil
}
