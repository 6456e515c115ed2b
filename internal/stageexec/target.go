package stageexec

import (
	"context"

	"catalogcron/internal/catalog"
)

// Metrics are the counts stored by the run_metrics stage.
type Metrics struct {
	Classes  int `json:"classes"`
	Mappings int `json:"mappings"`
}

// Target is the persisted submission state a Runner reads and updates.
type Target interface {
	ID() string
	Acronym() string
	Version() int
	UploadFilePath() string
	DataDir() string
	HasStatus(catalog.Status) bool
	AddStatus(ctx context.Context, statuses ...catalog.Status) error
	RemoveStatus(ctx context.Context, statuses ...catalog.Status) error
	SetMetrics(ctx context.Context, m Metrics) error
	// PreviousGraph names the derived graph of the closest older version
	// that still has one. ok is false when there is none.
	PreviousGraph(ctx context.Context) (graph string, ok bool, err error)
}
