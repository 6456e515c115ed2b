package preflight

import (
	"context"

	"catalogcron/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Repository directory", cfg.Paths.RepositoryDir),
	}

	if len(cfg.Pipeline.ParserCommand) > 0 {
		results = append(results, CheckCommand("Parser command", cfg.Pipeline.ParserCommand))
	}
	if len(cfg.Pipeline.IndexCommand) > 0 {
		results = append(results, CheckCommand("Index command", cfg.Pipeline.IndexCommand))
	}

	if cfg.Queue.Backend == "redis" {
		results = append(results, CheckRedis(ctx, "Queue redis", cfg.Queue.RedisURL))
	}
	if cfg.Annotator.Enabled {
		results = append(results, CheckRedis(ctx, "Annotator redis", cfg.Annotator.RedisURL))
	}
	return results
}

// Failed filters results down to the checks that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
