package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget names the files in Dir matching Pattern (all files when
// empty) that retention may prune. Paths in Exclude are always kept.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// CleanupOldLogs removes files matching the provided targets that are older
// than retentionDays and returns how many were removed. A retentionDays value
// of 0 disables pruning. Missing directories are skipped.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	keep := excludedPaths(targets)

	removed := 0
	for _, target := range targets {
		for _, path := range expiredFiles(target, cutoff) {
			if _, ok := keep[path]; ok {
				continue
			}
			if err := os.Remove(path); err != nil {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", path),
					Error(err),
					String(FieldErrorHint, "check file permissions on paths.log_dir"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			if logger != nil {
				logger.Debug("log pruned", String("path", path), String(FieldEventType, "log_pruned"))
			}
		}
	}
	return removed
}

func excludedPaths(targets []RetentionTarget) map[string]struct{} {
	keep := make(map[string]struct{})
	for _, target := range targets {
		for _, path := range target.Exclude {
			if path = strings.TrimSpace(path); path != "" {
				keep[absPath(path)] = struct{}{}
			}
		}
	}
	return keep
}

// expiredFiles lists regular files of target last modified before cutoff.
func expiredFiles(target RetentionTarget, cutoff time.Time) []string {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return nil
	}
	pattern := strings.TrimSpace(target.Pattern)
	if pattern == "" {
		pattern = "*"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}
	var expired []string
	for _, match := range matches {
		info, err := os.Lstat(match)
		if err != nil || !info.Mode().IsRegular() || !info.ModTime().Before(cutoff) {
			continue
		}
		expired = append(expired, absPath(match))
	}
	return expired
}

func absPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return path
}
