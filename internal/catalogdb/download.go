package catalogdb

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"catalogcron/internal/logging"
	"catalogcron/internal/services"
)

// Download fetches PullLocation into the data directory and records the
// resulting path on the submission.
func (s *Submission) Download(ctx context.Context) error {
	location := strings.TrimSpace(s.pull)
	if location == "" {
		return services.Wrap(services.ErrValidation, "catalogdb", "download", "submission has no pull location", nil)
	}
	parsed, err := url.Parse(location)
	if err != nil {
		return services.Wrap(services.ErrValidation, "catalogdb", "download", "invalid pull location", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return services.Wrap(services.ErrDownload, "catalogdb", "download", "build request", err)
	}
	resp, err := s.db.client.Do(req)
	if err != nil {
		return services.Wrap(services.ErrDownload, "catalogdb", "download", location, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return services.Wrap(services.ErrDownload, "catalogdb", "download", fmt.Sprintf("%s returned %s", location, resp.Status), nil)
	}

	dir := s.DataDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure data dir: %w", err)
	}
	name := path.Base(parsed.Path)
	if name == "" || name == "/" || name == "." {
		name = s.acronym + ".owl"
	}
	dest := filepath.Join(dir, name)
	tmp, err := os.CreateTemp(dir, ".download-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	written, copyErr := io.Copy(tmp, resp.Body)
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		_ = os.Remove(tmp.Name())
		if copyErr == nil {
			copyErr = closeErr
		}
		return services.Wrap(services.ErrDownload, "catalogdb", "download", "write body", copyErr)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("move download into place: %w", err)
	}
	s.db.logger.Debug("source file downloaded",
		logging.String(logging.FieldSubmissionID, s.id),
		logging.String("path", dest),
		logging.Int64("bytes", written),
	)
	return s.setUploadPath(ctx, dest)
}
