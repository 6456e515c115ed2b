package daemon

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"catalogcron/internal/actions"
	"catalogcron/internal/api"
	"catalogcron/internal/queue"
	"catalogcron/internal/schedule"
)

type queueReaderStub struct {
	entries []queue.Entry
}

func (s *queueReaderStub) Pending(context.Context) ([]queue.Entry, []queue.Malformed, error) {
	return s.entries, nil, nil
}

func newTestDaemon(t *testing.T) *Daemon {
	t.Helper()
	manual, err := schedule.Parse("manual", 0)
	if err != nil {
		t.Fatalf("schedule.Parse: %v", err)
	}
	d, err := New(Options{
		LockPath: filepath.Join(t.TempDir(), "d.lock"),
		Routines: []Routine{{Name: "warm", Schedule: manual, Run: func(context.Context, *slog.Logger) error { return nil }}},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return d
}

func TestAPIServerHandleQueue(t *testing.T) {
	stub := &queueReaderStub{entries: []queue.Entry{{
		Key:     "sub:S1",
		ID:      "S1",
		Actions: actions.Set{actions.ProcessRDF: true},
	}}}
	srv := &apiServer{daemon: newTestDaemon(t), queue: stub}

	req := httptest.NewRequest(http.MethodGet, "/api/queue", nil)
	w := httptest.NewRecorder()
	srv.handleQueue(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.QueueListResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].SubmissionID != "S1" {
		t.Fatalf("unexpected entries: %+v", resp.Entries)
	}
}

func TestAPIServerHandleStatus(t *testing.T) {
	srv := &apiServer{daemon: newTestDaemon(t)}

	w := httptest.NewRecorder()
	srv.handleStatus(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var resp api.DaemonStatus
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Running || len(resp.Routines) != 1 || resp.Routines[0].Name != "warm" || resp.Routines[0].NextRun != "" {
		t.Fatalf("unexpected status: %+v", resp)
	}
}

func TestAPIServerTriggerRoutes(t *testing.T) {
	srv := &apiServer{daemon: newTestDaemon(t)}
	cases := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, "/api/routines/unknown/run", http.StatusNotFound},
		{http.MethodGet, "/api/routines/warm/run", http.StatusMethodNotAllowed},
		{http.MethodPost, "/api/routines/warm", http.StatusNotFound},
		{http.MethodPost, "/api/routines/warm/run", http.StatusConflict},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		srv.handleRoutine(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.method, tc.path, tc.want, w.Code)
		}
	}
}

func TestAuthMiddleware(t *testing.T) {
	handler := authMiddleware("secret", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	handler(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w = httptest.NewRecorder()
	handler(w, req)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected pass-through with token, got %d", w.Code)
	}
}
