package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"catalogcron/internal/api"
	"catalogcron/internal/logging"
	"catalogcron/internal/queue"
)

// QueueReader is the read side of the parse queue served by the API.
type QueueReader interface {
	Pending(ctx context.Context) ([]queue.Entry, []queue.Malformed, error)
}

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	queue  QueueReader

	listener net.Listener
	server   *http.Server
}

func newAPIServer(bind, token string, d *Daemon, q QueueReader, logger *slog.Logger) (*apiServer, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" || d == nil {
		return nil, nil
	}

	mux := http.NewServeMux()
	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
		queue:  q,
	}

	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/queue", authMiddleware(token, srv.handleQueue))
	mux.HandleFunc("/api/routines/", authMiddleware(token, srv.handleRoutine))

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log().Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// APIAddr returns the bound listener address, or "" when the API is disabled.
func (d *Daemon) APIAddr() string {
	if d.api == nil || d.api.listener == nil {
		return ""
	}
	return d.api.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, toAPIStatus(s.daemon.Status()))
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.queue == nil {
		s.writeJSON(w, http.StatusOK, api.FromPending(nil, nil))
		return
	}
	entries, malformed, err := s.queue.Pending(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.FromPending(entries, malformed))
}

// handleRoutine serves POST /api/routines/<name>/run.
func (s *apiServer) handleRoutine(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/routines/")
	name, action, ok := strings.Cut(rest, "/")
	if !ok || name == "" || action != "run" {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if err := s.daemon.Trigger(name); err != nil {
		status := http.StatusConflict
		if errors.Is(err, ErrUnknownRoutine) {
			status = http.StatusNotFound
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.log().Info("routine run requested", logging.String(logging.FieldRoutine, name))
	s.writeJSON(w, http.StatusAccepted, api.TriggerResponse{Routine: name, Accepted: true})
}

func toAPIStatus(status Status) api.DaemonStatus {
	out := api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		LockFilePath: status.LockFilePath,
		StartedAt:    api.FormatTime(status.StartedAt),
		Routines:     make([]api.RoutineStatus, 0, len(status.Routines)),
	}
	for _, r := range status.Routines {
		dto := api.RoutineStatus{
			Name:         r.Name,
			Schedule:     r.Schedule,
			Running:      r.Running,
			Runs:         r.Runs,
			Failures:     r.Failures,
			LastStarted:  api.FormatTime(r.LastStarted),
			LastFinished: api.FormatTime(r.LastFinished),
			LastError:    r.LastError,
		}
		if r.LastDuration > 0 {
			dto.LastDuration = r.LastDuration.Round(time.Millisecond).String()
		}
		if r.Schedule != "manual" {
			dto.NextRun = api.FormatTime(r.NextRun)
		}
		out.Routines = append(out.Routines, dto)
	}
	return out
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String(logging.FieldComponent, "api-server"))
	}
	return logging.NewNop()
}
