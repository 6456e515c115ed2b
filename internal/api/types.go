package api

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// RoutineStatus describes one scheduled daemon routine.
type RoutineStatus struct {
	Name         string `json:"name"`
	Schedule     string `json:"schedule"`
	Running      bool   `json:"running"`
	Runs         int    `json:"runs"`
	Failures     int    `json:"failures"`
	LastStarted  string `json:"lastStarted,omitempty"`
	LastFinished string `json:"lastFinished,omitempty"`
	LastDuration string `json:"lastDuration,omitempty"`
	LastError    string `json:"lastError,omitempty"`
	NextRun      string `json:"nextRun,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool            `json:"running"`
	PID          int             `json:"pid"`
	LockFilePath string          `json:"lockFilePath"`
	StartedAt    string          `json:"startedAt,omitempty"`
	Routines     []RoutineStatus `json:"routines"`
}

// QueueEntry is a pending parse request.
type QueueEntry struct {
	Key          string   `json:"key"`
	SubmissionID string   `json:"submissionId"`
	Actions      []string `json:"actions"`
}

// MalformedEntry is a stored queue value that could not be decoded.
type MalformedEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
	Error string `json:"error"`
}

// QueueListResponse wraps the pending queue.
type QueueListResponse struct {
	Entries   []QueueEntry     `json:"entries"`
	Malformed []MalformedEntry `json:"malformed,omitempty"`
}

// TriggerResponse acknowledges a manual routine run request.
type TriggerResponse struct {
	Routine  string `json:"routine"`
	Accepted bool   `json:"accepted"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
