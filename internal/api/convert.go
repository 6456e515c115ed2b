package api

import (
	"time"

	"catalogcron/internal/queue"
)

// FormatTime renders t for API payloads; the zero time renders empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

// ParseTime is the inverse of FormatTime.
func ParseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateTimeFormat, value)
}

// FromQueueEntry converts a pending queue entry.
func FromQueueEntry(entry queue.Entry) QueueEntry {
	return QueueEntry{
		Key:          entry.Key,
		SubmissionID: entry.ID,
		Actions:      entry.Actions.EnabledNames(),
	}
}

// FromPending converts the result of queue.Queue.Pending.
func FromPending(entries []queue.Entry, malformed []queue.Malformed) QueueListResponse {
	resp := QueueListResponse{Entries: make([]QueueEntry, 0, len(entries))}
	for _, entry := range entries {
		resp.Entries = append(resp.Entries, FromQueueEntry(entry))
	}
	for _, bad := range malformed {
		msg := ""
		if bad.Err != nil {
			msg = bad.Err.Error()
		}
		resp.Malformed = append(resp.Malformed, MalformedEntry{Key: bad.Key, Value: bad.Value, Error: msg})
	}
	return resp
}
