package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"catalogcron/internal/config"
)

const userAgent = "catalogcron/1"

// QueueOutcome summarizes one parse queue pass for alerting.
type QueueOutcome struct {
	Drained   int
	Ready     int
	NotReady  int
	Failed    int
	Malformed int
	Duration  time.Duration
}

// Service defines the alerts the routines raise.
type Service interface {
	NotifyRoutineFailed(ctx context.Context, routine string, err error) error
	NotifyQueueProblems(ctx context.Context, outcome QueueOutcome) error
	NotifyZombieGraphs(ctx context.Context, graphs []string) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a noop one when no topic is
// configured.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyRoutineFailed(ctx context.Context, routine string, err error) error {
	detail := "unknown error"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	return n.send(ctx, payload{
		title:    "catalogcron - Routine Failed",
		message:  fmt.Sprintf("Routine %s failed: %s", strings.TrimSpace(routine), detail),
		tags:     []string{"catalogcron", "routine", "failed"},
		priority: "high",
	})
}

// NotifyQueueProblems only sends when the pass left submissions failed or
// not ready, or found malformed entries.
func (n *ntfyService) NotifyQueueProblems(ctx context.Context, o QueueOutcome) error {
	if o.Failed == 0 && o.NotReady == 0 && o.Malformed == 0 {
		return nil
	}
	duration := o.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	message := fmt.Sprintf("Parse queue: %d drained, %d ready, %d not ready, %d failed in %s",
		o.Drained, o.Ready, o.NotReady, o.Failed, duration)
	if o.Malformed > 0 {
		message += fmt.Sprintf("\n%d malformed queue entries need attention", o.Malformed)
	}
	priority := "default"
	if o.Failed > 0 {
		priority = "high"
	}
	return n.send(ctx, payload{
		title:    "catalogcron - Parse Problems",
		message:  message,
		tags:     []string{"catalogcron", "queue", "warning"},
		priority: priority,
	})
}

func (n *ntfyService) NotifyZombieGraphs(ctx context.Context, graphs []string) error {
	if len(graphs) == 0 {
		return nil
	}
	const maxListed = 10
	listed := graphs
	if len(listed) > maxListed {
		listed = listed[:maxListed]
	}
	message := fmt.Sprintf("%d class graphs have no owning ontology:\n%s", len(graphs), strings.Join(listed, "\n"))
	if len(graphs) > maxListed {
		message += fmt.Sprintf("\n... and %d more", len(graphs)-maxListed)
	}
	return n.send(ctx, payload{
		title:   "catalogcron - Zombie Graphs",
		message: message,
		tags:    []string{"catalogcron", "flush", "zombie"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "catalogcron - Test",
		message:  "Notification system test",
		tags:     []string{"catalogcron", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRoutineFailed(context.Context, string, error) error { return nil }
func (noopService) NotifyQueueProblems(context.Context, QueueOutcome) error  { return nil }
func (noopService) NotifyZombieGraphs(context.Context, []string) error       { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
