package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"porter/internal/config"
)

const userAgent = "Porter-Go/0.1.0"

// Event identifies a pipeline milestone worth pushing to operators.
type Event string

const (
	EventProjectCreated   Event = "project-created"
	EventProjectCompleted Event = "project-completed"
	EventStageFailed      Event = "stage-failed"
	EventProjectPaused    Event = "project-paused"
	EventTest             Event = "test"
)

// Payload carries event-specific fields used to format the message.
type Payload map[string]string

// Service publishes pipeline events to the configured channel.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// Noop returns a notification service that discards every event.
func Noop() Service { return noopService{} }

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint:    topic,
		settings:    cfg.Notifications,
		client:      &http.Client{Timeout: timeout},
		dedupWindow: time.Duration(cfg.Notifications.DedupWindowSeconds) * time.Second,
		lastSent:    make(map[string]time.Time),
		now:         time.Now,
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint    string
	settings    config.Notifications
	client      *http.Client
	dedupWindow time.Duration
	now         func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := n.format(event, payload)
	if !ok {
		return nil
	}
	if n.suppressed(msg) {
		return nil
	}
	return n.send(ctx, msg)
}

func (n *ntfyService) format(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }

	switch event {
	case EventProjectCreated:
		if !n.settings.ProjectCreated {
			return message{}, false
		}
		return message{
			title: "Porter - Project Queued",
			body:  fmt.Sprintf("Queued %s (%s items)", get("projectPath"), get("items")),
			tags:  []string{"porter", "project", "queued"},
		}, true
	case EventProjectCompleted:
		if !n.settings.ProjectCompleted {
			return message{}, false
		}
		if failed := get("failed"); failed != "" && failed != "0" {
			return message{
				title:    "Porter - Project Complete (with failures)",
				body:     fmt.Sprintf("Promotion complete: %s: %s verified, %s failed", get("projectPath"), get("verified"), failed),
				tags:     []string{"porter", "project", "completed"},
				priority: "high",
			}, true
		}
		return message{
			title: "Porter - Project Complete",
			body:  fmt.Sprintf("Promotion complete: %s: %s paths verified", get("projectPath"), get("verified")),
			tags:  []string{"porter", "project", "completed"},
		}, true
	case EventStageFailed:
		if !n.settings.StageFailures {
			return message{}, false
		}
		return message{
			title:    "Porter - Stage Failed",
			body:     fmt.Sprintf("%s failed for %s: %s", get("stage"), get("projectPath"), get("error")),
			tags:     []string{"porter", "error", "alert"},
			priority: "high",
		}, true
	case EventProjectPaused:
		if !n.settings.StageFailures {
			return message{}, false
		}
		return message{
			title:    "Porter - Project Paused",
			body:     fmt.Sprintf("Paused %s: %s\nManual review required", get("projectPath"), get("reason")),
			tags:     []string{"porter", "project", "paused"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "Porter - Test",
			body:     "Notification channel test",
			tags:     []string{"porter", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

// suppressed drops a message identical to one sent inside the dedup
// window. Repeated stage failures during a retry storm collapse to one
// push per window.
func (n *ntfyService) suppressed(msg message) bool {
	if n.dedupWindow <= 0 {
		return false
	}
	key := msg.title + "\n" + msg.body
	now := n.now()

	n.mu.Lock()
	defer n.mu.Unlock()
	if sent, ok := n.lastSent[key]; ok && now.Sub(sent) < n.dedupWindow {
		return true
	}
	n.lastSent[key] = now
	return false
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
