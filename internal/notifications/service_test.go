package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"porter/internal/config"
	"porter/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventProjectCompleted, notifications.Payload{"projectPath": "/content/site-a"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "project created",
			event: notifications.EventProjectCreated,
			payload: notifications.Payload{
				"projectPath": "/content/site-a",
				"items":       "450",
			},
			expectTitle:   "Porter - Project Queued",
			expectMessage: "Queued /content/site-a (450 items)",
			expectTags:    "porter,project,queued",
		},
		{
			name:  "project completed clean",
			event: notifications.EventProjectCompleted,
			payload: notifications.Payload{
				"projectPath": "/content/site-a",
				"verified":    "448",
				"failed":      "0",
			},
			expectTitle:   "Porter - Project Complete",
			expectMessage: "Promotion complete: /content/site-a: 448 paths verified",
			expectTags:    "porter,project,completed",
		},
		{
			name:  "project completed with failures",
			event: notifications.EventProjectCompleted,
			payload: notifications.Payload{
				"projectPath": "/content/site-a",
				"verified":    "445",
				"failed":      "3",
			},
			expectTitle:    "Porter - Project Complete (with failures)",
			expectMessage:  "Promotion complete: /content/site-a: 445 verified, 3 failed",
			expectTags:     "porter,project,completed",
			expectPriority: "high",
		},
		{
			name:  "stage failed",
			event: notifications.EventStageFailed,
			payload: notifications.Payload{
				"projectPath": "/content/site-a",
				"stage":       "transforming",
				"error":       "rewriter unreachable",
			},
			expectTitle:    "Porter - Stage Failed",
			expectMessage:  "transforming failed for /content/site-a: rewriter unreachable",
			expectTags:     "porter,error,alert",
			expectPriority: "high",
		},
		{
			name:  "project paused",
			event: notifications.EventProjectPaused,
			payload: notifications.Payload{
				"projectPath": "/content/site-a",
				"reason":      "manifest missing items",
			},
			expectTitle:    "Porter - Project Paused",
			expectMessage:  "Paused /content/site-a: manifest missing items\nManual review required",
			expectTags:     "porter,project,paused",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5
			cfg.Notifications.DedupWindowSeconds = 0

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsEventToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for disabled event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.ProjectCreated = false
	cfg.Notifications.StageFailures = false
	cfg.Notifications.ProjectCompleted = false

	svc := notifications.NewService(&cfg)
	disabled := []notifications.Event{
		notifications.EventProjectCreated,
		notifications.EventProjectCompleted,
		notifications.EventStageFailed,
		notifications.EventProjectPaused,
	}
	for _, event := range disabled {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"projectPath": "/content/site-a"}); err != nil {
			t.Fatalf("expected no error for disabled event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceDeduplicatesWithinWindow(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.DedupWindowSeconds = 600

	svc := notifications.NewService(&cfg)
	payload := notifications.Payload{
		"projectPath": "/content/site-a",
		"stage":       "copying",
		"error":       "destination locked",
	}
	for i := 0; i < 3; i++ {
		if err := svc.Publish(context.Background(), notifications.EventStageFailed, payload); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	// A different message is not suppressed by the earlier key.
	other := notifications.Payload{
		"projectPath": "/content/site-b",
		"stage":       "copying",
		"error":       "destination locked",
	}
	if err := svc.Publish(context.Background(), notifications.EventStageFailed, other); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	if got := calls.Load(); got != 2 {
		t.Fatalf("expected 2 deliveries after dedup, got %d", got)
	}
}
