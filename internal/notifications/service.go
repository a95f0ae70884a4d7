package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"vitrine/internal/config"
	"vitrine/internal/services"
)

const userAgent = "Vitrine/0.1.0"

// Service defines the notification surface exposed to the run coordinator.
type Service interface {
	NotifyPublished(ctx context.Context, itemName, publishID string) error
	NotifyRunFailed(ctx context.Context, itemName, reason string, err error) error
	NotifySkipped(ctx context.Context, reason string) error
	TestNotification(ctx context.Context) error
}

// NewService returns an ntfy-backed Service, or a noop one when no topic is
// configured so callers never have to nil-check.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopNotifier{}
	}

	timeout := cfg.NotifyRequestTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyNotifier{
		endpoint:  topic,
		publishes: cfg.Notifications.Publishes,
		errors:    cfg.Notifications.Errors,
		client:    &http.Client{Timeout: timeout},
	}
}

// note is one outbound ntfy message. The body travels as the request body,
// everything else as ntfy headers.
type note struct {
	title    string
	body     string
	tags     []string
	priority string
}

func (m note) request(ctx context.Context, endpoint string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(m.body))
	if err != nil {
		return nil, fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if m.title != "" {
		req.Header.Set("Title", m.title)
	}
	if len(m.tags) > 0 {
		req.Header.Set("Tags", strings.Join(m.tags, ","))
	}
	if m.priority != "" {
		req.Header.Set("Priority", m.priority)
	}
	return req, nil
}

type ntfyNotifier struct {
	endpoint  string
	publishes bool
	errors    bool
	client    *http.Client
}

func (n *ntfyNotifier) NotifyPublished(ctx context.Context, itemName, publishID string) error {
	if !n.publishes {
		return nil
	}
	body := fmt.Sprintf("✅ Published: %s", strings.TrimSpace(itemName))
	if id := strings.TrimSpace(publishID); id != "" {
		body += "\nPublish ID: " + id
	}
	return n.deliver(ctx, note{
		title: "Vitrine - Published",
		body:  body,
		tags:  []string{"vitrine", "publish", "completed"},
	})
}

func (n *ntfyNotifier) NotifyRunFailed(ctx context.Context, itemName, reason string, err error) error {
	if !n.errors {
		return nil
	}
	detail := "unknown"
	if err != nil {
		detail = strings.TrimSpace(err.Error())
	}
	body := "❌ Run failed"
	if name := strings.TrimSpace(itemName); name != "" {
		body += " for " + name
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		body += " (" + reason + ")"
	}
	body += ": " + detail
	return n.deliver(ctx, note{
		title:    "Vitrine - Run Failed",
		body:     withRunLine(ctx, body),
		tags:     []string{"vitrine", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyNotifier) NotifySkipped(ctx context.Context, reason string) error {
	if !n.errors {
		return nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	return n.deliver(ctx, note{
		title: "Vitrine - Run Skipped",
		body:  withRunLine(ctx, fmt.Sprintf("Run skipped: %s", reason)),
		tags:  []string{"vitrine", "skipped"},
	})
}

func (n *ntfyNotifier) TestNotification(ctx context.Context) error {
	return n.deliver(ctx, note{
		title:    "Vitrine - Test",
		body:     "🧪 Notification system test",
		tags:     []string{"vitrine", "test"},
		priority: "low",
	})
}

// withRunLine appends the run identifier carried by ctx so the message can
// be matched against the run journal.
func withRunLine(ctx context.Context, body string) string {
	if runID := services.RunID(ctx); runID != "" {
		return body + "\nRun: " + runID
	}
	return body
}

func (n *ntfyNotifier) deliver(ctx context.Context, msg note) error {
	if n == nil || n.client == nil {
		return nil
	}
	req, err := msg.request(ctx, n.endpoint)
	if err != nil {
		return err
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post ntfy message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopNotifier struct{}

func (noopNotifier) NotifyPublished(context.Context, string, string) error        { return nil }
func (noopNotifier) NotifyRunFailed(context.Context, string, string, error) error { return nil }
func (noopNotifier) NotifySkipped(context.Context, string) error                  { return nil }
func (noopNotifier) TestNotification(context.Context) error                       { return nil }
