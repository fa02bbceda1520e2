package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/muaviaUsmani/autobuy/internal/errors"
)

var _ Notifier = (*WebhookNotifier)(nil)

// WebhookNotifier POSTs every event as JSON to one endpoint
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier
func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WebhookNotifier) Notify(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "webhook: marshal")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "webhook: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Autobuy-Event", string(event.Kind))

	resp, err := w.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "webhook: send")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return errors.Newf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}
