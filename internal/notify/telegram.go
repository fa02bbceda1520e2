package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/muaviaUsmani/autobuy/internal/errors"
)

var _ Notifier = (*TelegramNotifier)(nil)

// DefaultTelegramURL is the Bot API root
const DefaultTelegramURL = "https://api.telegram.org"

// TelegramNotifier sends events through the Telegram Bot API
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

// NewTelegramNotifier creates a Telegram notifier. baseURL may be empty.
func NewTelegramNotifier(botToken, chatID, baseURL string) *TelegramNotifier {
	if baseURL == "" {
		baseURL = DefaultTelegramURL
	}
	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelegramNotifier) Notify(ctx context.Context, event Event) error {
	return t.Send(ctx, Format(event))
}

// Send posts a Markdown message to the configured chat
func (t *TelegramNotifier) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(map[string]string{
		"chat_id":    t.chatID,
		"text":       text,
		"parse_mode": "Markdown",
	})
	if err != nil {
		return errors.Wrap(err, "telegram: encode message")
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", t.baseURL, t.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "telegram: create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// the url carries the bot token; keep it out of the error
		return errors.Newf("telegram: send failed: %s", errors.UnwrapAll(err).Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf("telegram: unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
