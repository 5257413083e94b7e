package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrWebhookFailed is returned when the webhook answers with a non-2xx status.
var ErrWebhookFailed = errors.New("webhook call failed")

// SlackChannel posts to an incoming webhook URL given as the destination.
type SlackChannel struct {
	Username string
	// Room overrides the webhook's default channel when set.
	Room   string
	Client *http.Client
}

type slackPayload struct {
	Text     string `json:"text"`
	Username string `json:"username"`
	Channel  string `json:"channel,omitempty"`
}

// Notify posts message to the webhook URL in destination.
func (s *SlackChannel) Notify(ctx context.Context, destination, message string) error {
	buf, err := json.Marshal(slackPayload{Text: message, Username: s.Username, Channel: s.Room})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, destination, bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return errors.Join(err, ErrWebhookFailed)
	}
	defer resp.Body.Close()

	if 200 <= resp.StatusCode && resp.StatusCode < 300 {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return fmt.Errorf("%w (%d): %s", ErrWebhookFailed, resp.StatusCode, string(body))
}
