package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pkg/errors"
)

type webhookMessage struct {
	Content string `json:"content"`
}

// Webhook posts chat messages to an incoming-webhook URL, e.g. Discord.
type Webhook struct {
	client *http.Client
	url    string
}

func NewWebhook(client *http.Client, url string) *Webhook {
	return &Webhook{client: client, url: url}
}

func (w *Webhook) Name() string {
	return "webhook"
}

func (w *Webhook) Notify(ctx context.Context, change Change) error {
	return w.post(ctx, fmt.Sprintf(" 🥳 New IP [%s]  😓 Old IP [%s]", change.New, change.Old))
}

func (w *Webhook) Report(ctx context.Context, addr string) error {
	return w.post(ctx, fmt.Sprintf("💢 IP [%s]", addr))
}

func (w *Webhook) post(ctx context.Context, content string) error {
	payload, err := json.Marshal(webhookMessage{Content: content})
	if err != nil {
		return errors.Wrap(err, "encode webhook message")
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build webhook request")
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := w.client.Do(request)
	if err != nil {
		return errors.Wrap(err, "post webhook")
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(response.Body, maxBody))

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return errors.Errorf("post webhook: server response invalid: %s", response.Status)
	}
	return nil
}
