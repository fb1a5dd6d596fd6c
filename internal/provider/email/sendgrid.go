package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// SendgridMailer sends through the SendGrid v3 mail API.
type SendgridMailer struct {
	baseURL string
	apiKey  string
	from    string
	client  *http.Client
}

// NewSendgridMailer creates a SendGrid-backed mailer.
func NewSendgridMailer(apiKey, from string) *SendgridMailer {
	return &SendgridMailer{
		baseURL: "https://api.sendgrid.com/v3",
		apiKey:  apiKey,
		from:    from,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (m *SendgridMailer) Name() string { return "sendgrid" }

func (m *SendgridMailer) Send(ctx context.Context, msg Message) (string, error) {
	payload := map[string]any{
		"personalizations": []map[string]any{
			{"to": []map[string]string{{"email": msg.To}}},
		},
		"from":    map[string]string{"email": m.from},
		"subject": msg.Subject,
		"content": []map[string]string{
			{"type": "text/html", "value": msg.Body},
		},
	}

	buf, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("sendgrid: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/mail/send", bytes.NewReader(buf))
	if err != nil {
		return "", fmt.Errorf("sendgrid: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sendgrid: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return "", fmt.Errorf("sendgrid: send failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// SendGrid returns 202 with the message id in a header.
	return resp.Header.Get("X-Message-Id"), nil
}

// SetBaseURL overrides the API endpoint (tests).
func (m *SendgridMailer) SetBaseURL(u string) { m.baseURL = u }
