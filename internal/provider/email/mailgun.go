package email

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// MailgunMailer sends through the Mailgun messages API.
type MailgunMailer struct {
	baseURL string
	domain  string
	apiKey  string
	from    string
	client  *http.Client
}

// NewMailgunMailer creates a Mailgun-backed mailer.
func NewMailgunMailer(domain, apiKey, from string) *MailgunMailer {
	return &MailgunMailer{
		baseURL: "https://api.mailgun.net/v3",
		domain:  domain,
		apiKey:  apiKey,
		from:    from,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (m *MailgunMailer) Name() string { return "mailgun" }

func (m *MailgunMailer) Send(ctx context.Context, msg Message) (string, error) {
	form := url.Values{}
	form.Set("from", m.from)
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	form.Set("html", msg.Body)

	endpoint := fmt.Sprintf("%s/%s/messages", m.baseURL, m.domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("mailgun: build request: %w", err)
	}
	req.SetBasicAuth("api", m.apiKey)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("mailgun: send: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("mailgun: send failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("mailgun: decode response: %w", err)
	}
	return out.ID, nil
}

// SetBaseURL overrides the API endpoint (tests).
func (m *MailgunMailer) SetBaseURL(u string) { m.baseURL = u }
