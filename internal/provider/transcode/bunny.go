package transcode

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Bunny Stream video status codes.
const (
	bunnyStatusQueued     = 0
	bunnyStatusProcessing = 1
	bunnyStatusEncoding   = 2
	bunnyStatusFinished   = 3
	bunnyStatusResolution = 4
	bunnyStatusFailed     = 5
)

// ErrBadSignature is returned when a webhook signature does not verify.
var ErrBadSignature = errors.New("transcode: webhook signature mismatch")

// BunnyTranscoder drives the Bunny Stream video API.
type BunnyTranscoder struct {
	baseURL       string
	libraryID     string
	apiKey        string
	webhookSecret string
	client        *http.Client
}

// NewBunnyTranscoder creates a Bunny Stream adapter.
func NewBunnyTranscoder(libraryID, apiKey, webhookSecret string) *BunnyTranscoder {
	return &BunnyTranscoder{
		baseURL:       "https://video.bunnycdn.com",
		libraryID:     libraryID,
		apiKey:        apiKey,
		webhookSecret: webhookSecret,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *BunnyTranscoder) Name() string { return "bunny" }

func (t *BunnyTranscoder) Submit(ctx context.Context, sourceRef string) (Submission, error) {
	payload, err := json.Marshal(map[string]string{"title": sourceRef, "sourceUrl": sourceRef})
	if err != nil {
		return Submission{}, fmt.Errorf("bunny: marshal payload: %w", err)
	}

	endpoint := fmt.Sprintf("%s/library/%s/videos/fetch", t.baseURL, t.libraryID)
	var out struct {
		GUID string `json:"guid"`
	}
	if err := t.do(ctx, http.MethodPost, endpoint, payload, &out); err != nil {
		return Submission{}, err
	}
	return Submission{ProviderUID: out.GUID, Status: StatusPending}, nil
}

func (t *BunnyTranscoder) GetStatus(ctx context.Context, providerUID string) (Report, error) {
	endpoint := fmt.Sprintf("%s/library/%s/videos/%s", t.baseURL, t.libraryID, providerUID)
	var out struct {
		GUID   string  `json:"guid"`
		Status int     `json:"status"`
		Length float64 `json:"length"`
	}
	if err := t.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return Report{}, err
	}
	return t.normalize(out.GUID, out.Status, out.Length, ""), nil
}

func (t *BunnyTranscoder) Delete(ctx context.Context, providerUID string) error {
	endpoint := fmt.Sprintf("%s/library/%s/videos/%s", t.baseURL, t.libraryID, providerUID)
	return t.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// VerifySignature checks the HMAC-SHA256 signature Bunny sends over the
// raw webhook body.
func (t *BunnyTranscoder) VerifySignature(raw []byte, header http.Header) error {
	got := header.Get("Webhook-Signature")
	if got == "" {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, []byte(t.webhookSecret))
	mac.Write(raw)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(got)), []byte(want)) {
		return ErrBadSignature
	}
	return nil
}

// ParseWebhook normalizes a Bunny webhook payload.
func (t *BunnyTranscoder) ParseWebhook(raw []byte) (Report, error) {
	var payload struct {
		VideoGuid string  `json:"VideoGuid"`
		Status    int     `json:"Status"`
		Length    float64 `json:"Length"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Report{}, fmt.Errorf("bunny: parse webhook: %w", err)
	}
	if payload.VideoGuid == "" {
		return Report{}, fmt.Errorf("bunny: webhook missing video guid")
	}
	return t.normalize(payload.VideoGuid, payload.Status, payload.Length, ""), nil
}

func (t *BunnyTranscoder) normalize(uid string, status int, lengthSeconds float64, errMsg string) Report {
	r := Report{ProviderUID: uid, DurationSeconds: int(lengthSeconds), ErrorMessage: errMsg}
	switch status {
	case bunnyStatusQueued:
		r.Status = StatusPending
	case bunnyStatusProcessing, bunnyStatusEncoding, bunnyStatusResolution:
		r.Status = StatusProcessing
	case bunnyStatusFinished:
		r.Status = StatusReady
		r.PlaybackURL = fmt.Sprintf("%s/library/%s/videos/%s/playlist.m3u8", t.baseURL, t.libraryID, uid)
	default:
		r.Status = StatusError
		if r.ErrorMessage == "" {
			r.ErrorMessage = fmt.Sprintf("bunny reported status %d", status)
		}
	}
	return r
}

func (t *BunnyTranscoder) do(ctx context.Context, method, endpoint string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("bunny: build request: %w", err)
	}
	req.Header.Set("AccessKey", t.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("bunny: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("bunny: %s failed with status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("bunny: decode response: %w", err)
	}
	return nil
}

// SetBaseURL overrides the API endpoint (tests).
func (t *BunnyTranscoder) SetBaseURL(u string) { t.baseURL = u }
