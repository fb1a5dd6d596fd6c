package transcode

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// MuxTranscoder drives the Mux video assets API.
type MuxTranscoder struct {
	baseURL       string
	tokenID       string
	tokenSecret   string
	webhookSecret string
	client        *http.Client
}

// NewMuxTranscoder creates a Mux adapter.
func NewMuxTranscoder(tokenID, tokenSecret, webhookSecret string) *MuxTranscoder {
	return &MuxTranscoder{
		baseURL:       "https://api.mux.com",
		tokenID:       tokenID,
		tokenSecret:   tokenSecret,
		webhookSecret: webhookSecret,
		client:        &http.Client{Timeout: 15 * time.Second},
	}
}

func (t *MuxTranscoder) Name() string { return "mux" }

type muxAsset struct {
	ID          string  `json:"id"`
	Status      string  `json:"status"` // preparing, ready, errored
	Duration    float64 `json:"duration"`
	PlaybackIDs []struct {
		ID string `json:"id"`
	} `json:"playback_ids"`
	Errors struct {
		Messages []string `json:"messages"`
	} `json:"errors"`
}

func (t *MuxTranscoder) Submit(ctx context.Context, sourceRef string) (Submission, error) {
	payload, err := json.Marshal(map[string]any{
		"input":           []map[string]string{{"url": sourceRef}},
		"playback_policy": []string{"public"},
	})
	if err != nil {
		return Submission{}, fmt.Errorf("mux: marshal payload: %w", err)
	}

	var out struct {
		Data muxAsset `json:"data"`
	}
	if err := t.do(ctx, http.MethodPost, t.baseURL+"/video/v1/assets", payload, &out); err != nil {
		return Submission{}, err
	}

	status := StatusPending
	if out.Data.Status == "ready" {
		status = StatusReady
	}
	return Submission{ProviderUID: out.Data.ID, Status: status}, nil
}

func (t *MuxTranscoder) GetStatus(ctx context.Context, providerUID string) (Report, error) {
	var out struct {
		Data muxAsset `json:"data"`
	}
	endpoint := fmt.Sprintf("%s/video/v1/assets/%s", t.baseURL, providerUID)
	if err := t.do(ctx, http.MethodGet, endpoint, nil, &out); err != nil {
		return Report{}, err
	}
	return t.normalize(out.Data), nil
}

func (t *MuxTranscoder) Delete(ctx context.Context, providerUID string) error {
	endpoint := fmt.Sprintf("%s/video/v1/assets/%s", t.baseURL, providerUID)
	return t.do(ctx, http.MethodDelete, endpoint, nil, nil)
}

// VerifySignature checks the Mux-Signature header: "t=<unix>,v1=<hex>"
// where v1 is HMAC-SHA256 over "<t>.<raw body>".
func (t *MuxTranscoder) VerifySignature(raw []byte, header http.Header) error {
	sig := header.Get("Mux-Signature")
	if sig == "" {
		return ErrBadSignature
	}

	var ts, v1 string
	for _, part := range strings.Split(sig, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			v1 = v
		}
	}
	if ts == "" || v1 == "" {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, []byte(t.webhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(raw)
	want := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(v1)), []byte(want)) {
		return ErrBadSignature
	}
	return nil
}

// ParseWebhook normalizes a Mux webhook payload.
func (t *MuxTranscoder) ParseWebhook(raw []byte) (Report, error) {
	var payload struct {
		Type string   `json:"type"` // video.asset.ready, video.asset.errored, ...
		Data muxAsset `json:"data"`
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Report{}, fmt.Errorf("mux: parse webhook: %w", err)
	}
	if payload.Data.ID == "" {
		return Report{}, fmt.Errorf("mux: webhook missing asset id")
	}
	return t.normalize(payload.Data), nil
}

func (t *MuxTranscoder) normalize(asset muxAsset) Report {
	r := Report{
		ProviderUID:     asset.ID,
		DurationSeconds: int(asset.Duration),
	}
	switch asset.Status {
	case "ready":
		r.Status = StatusReady
		if len(asset.PlaybackIDs) > 0 {
			r.PlaybackURL = fmt.Sprintf("https://stream.mux.com/%s.m3u8", asset.PlaybackIDs[0].ID)
		}
	case "errored":
		r.Status = StatusError
		r.ErrorMessage = strings.Join(asset.Errors.Messages, "; ")
		if r.ErrorMessage == "" {
			r.ErrorMessage = "mux reported an unspecified asset error"
		}
	case "preparing":
		r.Status = StatusProcessing
	default:
		r.Status = StatusPending
	}
	return r
}

func (t *MuxTranscoder) do(ctx context.Context, method, endpoint string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("mux: build request: %w", err)
	}
	req.SetBasicAuth(t.tokenID, t.tokenSecret)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("mux: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("mux: %s failed with status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("mux: decode response: %w", err)
	}
	return nil
}

// SetBaseURL overrides the API endpoint (tests).
func (t *MuxTranscoder) SetBaseURL(u string) { t.baseURL = u }
