package webhook_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/edupipe/edupipe/internal/platform"
	"github.com/edupipe/edupipe/internal/provider/transcode"
	"github.com/edupipe/edupipe/internal/reconcile"
	"github.com/edupipe/edupipe/internal/webhook"
)

const webhookSecret = "test-secret"

func setupServer(t *testing.T, transcoder transcode.Transcoder) (*httptest.Server, *platform.Store) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store := platform.NewStore(db)
	require.NoError(t, store.Migrate(context.Background()))

	rec := reconcile.New(store, nil, nil)

	r := chi.NewRouter()
	webhook.NewHandler(transcoder, rec, nil).Routes(r)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func seedContent(t *testing.T, store *platform.Store, uid string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.DB().Create(&platform.Lesson{ID: "lesson-1", OwnerID: "user-1"}).Error)
	require.NoError(t, store.DB().Create(&platform.LessonContent{ID: "content-1", LessonID: "lesson-1"}).Error)
	require.NoError(t, store.SetTranscodeSubmitted(ctx, "content-1", uid))
}

func sign(body []byte) string {
	mac := hmac.New(sha256.New, []byte(webhookSecret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(t *testing.T, srv *httptest.Server, body []byte, signature string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/webhooks/transcoding", bytes.NewReader(body))
	require.NoError(t, err)
	if signature != "" {
		req.Header.Set("Webhook-Signature", signature)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestWebhook_ValidDeliveryApplies(t *testing.T) {
	bunny := transcode.NewBunnyTranscoder("lib", "key", webhookSecret)
	srv, store := setupServer(t, bunny)
	seedContent(t, store, "uid-1")

	body := []byte(`{"VideoGuid":"uid-1","Status":3,"Length":120}`)
	resp := postWebhook(t, srv, body, sign(body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Received bool `json:"received"`
		Applied  bool `json:"applied"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.Received)
	assert.True(t, out.Applied)

	content, err := store.GetContent(context.Background(), "content-1")
	require.NoError(t, err)
	assert.Equal(t, transcode.StatusReady, content.TranscodeStatus)
	assert.Equal(t, 120, content.DurationSeconds)
}

func TestWebhook_BadSignatureRejected(t *testing.T) {
	bunny := transcode.NewBunnyTranscoder("lib", "key", webhookSecret)
	srv, store := setupServer(t, bunny)
	seedContent(t, store, "uid-1")

	body := []byte(`{"VideoGuid":"uid-1","Status":3}`)
	resp := postWebhook(t, srv, body, "deadbeef")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	content, err := store.GetContent(context.Background(), "content-1")
	require.NoError(t, err)
	assert.Equal(t, transcode.StatusPending, content.TranscodeStatus, "rejected delivery writes nothing")
}

func TestWebhook_MissingSignatureRejected(t *testing.T) {
	bunny := transcode.NewBunnyTranscoder("lib", "key", webhookSecret)
	srv, _ := setupServer(t, bunny)

	body := []byte(`{"VideoGuid":"uid-1","Status":3}`)
	resp := postWebhook(t, srv, body, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhook_MalformedPayloadRejected(t *testing.T) {
	bunny := transcode.NewBunnyTranscoder("lib", "key", webhookSecret)
	srv, _ := setupServer(t, bunny)

	body := []byte(`{"no":"guid"}`)
	resp := postWebhook(t, srv, body, sign(body))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhook_UnknownUIDAcknowledged(t *testing.T) {
	bunny := transcode.NewBunnyTranscoder("lib", "key", webhookSecret)
	srv, _ := setupServer(t, bunny)

	body := []byte(`{"VideoGuid":"never-tracked","Status":3}`)
	resp := postWebhook(t, srv, body, sign(body))
	assert.Equal(t, http.StatusOK, resp.StatusCode, "acknowledge so the provider stops retrying")

	var out struct {
		Applied bool `json:"applied"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.False(t, out.Applied)
}

func TestWebhook_ReplayedDeliveryIdempotent(t *testing.T) {
	bunny := transcode.NewBunnyTranscoder("lib", "key", webhookSecret)
	srv, store := setupServer(t, bunny)
	seedContent(t, store, "uid-1")

	body := []byte(`{"VideoGuid":"uid-1","Status":3,"Length":120}`)
	for i := 0; i < 3; i++ {
		resp := postWebhook(t, srv, body, sign(body))
		assert.Equal(t, http.StatusOK, resp.StatusCode, fmt.Sprintf("delivery %d", i+1))
	}

	content, err := store.GetContent(context.Background(), "content-1")
	require.NoError(t, err)
	assert.Equal(t, transcode.StatusReady, content.TranscodeStatus)
}

func TestWebhook_ProviderWithoutWebhooks(t *testing.T) {
	srv, _ := setupServer(t, transcode.NewLocalTranscoder())

	body := []byte(`{}`)
	resp := postWebhook(t, srv, body, "")
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}
