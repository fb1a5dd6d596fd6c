package email

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edupipe/edupipe/internal/breaker"
)

var testMsg = Message{
	To:      "student@example.com",
	Subject: "Your video finished processing",
	Body:    "<p>done</p>",
	Locale:  "en",
}

func TestConsoleMailer(t *testing.T) {
	m := NewConsoleMailer(nil)

	id, err := m.Send(context.Background(), testMsg)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.False(t, Protected(m), "console mailer is never breaker-wrapped")
}

func TestMailgunMailer_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "api", user)
		assert.Equal(t, "mg-key", pass)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "student@example.com", r.PostForm.Get("to"))
		assert.Equal(t, "no-reply@edupipe.test", r.PostForm.Get("from"))

		fmt.Fprint(w, `{"id":"<msg-1@mg>","message":"Queued"}`)
	}))
	defer srv.Close()

	m := NewMailgunMailer("mg.example.com", "mg-key", "no-reply@edupipe.test")
	m.SetBaseURL(srv.URL)

	id, err := m.Send(context.Background(), testMsg)
	require.NoError(t, err)
	assert.Equal(t, "<msg-1@mg>", id)
}

func TestMailgunMailer_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, "Forbidden")
	}))
	defer srv.Close()

	m := NewMailgunMailer("mg.example.com", "bad-key", "no-reply@edupipe.test")
	m.SetBaseURL(srv.URL)

	_, err := m.Send(context.Background(), testMsg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestSendgridMailer_Send(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sg-key", r.Header.Get("Authorization"))

		var payload struct {
			Subject string `json:"subject"`
			From    struct {
				Email string `json:"email"`
			} `json:"from"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, testMsg.Subject, payload.Subject)

		w.Header().Set("X-Message-Id", "sg-msg-1")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	m := NewSendgridMailer("sg-key", "no-reply@edupipe.test")
	m.SetBaseURL(srv.URL)

	id, err := m.Send(context.Background(), testMsg)
	require.NoError(t, err)
	assert.Equal(t, "sg-msg-1", id)
}

func TestFactory_SelectsProvider(t *testing.T) {
	m, err := New(Config{Provider: "console"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "console", m.Name())

	m, err = New(Config{Provider: "mailgun"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "mailgun", m.Name())
	assert.True(t, Protected(m))

	m, err = New(Config{Provider: "sendgrid"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "sendgrid", m.Name())

	_, err = New(Config{Provider: "smtp"}, nil)
	assert.Error(t, err)
}

func TestWrap_OpensCircuitOnFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	m := NewMailgunMailer("mg.example.com", "key", "no-reply@edupipe.test")
	m.SetBaseURL(srv.URL)

	cb := breaker.New("mailgun", breaker.Settings{
		VolumeThreshold:          2,
		ErrorThresholdPercentage: 50,
	})
	wrapped := Wrap(m, cb)

	for i := 0; i < 2; i++ {
		_, err := wrapped.Send(context.Background(), testMsg)
		require.Error(t, err)
	}

	_, err := wrapped.Send(context.Background(), testMsg)
	assert.ErrorIs(t, err, breaker.ErrOpen)
}
