package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voltgrid/cancelflow/internal/config"
)

func newTestClient(url string) *Client {
	return NewClient(config.DeliveryConfig{
		WebhookURL: config.Secret(url),
		Channel:    "#cancellation-review",
		Timeout:    config.Duration(2 * time.Second),
	}, zap.NewNop())
}

func TestPostApproval_Success(t *testing.T) {
	var received Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL)
	err := c.PostApproval(context.Background(), Message{Text: "New cancellation draft for review"})
	require.NoError(t, err)
	assert.Equal(t, "#cancellation-review", received.Channel, "channel defaults from config")
	assert.Equal(t, "New cancellation draft for review", received.Text)
}

func TestPost_StatusClassification(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		transient bool
	}{
		{name: "server error", status: http.StatusInternalServerError, transient: true},
		{name: "bad gateway", status: http.StatusBadGateway, transient: true},
		{name: "rate limited", status: http.StatusTooManyRequests, transient: true},
		{name: "request timeout", status: http.StatusRequestTimeout, transient: true},
		{name: "bad channel", status: http.StatusNotFound, transient: false},
		{name: "revoked credential", status: http.StatusForbidden, transient: false},
		{name: "bad payload", status: http.StatusBadRequest, transient: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			err := newTestClient(srv.URL).Post(context.Background(), []byte(`{"text":"x"}`))
			require.Error(t, err)
			assert.Equal(t, tt.transient, IsTransient(err))
		})
	}
}

func TestPost_TransportErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // connection refused

	err := newTestClient(srv.URL).Post(context.Background(), []byte(`{"text":"x"}`))
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestPost_DisabledClient(t *testing.T) {
	err := newTestClient("").Post(context.Background(), []byte(`{"text":"x"}`))
	require.Error(t, err)
	assert.False(t, IsTransient(err), "missing configuration is permanent")
}

func TestIsTransient_UnknownError(t *testing.T) {
	assert.True(t, IsTransient(context.DeadlineExceeded))
}
