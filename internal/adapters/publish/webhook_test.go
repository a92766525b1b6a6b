package publish

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanZoel112/vzoelfess/internal/core/domain"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestWebhookPublisher_Publish(t *testing.T) {
	var gotPayload map[string]any
	var gotIdempotencyKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdempotencyKey = r.Header.Get("Idempotency-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"channel_ref": "channel/77"})
	}))
	defer srv.Close()

	pub, err := NewWebhookPublisher(srv.URL, quietLogger)
	require.NoError(t, err)

	m := &domain.Menfess{
		ID:       42,
		Sender:   "sender-1",
		Body:     "um segredo",
		Hashtags: []string{"#confess"},
	}
	ref, err := pub.Publish(context.Background(), m)
	require.NoError(t, err)
	assert.Equal(t, "channel/77", ref)
	assert.Equal(t, "42", gotIdempotencyKey)

	// O payload nunca carrega a identidade do remetente.
	assert.NotContains(t, gotPayload, "sender")
	assert.NotContains(t, gotPayload, "sender_id")
	assert.Equal(t, "um segredo", gotPayload["body"])
}

func TestWebhookPublisher_RejectsEmptyChannelRef(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer srv.Close()

	pub, err := NewWebhookPublisher(srv.URL, quietLogger)
	require.NoError(t, err)

	_, err = pub.Publish(context.Background(), &domain.Menfess{ID: 1})
	assert.Error(t, err)
}

func TestWebhookPublisher_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	pub, err := NewWebhookPublisher(srv.URL, quietLogger)
	require.NoError(t, err)

	_, err = pub.Publish(context.Background(), &domain.Menfess{ID: 1})
	assert.Error(t, err)
}

func TestWebhookPublisher_RequiresURL(t *testing.T) {
	_, err := NewWebhookPublisher("", quietLogger)
	assert.Error(t, err)
}
