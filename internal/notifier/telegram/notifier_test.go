package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/social-harvester/internal/crawler"
)

func TestNotifierSend(t *testing.T) {
	t.Parallel()

	var got sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/botsecret/sendMessage", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	}))
	t.Cleanup(srv.Close)

	n, err := New(Config{BaseURL: srv.URL, Token: "secret"}, srv.Client())
	require.NoError(t, err)

	require.NoError(t, n.Send(context.Background(), "#golang job at Acme", "@gojobs"))
	require.Equal(t, sendMessageRequest{ChatID: "@gojobs", Text: "-golang job at Acme", ParseMode: "Markdown"}, got)
}

func TestNotifierSendAPIError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
	}))
	t.Cleanup(srv.Close)

	n, err := New(Config{BaseURL: srv.URL, Token: "secret"}, srv.Client())
	require.NoError(t, err)

	err = n.Send(context.Background(), "hi", "@missing")
	require.True(t, errors.Is(err, crawler.ErrNotifierFailed))
	require.ErrorContains(t, err, "chat not found")
}

func TestNotifierSendTransportErrorRedactsToken(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	n, err := New(Config{BaseURL: url, Token: "very-secret"}, nil)
	require.NoError(t, err)

	err = n.Send(context.Background(), "hi", "@gojobs")
	require.ErrorIs(t, err, crawler.ErrNotifierFailed)
	require.NotContains(t, err.Error(), "very-secret")
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	require.Error(t, err)

	n, err := New(Config{Token: "t"}, nil)
	require.NoError(t, err)
	require.ErrorIs(t, n.Send(context.Background(), "m", ""), crawler.ErrNotifierFailed)
}
