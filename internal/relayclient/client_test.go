package relayclient_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tyrowin/relay/internal/logger"
	"github.com/Tyrowin/relay/internal/relayclient"
	"github.com/Tyrowin/relay/internal/server"
)

func newRelay(t *testing.T) (*httptest.Server, *server.Hub) {
	t.Helper()

	cfg := *server.NewConfig()
	cfg.StaticDir = ""
	cfg.KeepAlive = 0
	cfg.RateLimit.Burst = 1000

	hub := server.NewHub(cfg.Capacity)
	ts := httptest.NewServer(server.SetupRoutes(cfg, hub, logger.Discard()))
	t.Cleanup(func() {
		_ = hub.Shutdown(time.Second)
		ts.Close()
	})
	return ts, hub
}

func receive(t *testing.T, msgs <-chan relayclient.Message) relayclient.Message {
	t.Helper()

	select {
	case m, ok := <-msgs:
		require.True(t, ok, "message channel closed")
		return m
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return relayclient.Message{}
	}
}

func TestPublishAndSubscribe(t *testing.T) {
	t.Parallel()

	ts, hub := newRelay(t)
	client := relayclient.New(ts.URL + "/")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, errs, err := client.Subscribe(ctx)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, time.Millisecond)

	sent := []relayclient.Message{
		{Room: "lobby", Username: "ada", Message: "first"},
		{Room: "lobby", Username: "bob", Message: "multi\nline"},
		{Room: "", Username: "", Message: ""},
	}
	for _, m := range sent {
		require.NoError(t, client.Publish(ctx, m))
	}

	for _, want := range sent {
		assert.Equal(t, want, receive(t, msgs))
	}

	cancel()
	for range msgs {
	}
	for err := range errs {
		t.Errorf("unexpected stream error after cancel: %v", err)
	}
}

func TestPublishValidationError(t *testing.T) {
	t.Parallel()

	ts, _ := newRelay(t)
	client := relayclient.New(ts.URL)

	err := client.Publish(context.Background(), relayclient.Message{
		Room:     strings.Repeat("r", 31),
		Username: "ada",
	})

	var statusErr *relayclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.Code)
	assert.Contains(t, statusErr.Body, "room")
}

func TestSubscribeReportsServerShutdown(t *testing.T) {
	t.Parallel()

	ts, hub := newRelay(t)
	client := relayclient.New(ts.URL)

	msgs, errs, err := client.Subscribe(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Subscribers() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, hub.Shutdown(time.Second))

	for range msgs {
	}
	select {
	case err := <-errs:
		assert.True(t, errors.Is(err, relayclient.ErrStreamEnded), "got %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("no stream error after shutdown")
	}
}

func TestSubscribeRejectsNonStreamResponse(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	_, _, err := relayclient.New(ts.URL).Subscribe(context.Background())

	var statusErr *relayclient.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.Code)
}
