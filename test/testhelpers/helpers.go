// Package testhelpers provides common utilities and helper functions for testing the relay.
//
// This package contains reusable test utilities shared by the integration tests.
// It provides functions for starting a relay, publishing messages, and reading
// the SSE and WebSocket streams to reduce code duplication in test files.
package testhelpers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/relay/internal/logger"
	"github.com/Tyrowin/relay/internal/server"
)

// TestOrigin is the browser origin allowed by TestConfig.
const TestOrigin = "http://localhost:8080"

// TestConfig returns a configuration suited to tests: the embedded static
// files, no keep-alive pings and a rate limit high enough not to interfere.
func TestConfig() server.Config {
	cfg := *server.NewConfig()
	cfg.StaticDir = ""
	cfg.KeepAlive = 0
	cfg.RateLimit.Burst = 10_000
	cfg.AllowedOrigins = []string{TestOrigin}
	return cfg
}

// StartRelay starts a relay behind an httptest.Server. The hub is shut down
// and the server closed when the test ends.
func StartRelay(t *testing.T, cfg server.Config) (*httptest.Server, *server.Hub) {
	t.Helper()

	hub := server.NewHub(cfg.Capacity, server.WithKeepAlive(cfg.KeepAlive))
	ts := httptest.NewServer(server.SetupRoutes(cfg, hub, logger.Discard()))
	t.Cleanup(func() {
		_ = hub.Shutdown(time.Second)
		ts.Close()
	})
	return ts, hub
}

// WaitForSubscribers waits until the hub reports n open streams.
func WaitForSubscribers(t *testing.T, hub *server.Hub, n int) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() != n {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %d subscribers, got %d", n, hub.Subscribers())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Publish posts a form-encoded message and returns the status code.
func Publish(t *testing.T, baseURL string, msg server.Message) int {
	t.Helper()

	form := url.Values{
		"room":     {msg.Room},
		"username": {msg.Username},
		"message":  {msg.Message},
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Post(baseURL+"/message", "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		t.Fatalf("Failed to publish: %v", err)
	}
	_ = resp.Body.Close()
	return resp.StatusCode
}

// AssertStatusCode checks if the HTTP response has the expected status code.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// EventStream is an open SSE subscription.
type EventStream struct {
	resp   *http.Response
	reader *bufio.Reader
	cancel context.CancelFunc
}

// OpenEventStream subscribes to /events and waits for the stream's opening
// comment, after which every published message is delivered.
func OpenEventStream(t *testing.T, baseURL string) *EventStream {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/events", http.NoBody)
	if err != nil {
		cancel()
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("Failed to open event stream: %v", err)
	}

	s := &EventStream{resp: resp, reader: bufio.NewReader(resp.Body), cancel: cancel}
	t.Cleanup(s.Close)

	frame, err := s.NextFrame()
	if err != nil {
		t.Fatalf("Failed to read opening frame: %v", err)
	}
	if frame != ": connected\n\n" {
		t.Fatalf("Unexpected opening frame %q", frame)
	}
	return s
}

// NextFrame reads one raw SSE frame including its terminating blank line.
func (s *EventStream) NextFrame() (string, error) {
	var b strings.Builder
	for {
		line, err := s.reader.ReadString('\n')
		b.WriteString(line)
		if err != nil {
			return b.String(), err
		}
		if line == "\n" {
			return b.String(), nil
		}
	}
}

// NextMessage skips comments and decodes the next data frame.
func (s *EventStream) NextMessage() (server.Message, error) {
	for {
		frame, err := s.NextFrame()
		if err != nil {
			return server.Message{}, err
		}
		if data, ok := strings.CutPrefix(frame, "data: "); ok {
			var msg server.Message
			err := json.Unmarshal([]byte(strings.TrimSuffix(data, "\n\n")), &msg)
			return msg, err
		}
	}
}

// Close disconnects the stream.
func (s *EventStream) Close() {
	s.cancel()
	_ = s.resp.Body.Close()
}

// ConnectWebSocket opens a WebSocket stream at baseURL with the test origin.
func ConnectWebSocket(t *testing.T, baseURL string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", TestOrigin)

	conn, resp, err := dialer.Dial("ws"+strings.TrimPrefix(baseURL, "http")+"/ws", headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to connect WebSocket: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// ReceiveMessage reads one relayed message from a WebSocket within timeout.
func ReceiveMessage(conn *websocket.Conn, timeout time.Duration) (server.Message, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return server.Message{}, err
	}
	var msg server.Message
	err := conn.ReadJSON(&msg)
	return msg, err
}

// NumberedMessage returns a message whose body identifies publisher and sequence.
func NumberedMessage(publisher, seq int) server.Message {
	return server.Message{
		Room:     "lobby",
		Username: fmt.Sprintf("user-%d", publisher),
		Message:  fmt.Sprintf("%d/%d", publisher, seq),
	}
}
