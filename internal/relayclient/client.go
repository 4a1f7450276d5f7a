// Package relayclient is a small Go client for the relay's HTTP API: it
// publishes messages and consumes the Server-Sent Events stream.
package relayclient

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Message mirrors the relay's wire format.
type Message struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Message  string `json:"message"`
}

// StatusError is returned when the relay answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("relay: unexpected status %d", e.Code)
	}
	return fmt.Sprintf("relay: unexpected status %d: %s", e.Code, e.Body)
}

// ErrStreamEnded is sent on the error channel when the server closes the
// event stream.
var ErrStreamEnded = errors.New("relay: event stream ended")

// Client talks to one relay server.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New returns a Client for baseURL using http.DefaultClient.
func New(baseURL string) *Client {
	return &Client{BaseURL: strings.TrimRight(baseURL, "/")}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

// Publish posts msg as a form-encoded body.
func (c *Client) Publish(ctx context.Context, msg Message) error {
	form := url.Values{
		"room":     {msg.Room},
		"username": {msg.Username},
		"message":  {msg.Message},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/message", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Subscribe opens the event stream. Messages arrive on the first channel;
// the second receives at most one error (ErrStreamEnded on a clean close)
// and both are closed when the stream stops. Cancel ctx to disconnect.
func (c *Client) Subscribe(ctx context.Context) (<-chan Message, <-chan error, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/events", http.NoBody)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	msgs := make(chan Message, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(errs)
		defer close(msgs)
		defer resp.Body.Close()

		err := readEvents(resp.Body, func(data string) error {
			var m Message
			if err := json.Unmarshal([]byte(data), &m); err != nil {
				return fmt.Errorf("relay: decode event: %w", err)
			}
			select {
			case msgs <- m:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err == nil {
			err = ErrStreamEnded
		}
		if ctx.Err() == nil {
			errs <- err
		}
	}()

	return msgs, errs, nil
}

// readEvents parses an SSE stream and calls fn with the data of each event.
// Comment lines and fields other than data are ignored.
func readEvents(r io.Reader, fn func(data string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "":
			if len(data) == 0 {
				continue
			}
			payload := strings.Join(data, "\n")
			data = data[:0]
			if err := fn(payload); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}
