package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// sseSink writes messages as Server-Sent Events.
type sseSink struct {
	w       io.Writer
	flusher http.Flusher
}

func (s *sseSink) Send(msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

func (s *sseSink) Open() error {
	return s.comment("connected")
}

func (s *sseSink) Ping() error {
	return s.comment("keepalive")
}

func (s *sseSink) comment(text string) error {
	if _, err := fmt.Fprintf(s.w, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
