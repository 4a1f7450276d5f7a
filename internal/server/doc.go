// Package server implements the HTTP side of the relay.
//
// Publishers POST messages to /message; the Hub appends them to a single
// broadcast channel, and every open /events (SSE) or /ws (WebSocket) stream
// receives its own copy. The implementation is organized into specialized
// files for configuration, the hub, stream transports, routing, and HTTP
// handlers.
package server
