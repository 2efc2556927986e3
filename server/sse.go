package server

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// sseWriter streams server-sent events over an HTTP response. Each event is
// flushed immediately so tokens reach the client as they are produced.
type sseWriter struct {
	response http.ResponseWriter
	flusher  http.Flusher
}

// newSSEWriter prepares the response for event streaming. Returns an error
// when the underlying writer cannot flush (no streaming support).
func newSSEWriter(response http.ResponseWriter) (*sseWriter, error) {
	flusher, supported := response.(http.Flusher)
	if !supported {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	header := response.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	response.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{response: response, flusher: flusher}, nil
}

// send writes one named event with a JSON payload and flushes it.
func (writer *sseWriter) send(eventName string, payload any) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(writer.response, "event: %s\ndata: %s\n\n", eventName, encoded); err != nil {
		return err
	}
	writer.flusher.Flush()
	return nil
}
