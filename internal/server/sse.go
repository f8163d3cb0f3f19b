package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrStreamStarted is returned by NewSSESink when the status line has been
// written but the stream could not be flushed.
var ErrStreamStarted = errors.New("event stream started")

// SSESink writes frames as server-sent events: "data: <json>\n\n".
type SSESink struct {
	w  http.ResponseWriter
	rc *http.ResponseController
}

// NewSSESink writes the event-stream headers and flushes them.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	rc := http.NewResponseController(w)
	// streams outlive the server write timeout
	if err := rc.SetWriteDeadline(time.Time{}); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return nil, fmt.Errorf("clear write deadline: %w", err)
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := rc.Flush(); err != nil {
		return nil, fmt.Errorf("%w: flush: %w", ErrStreamStarted, err)
	}

	return &SSESink{w: w, rc: rc}, nil
}

func (s *SSESink) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", b); err != nil {
		return err
	}

	return s.rc.Flush()
}
