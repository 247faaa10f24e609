package server

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/joseph-ayodele/label-checker/internal/jobs"
)

// eventWriter renders job events as server-sent events. Headers are written
// on the first event so setup failures can still be reported as JSON errors.
type eventWriter struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
}

func newEventWriter(w http.ResponseWriter) *eventWriter {
	return &eventWriter{w: w, rc: http.NewResponseController(w)}
}

// Write is a jobs.EmitFunc.
func (e *eventWriter) Write(ev jobs.Event) error {
	if !e.started {
		h := e.w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no")
		e.w.WriteHeader(http.StatusOK)
		e.started = true
	}

	var err error
	switch ev := ev.(type) {
	case jobs.MetaEvent:
		err = e.event("meta", ev)
	case jobs.ResultEvent:
		err = e.event("result", ev.ItemResult)
	case jobs.ErrorEvent:
		err = e.event("error", ev.ItemError)
	case jobs.HeartbeatEvent:
		_, err = fmt.Fprint(e.w, ": heartbeat\n\n")
	case jobs.DoneEvent:
		err = e.event("done", ev)
	default:
		return fmt.Errorf("unknown stream event %T", ev)
	}
	if err != nil {
		return err
	}
	return e.rc.Flush()
}

func (e *eventWriter) event(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", name, err)
	}
	_, err = fmt.Fprintf(e.w, "event: %s\ndata: %s\n\n", name, data)
	return err
}
