package engine

import (
	"time"
	"unicode/utf8"
)

// EventType represents the type of engine event.
type EventType string

const (
	// EventNodeStarted indicates an agent began its decision call.
	EventNodeStarted EventType = "node_started"
	// EventNodeCompleted indicates an agent has its final response.
	EventNodeCompleted EventType = "node_completed"
	// EventQuantumRunStarted indicates one independent run began.
	EventQuantumRunStarted EventType = "quantum_run_started"
	// EventQuantumRunCompleted indicates one independent run finished.
	EventQuantumRunCompleted EventType = "quantum_run_completed"
)

// maxEventResponse is the number of characters of a response carried by a
// completed event.
const maxEventResponse = 200

// Event is a live progress notification.
type Event struct {
	Type EventType `json:"type"`
	// Run is the zero-based quantum run index. Always 0 without quantum mode.
	Run      int    `json:"run"`
	Layer    int    `json:"layer"`
	Position int    `json:"position"`
	Path     []int  `json:"path"`
	Task     string `json:"task,omitempty"`
	Focus    string `json:"focus,omitempty"`
	// Response is the truncated final response of completed nodes and runs.
	Response  string `json:"response,omitempty"`
	Delegated bool   `json:"delegated,omitempty"`
	// Executed and TotalPossible are the run's progress when emitted.
	Executed      int       `json:"executed"`
	TotalPossible int       `json:"total_possible"`
	Timestamp     time.Time `json:"timestamp"`
}

// EventHandler receives live events. It is called from the executing
// goroutines and must not block for long.
type EventHandler func(Event)

// Fanout returns a handler that calls every non-nil handler in order.
func Fanout(handlers ...EventHandler) EventHandler {
	var hs []EventHandler
	for _, h := range handlers {
		if h != nil {
			hs = append(hs, h)
		}
	}
	switch len(hs) {
	case 0:
		return nil
	case 1:
		return hs[0]
	}
	return func(e Event) {
		for _, h := range hs {
			h(e)
		}
	}
}

// truncate shortens s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
