// Package logring keeps a bounded ring of recent log lines so the engine can
// expose them through its state snapshot.
package logring

import (
	"strings"
	"sync"
)

// Ring is an io.Writer that retains the last N complete lines. Safe for
// concurrent use; zerolog writes whole events per Write call.
type Ring struct {
	mu    sync.Mutex
	lines []string
	max   int
}

func New(max int) *Ring {
	if max <= 0 {
		max = 200
	}
	return &Ring{max: max}
}

func (r *Ring) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	if line == "" {
		return len(p), nil
	}
	r.mu.Lock()
	r.lines = append(r.lines, line)
	if len(r.lines) > r.max {
		r.lines = r.lines[len(r.lines)-r.max:]
	}
	r.mu.Unlock()
	return len(p), nil
}

// Lines returns a copy of the retained lines, oldest first.
func (r *Ring) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.lines))
	copy(out, r.lines)
	return out
}
