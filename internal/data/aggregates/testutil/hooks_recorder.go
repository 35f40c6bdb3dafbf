package testutil

import (
	"sync"

	"github.com/yungbote/beliefpath-sync/internal/data/aggregates"
	domainagg "github.com/yungbote/beliefpath-sync/internal/domain/aggregates"
)

// HooksRecorder keeps every aggregate hook event for assertions.
type HooksRecorder struct {
	mu       sync.Mutex
	Failures []aggregates.AttemptEvent
	Writes   []aggregates.WriteEvent
}

var _ aggregates.Hooks = (*HooksRecorder)(nil)

func (h *HooksRecorder) AttemptFailed(e aggregates.AttemptEvent) {
	h.mu.Lock()
	h.Failures = append(h.Failures, e)
	h.mu.Unlock()
}

func (h *HooksRecorder) Finished(e aggregates.WriteEvent) {
	h.mu.Lock()
	h.Writes = append(h.Writes, e)
	h.mu.Unlock()
}

// Retries counts failed attempts that were followed by another attempt.
func (h *HooksRecorder) Retries() int {
	return h.count(func(e aggregates.AttemptEvent) bool { return e.Retrying })
}

func (h *HooksRecorder) Conflicts() int {
	return h.count(func(e aggregates.AttemptEvent) bool { return e.Code == domainagg.CodeConflict })
}

func (h *HooksRecorder) count(match func(aggregates.AttemptEvent) bool) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.Failures {
		if match(e) {
			n++
		}
	}
	return n
}
