package aggregates

import (
	"time"

	domainagg "github.com/yungbote/beliefpath-sync/internal/domain/aggregates"
	"github.com/yungbote/beliefpath-sync/internal/observability"
)

// AttemptEvent describes one failed attempt of an aggregate write.
type AttemptEvent struct {
	Op       string
	Attempt  int
	Code     domainagg.Code
	Retrying bool
}

// WriteEvent describes a finished ExecuteWrite call.
type WriteEvent struct {
	Op       string
	Attempts int
	Status   string
	Duration time.Duration
}

// Hooks observe ExecuteWrite. AttemptFailed fires once per failed attempt and
// Finished once per call, after the last attempt.
type Hooks interface {
	AttemptFailed(e AttemptEvent)
	Finished(e WriteEvent)
}

type noopHooks struct{}

func (noopHooks) AttemptFailed(AttemptEvent) {}
func (noopHooks) Finished(WriteEvent)        {}

type metricsHooks struct {
	metrics *observability.Metrics
}

// NewObservabilityHooks reports aggregate writes as prometheus series.
func NewObservabilityHooks(metrics *observability.Metrics) Hooks {
	if metrics == nil {
		return noopHooks{}
	}
	return metricsHooks{metrics: metrics}
}

func (h metricsHooks) AttemptFailed(e AttemptEvent) {
	if e.Code == domainagg.CodeConflict {
		h.metrics.IncAggregateConflict(e.Op)
	}
	if e.Retrying {
		h.metrics.IncAggregateRetry(e.Op)
	}
}

func (h metricsHooks) Finished(e WriteEvent) {
	h.metrics.ObserveAggregateOperation(e.Op, e.Status, e.Duration)
}
