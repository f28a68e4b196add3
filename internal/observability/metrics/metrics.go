// Package metrics names the metrics healwright emits and the tags they carry.
package metrics

import (
	"maps"
	"time"

	obserrors "github.com/target/healwright/internal/observability/errors"
	"github.com/target/healwright/internal/observability/statsd"
)

// Result constants for metric tagging.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultNoop    = "noop"
)

// Job transitions.
const (
	TransitionEnqueued  = "enqueued"
	TransitionClaimed   = "claimed"
	TransitionCompleted = "completed"
	TransitionRetried   = "retried"
	TransitionFailed    = "failed"
	TransitionCancelled = "cancelled"
)

// JobMetric captures details about a job lifecycle event for metric emission.
type JobMetric struct {
	Transition string
	Result     string
	Duration   time.Duration
	Err        error
}

// EmitJobLifecycle emits job.transition and, when a duration is known, job.duration.
func EmitJobLifecycle(sink statsd.Sink, in JobMetric) {
	if sink == nil {
		return
	}

	tags := map[string]string{
		"transition": in.Transition,
		"result":     in.Result,
	}
	if in.Err != nil && in.Result == ResultError {
		if class := obserrors.Classify(in.Err); class != "" {
			tags["error_class"] = class
		}
	}

	sink.Count("job.transition", 1, tags)
	if in.Duration > 0 {
		sink.Timing("job.duration", in.Duration, CloneTags(tags))
	}
}

// EmitHealingDecision counts one gated finding.
func EmitHealingDecision(sink statsd.Sink, decision, source string) {
	if sink == nil {
		return
	}
	sink.Count("healing.decision", 1, map[string]string{"decision": decision, "source": source})
}

// EmitPublish counts one publish attempt. reason is the short-circuit reason when nothing was opened.
func EmitPublish(sink statsd.Sink, opened bool, reason string, d time.Duration) {
	if sink == nil {
		return
	}
	tags := map[string]string{"result": ResultSuccess}
	if !opened {
		tags["result"] = ResultNoop
		tags["reason"] = reason
	}
	sink.Count("publish.attempt", 1, tags)
	if d > 0 {
		sink.Timing("publish.duration", d, CloneTags(tags))
	}
}

// CleanupMetric describes one reaper step.
type CleanupMetric struct {
	Step     string
	Count    int64
	Duration time.Duration
	Err      error
}

// EmitCleanup emits reaper.cleanup counters, timings and the affected row count.
func EmitCleanup(sink statsd.Sink, in CleanupMetric) {
	if sink == nil {
		return
	}
	result := ResultSuccess
	switch {
	case in.Err != nil:
		result = ResultError
	case in.Count == 0:
		result = ResultNoop
	}
	tags := map[string]string{"step": in.Step, "result": result}
	if in.Err != nil {
		tags["error_class"] = obserrors.Classify(in.Err)
	}
	sink.Count("reaper.cleanup", 1, tags)
	sink.Timing("reaper.duration", in.Duration, CloneTags(tags))
	if in.Err == nil {
		sink.Gauge("reaper.rows", float64(in.Count), map[string]string{"step": in.Step})
	}
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	return maps.Clone(src)
}
