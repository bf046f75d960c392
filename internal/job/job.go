// Package job implements the Task/Job sequencing the original entities
// describe (src/entities/job_config_entity.py): an MQTT-triggered sequence
// of timed output transitions, preemptible at any point by a newer job or by
// shutdown. The executor follows the teacher's own context-cancellation
// discipline for long-running work (services/hal/internal/core/loop.go's
// ctx-aware Run), generalized from "HAL tick" to "job step".
package job

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/errs"
)

// Task is a single timed transition: hold Value for DurationMs, optionally
// ramping to it (Transition) rather than snapping.
type Task struct {
	DurationMs uint32 `json:"durationMs"`
	Value      any    `json:"value"`
	Transition bool   `json:"transition"`
}

// Job is an ordered list of Tasks, delayed by OffsetMs before the first one
// starts.
type Job struct {
	Tasks    []Task `json:"tasks"`
	OffsetMs uint32 `json:"offsetMs"`
}

// Parse decodes a Job payload as published on a controller's job topic.
func Parse(data []byte) (Job, error) {
	var j Job
	if err := json.Unmarshal(data, &j); err != nil {
		return j, errs.ConfigInvalid("job: " + err.Error())
	}
	return j, nil
}

// Apply is invoked once per Task, in order, with the preceding wait already
// elapsed. A non-nil error aborts the remaining tasks.
type Apply func(ctx context.Context, t Task) error

// Run executes j's tasks in order, honoring OffsetMs before the first task
// and DurationMs between each task and the next. It returns early, with no
// error, if ctx is canceled — preemption (a newer job superseding this one,
// or process shutdown) is not a failure.
//
// A zero-task Job completes immediately after its offset delay.
func Run(ctx context.Context, j Job, apply Apply) error {
	if !sleep(ctx, time.Duration(j.OffsetMs)*time.Millisecond) {
		return nil
	}
	for _, t := range j.Tasks {
		if err := apply(ctx, t); err != nil {
			return err
		}
		if !sleep(ctx, time.Duration(t.DurationMs)*time.Millisecond) {
			return nil
		}
	}
	return nil
}

// sleep waits for d or ctx cancellation, reporting whether it completed the
// full duration (false means ctx was canceled first).
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-ctx.Done():
			return false
		default:
			return true
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
