package hal

import (
	"context"
	"sync"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/job"
)

// JobRunner serializes a controller module's MQTT-triggered jobs: starting
// a new job cancels whatever job is already running, mirroring the
// original's threading.Event "stopper" that boolean_control_module.py and
// friends pass into every job handler. Embed one in a device's struct.
type JobRunner struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	gen    uint64
	wg     sync.WaitGroup
}

// Start cancels any job already running and launches apply against j in a
// new goroutine, under a context derived from parent. If onDone is non-nil
// it runs after the job finishes (whether it ran to completion or was
// canceled) as long as no newer Start has superseded it in the meantime —
// this is what lets a device restore its controller default once after a
// job, without racing a job that preempted it first.
func (r *JobRunner) Start(parent context.Context, j job.Job, apply job.Apply, onDone func()) {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.gen++
	gen := r.gen
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.wg.Done()
		_ = job.Run(ctx, j, apply)
		r.mu.Lock()
		current := r.gen == gen
		r.mu.Unlock()
		if current && onDone != nil {
			onDone()
		}
	}()
}

// Stop cancels the running job, if any, and waits for its goroutine to
// return before returning itself, so a caller tearing down hardware can
// safely release pins right after Stop.
func (r *JobRunner) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.gen++
	r.mu.Unlock()
	r.wg.Wait()
}
