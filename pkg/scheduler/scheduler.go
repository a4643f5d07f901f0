// Package scheduler runs a task once, after a delay. The controller uses it
// for the override expiry timer and the auto-trigger timer: both hold at
// most one pending job, and arming a new one cancels the previous job
// first.
package scheduler

import (
	"context"
	"sync"
	"time"
)

type Task interface {
	Run(ctx context.Context) error
}

// TaskFunc adapts a plain function to the Task interface.
type TaskFunc func(ctx context.Context) error

func (f TaskFunc) Run(ctx context.Context) error { return f(ctx) }

// Schedule runs task after delay, unless the job is canceled first.
func Schedule(ctx context.Context, task Task, delay time.Duration) *Job {
	jobCtx, cancel := context.WithCancel(ctx)
	j := &Job{
		task:   task,
		due:    time.Now().Add(delay),
		cancel: cancel,
	}
	go j.run(jobCtx, delay)
	return j
}

type Job struct {
	task   Task
	due    time.Time
	cancel context.CancelFunc
	state  state
	err    error
	lock   sync.RWMutex
}

func (j *Job) run(ctx context.Context, delay time.Duration) {
	j.setState(stateScheduled, nil)
	select {
	case <-ctx.Done():
	case <-time.After(delay):
		err := j.task.Run(ctx)
		s := stateCompleted
		if err != nil {
			s = stateFailed
		}
		j.setState(s, err)
	}
}

// Due returns the time the job is set to fire.
func (j *Job) Due() time.Time {
	return j.due
}

// Cancel stops the job. Canceling a completed job is a no-op.
func (j *Job) Cancel() {
	j.lock.Lock()
	defer j.lock.Unlock()
	j.cancel()
	if !j.state.done() {
		j.state = stateCanceled
	}
}

// Result reports whether the job has finished and, if it ran, its error.
func (j *Job) Result() (bool, error) {
	j.lock.RLock()
	defer j.lock.RUnlock()
	if !j.state.done() {
		return false, nil
	}
	if j.state == stateCanceled {
		return true, ErrCanceled
	}
	return true, j.err
}

func (j *Job) setState(s state, err error) {
	j.lock.Lock()
	defer j.lock.Unlock()
	if j.state.done() {
		return
	}
	j.state = s
	j.err = err
}

type state int

const (
	stateUnknown state = iota
	stateScheduled
	stateCanceled
	stateCompleted
	stateFailed
)

func (s state) done() bool {
	return s == stateCompleted || s == stateFailed || s == stateCanceled
}
