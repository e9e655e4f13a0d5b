package platform

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	DefaultWaitTimeout = 180 * time.Second
	DefaultRetryDelay  = time.Second
)

// ErrTaskTimeout is returned by Wait when a task is still running after the
// maximum wait.
var ErrTaskTimeout = errors.New("platform: task wait timeout")

// TaskFailedError reports a task that finished in the failed state.
type TaskFailedError struct {
	TaskID        string
	StatusMessage string
}

func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.StatusMessage)
}

type WaitOptions struct {
	MaxTimeout time.Duration
	RetryDelay time.Duration
}

func (o WaitOptions) withDefaults() WaitOptions {
	if o.MaxTimeout <= 0 {
		o.MaxTimeout = DefaultWaitTimeout
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	return o
}

// TaskStatus fetches the current state of a task.
func (c *Client) TaskStatus(ctx context.Context, id string) (*Task, error) {
	task, err := c.callTask(ctx, "task/status", map[string]any{"taskId": id})
	if err != nil {
		return nil, fmt.Errorf("task status %s: %w", id, err)
	}
	return task, nil
}

// Wait polls task until it succeeds or fails. The last observed task is always
// returned, also alongside an error.
func (c *Client) Wait(ctx context.Context, task *Task, opts WaitOptions) (*Task, error) {
	opts = opts.withDefaults()
	deadline := time.Now().Add(opts.MaxTimeout)
	current := task
	for {
		switch current.State {
		case TaskSucceeded:
			return current, nil
		case TaskFailed:
			return current, &TaskFailedError{TaskID: current.ID, StatusMessage: current.StatusMessage}
		}
		if !time.Now().Before(deadline) {
			return current, fmt.Errorf("%w: task %s still %s after %s", ErrTaskTimeout, current.ID, current.State, opts.MaxTimeout)
		}

		timer := time.NewTimer(opts.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return current, ctx.Err()
		case <-timer.C:
		}

		next, err := c.TaskStatus(ctx, current.ID)
		if err != nil {
			return current, err
		}
		current = next
	}
}
