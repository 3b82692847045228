// Package tasks implements the worker's task catalog (C5): the fixed set of
// internal file operations, and the sandboxed-task wrapper that merges
// limits, substitutes variables, runs the opaque sandbox executor and maps
// its verdict back to a TaskResults. Grounded on
// original_source/src/tasks/{job_tasks,external_task,internal/*}.cpp.
package tasks

import (
	"context"

	"github.com/recodex/worker/internal/config"
	"github.com/recodex/worker/internal/sandbox"
)

// Status is a task's outcome classification.
type Status string

const (
	StatusOK      Status = "OK"
	StatusFailed  Status = "FAILED"
	StatusSkipped Status = "SKIPPED"
)

// Results is the outcome of running one task.
type Results struct {
	Status       Status
	ErrorMessage string
	Stdout       string
	Stderr       string
	Sandbox      *sandbox.Results
}

// Env carries everything a task implementation needs beyond its own
// metadata: substitution variables, directory roots, the worker's default
// sandbox limits and the sandbox executor itself.
type Env struct {
	Vars            Vars
	HWGroup         string
	DefaultLimits   config.SandboxLimits
	MaxOutputLength int
	MaxCarboncopyLength int
	Executor        sandbox.Executor
	NextBoxID       func() int
	Fetch           func(ctx context.Context, logicalName string, dst string) error
}

// Task is one node of a job's task sequence, ready to run.
type Task interface {
	// ID is the task's identifier, used for logging and result reporting.
	ID() string
	// Type reports the task's role, used by the job runtime to decide
	// whether a failure must escalate to Unrecoverable.
	Type() config.TaskType
	// FatalFailure reports whether a non-OK result should halt the job.
	FatalFailure() bool
	// Run executes the task and returns its result. A non-nil error means
	// the worker itself failed (I/O, programming error), not the
	// submission under test; INNER tasks propagate such errors as
	// Unrecoverable, per internal/job's escalation rule.
	Run(ctx context.Context, env *Env) (Results, error)
}

// baseTask factors the metadata every Task implementation shares.
type baseTask struct {
	meta config.TaskMetadata
}

func (b baseTask) ID() string               { return b.meta.TaskID }
func (b baseTask) Type() config.TaskType     { return b.meta.Type }
func (b baseTask) FatalFailure() bool        { return b.meta.FatalFailure }
