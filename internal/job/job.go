// Package job implements the per-submission task runtime (C6): it walks the
// priority topological order internal/dag produces, builds and runs each
// internal/tasks.Task, and applies the skip/fatal/unrecoverable escalation
// rules a job run must follow. Grounded on original_source/src/job/job.cpp's
// run() loop and its interplay with task_base::executable.
package job

import (
	"context"
	"fmt"

	"github.com/recodex/worker/internal/config"
	"github.com/recodex/worker/internal/dag"
	"github.com/recodex/worker/internal/tasks"
)

// UnrecoverableError wraps the failure of an INNER (internal) task, whether
// it came back as a Go error or as a non-OK Results.Status. Either path
// means the worker itself malfunctioned while handling the submission — not
// that the submission failed — so it is never turned into a FAILED task
// result; it always escalates out of Run to the evaluator.
type UnrecoverableError struct {
	TaskID string
	Err    error
}

func (e *UnrecoverableError) Error() string {
	return fmt.Sprintf("job: task %s: unrecoverable: %v", e.TaskID, e.Err)
}

func (e *UnrecoverableError) Unwrap() error { return e.Err }

// Event is one progress notification emitted while a job runs.
type Event struct {
	Name    string
	TaskID  string
	Message string
}

// Outcome pairs a task id with the result it produced.
type Outcome struct {
	TaskID string
	Result tasks.Results
}

// Job is one submission's ordered, buildable task sequence.
type Job struct {
	graph *dag.Graph
	order []int
	tasks []tasks.Task
}

// Build constructs every task.Task for meta's task list and computes the
// priority topological order that Run will follow.
func Build(meta []config.TaskMetadata) (*Job, error) {
	graph, err := dag.Build(meta)
	if err != nil {
		return nil, err
	}
	order, err := graph.Order()
	if err != nil {
		return nil, err
	}
	built := make([]tasks.Task, len(meta))
	for i, m := range meta {
		t, err := tasks.Build(m)
		if err != nil {
			return nil, err
		}
		built[i] = t
	}
	return &Job{graph: graph, order: order, tasks: built}, nil
}

// Run executes the job's tasks in order, emitting progress events through
// emit (may be nil). It returns every outcome recorded before the loop
// stopped — whether by reaching the end, a fatal failure, or an
// UnrecoverableError — paired with that error, if any.
//
// Escalation rules, in order of precedence:
//   - A task already marked non-executable (by a prior skip or non-fatal
//     failure cascading from an ancestor) is recorded SKIPPED without being
//     run, and its own descendants are marked non-executable in turn.
//   - A Go error or a FAILED Results.Status from an INNER task is
//     unrecoverable: it is never turned into a task result, and Run
//     returns immediately with an UnrecoverableError.
//   - A Go error from any other task, or a FAILED Results.Status, is a task
//     failure: task_failed is emitted, and if the task is marked
//     fatal-failure the whole loop stops; otherwise only that task's
//     descendants are marked non-executable and the loop continues.
func (j *Job) Run(ctx context.Context, env *tasks.Env, emit func(Event)) ([]Outcome, error) {
	if emit == nil {
		emit = func(Event) {}
	}

	executable := make([]bool, len(j.tasks))
	for i := range executable {
		executable[i] = true
	}

	emit(Event{Name: "job_started"})

	var outcomes []Outcome
	for _, idx := range j.order {
		id := j.graph.TaskID(idx)

		if !executable[idx] {
			outcomes = append(outcomes, Outcome{TaskID: id, Result: tasks.Results{Status: tasks.StatusSkipped}})
			j.markNonExecutable(idx, executable)
			emit(Event{Name: "task_skipped", TaskID: id})
			continue
		}

		t := j.tasks[idx]
		res, err := t.Run(ctx, env)
		if t.Type() == config.TaskInner {
			if err != nil {
				emit(Event{Name: "job_ended"})
				return outcomes, &UnrecoverableError{TaskID: id, Err: err}
			}
			if res.Status == tasks.StatusFailed {
				emit(Event{Name: "job_ended"})
				return outcomes, &UnrecoverableError{TaskID: id, Err: fmt.Errorf("%s", res.ErrorMessage)}
			}
		} else if err != nil {
			res = tasks.Results{Status: tasks.StatusFailed, ErrorMessage: err.Error()}
		}

		outcomes = append(outcomes, Outcome{TaskID: id, Result: res})

		if res.Status == tasks.StatusFailed {
			emit(Event{Name: "task_failed", TaskID: id, Message: res.ErrorMessage})
			if t.FatalFailure() {
				break
			}
			j.markNonExecutable(idx, executable)
			continue
		}

		emit(Event{Name: "task_completed", TaskID: id})
	}

	emit(Event{Name: "job_ended"})
	return outcomes, nil
}

func (j *Job) markNonExecutable(idx int, executable []bool) {
	for _, d := range j.graph.Descendants(idx) {
		executable[d] = false
	}
}
