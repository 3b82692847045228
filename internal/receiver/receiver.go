// Package receiver implements the JOB-thread side of the worker's
// two-thread message loop (C9): it takes "eval" requests off the inproc
// jobs channel, drives the evaluator synchronously, and replies with
// "done". Grounded on original_source/src/commands/jobs_client_commands.h's
// process_eval, which is the direct C++ analogue of Run below.
package receiver

import (
	"context"
	"log/slog"

	"github.com/recodex/worker/internal/broker"
	"github.com/recodex/worker/internal/evaluator"
)

// Evaluator is the subset of *evaluator.Evaluator the receiver drives.
type Evaluator interface {
	Evaluate(ctx context.Context, req evaluator.Request) evaluator.Response
}

// Run evaluates jobs one at a time as they arrive on jobs, replying on
// done, until ctx is cancelled or jobs is closed. Only one job is ever in
// flight, matching spec.md's Non-goal of scheduling more than one
// concurrent evaluation per worker.
func Run(ctx context.Context, eval Evaluator, jobs <-chan broker.EvalMsg, done chan<- broker.DoneMsg, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-jobs:
			if !ok {
				return
			}
			logger.Info("receiver: evaluation request received", "job_id", ev.JobID)
			resp := eval.Evaluate(ctx, evaluator.Request{
				JobID:     ev.JobID,
				JobURL:    ev.JobURL,
				ResultURL: ev.ResultURL,
			})
			reply := broker.DoneMsg{JobID: resp.JobID, Result: string(resp.Result), Message: resp.Message}
			select {
			case done <- reply:
				logger.Info("receiver: evaluation finished", "job_id", ev.JobID, "result", resp.Result)
			case <-ctx.Done():
				return
			}
		}
	}
}
