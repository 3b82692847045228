// Package progress implements the evaluator-facing progress emitter
// (C10): one-way, advisory lifecycle events forwarded from the JOB thread
// to the BROKER thread's outgoing channel. Grounded on
// original_source/src/job/progress_callback.cpp, whose every method is a
// "no throw" wrapper around a fire-and-forget socket send — the same
// contract Emitter implements here with a non-blocking channel send.
package progress

import (
	"log/slog"

	"github.com/recodex/worker/internal/broker"
	"github.com/recodex/worker/internal/job"
)

// Emitter satisfies evaluator.ProgressSink, translating job lifecycle
// notifications into broker.ProgressMsg frames.
type Emitter struct {
	ch     chan<- broker.ProgressMsg
	logger *slog.Logger
}

// New returns an Emitter that sends progress frames on ch, a channel
// shared with the broker connection's Run loop.
func New(ch chan<- broker.ProgressMsg, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{ch: ch, logger: logger}
}

// send is never allowed to block the evaluator: a full channel means the
// broker thread cannot keep up, which is logged and dropped rather than
// escalated, matching progress_callback.cpp's catch(...) { warn } pattern.
func (e *Emitter) send(jobID string, frames ...string) {
	msg := broker.ProgressMsg{Frames: append([]string{"progress", jobID}, frames...)}
	select {
	case e.ch <- msg:
	default:
		e.logger.Warn("progress: event dropped, broker channel full", "job_id", jobID, "frames", frames)
	}
}

func (e *Emitter) JobArchiveDownloaded(jobID string) { e.send(jobID, "DOWNLOADED") }
func (e *Emitter) JobBuildFailed(jobID string)       { e.send(jobID, "BUILD_FAILED") }
func (e *Emitter) JobResultsUploaded(jobID string)   { e.send(jobID, "UPLOADED") }
func (e *Emitter) JobFinished(jobID string)          { e.send(jobID, "ENDED") }
func (e *Emitter) JobAborted(jobID string)           { e.send(jobID, "ABORTED") }

// JobEvent maps internal/job's lifecycle events onto the same wire
// vocabulary progress_callback.cpp uses for job- and task-level states.
func (e *Emitter) JobEvent(jobID string, ev job.Event) {
	switch ev.Name {
	case "job_started":
		e.send(jobID, "STARTED")
	case "job_ended":
		e.send(jobID, "ENDED")
	case "task_completed":
		e.send(jobID, "TASK", ev.TaskID, "COMPLETED")
	case "task_failed":
		e.send(jobID, "TASK", ev.TaskID, "FAILED")
	case "task_skipped":
		e.send(jobID, "TASK", ev.TaskID, "SKIPPED")
	default:
		e.send(jobID, ev.Name)
	}
}
