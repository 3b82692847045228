// Package evaluator drives one submission through its full lifecycle
// (C7): download the job archive, unpack it, build the task DAG, run it,
// write and upload a results archive. Grounded on
// original_source/src/job/job_evaluator.cpp's evaluate()/prepare_evaluator()
// state machine.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"

	"gopkg.in/yaml.v3"

	"github.com/recodex/worker/internal/config"
	"github.com/recodex/worker/internal/dag"
	"github.com/recodex/worker/internal/fetcher"
	"github.com/recodex/worker/internal/job"
	"github.com/recodex/worker/internal/otelinit"
	"github.com/recodex/worker/internal/sandbox"
	"github.com/recodex/worker/internal/tasks"
)

// ReportClass is the classification returned to the broker in a "done"
// message.
type ReportClass string

const (
	ReportOK             ReportClass = "OK"
	ReportFailed         ReportClass = "FAILED"
	ReportInternalError  ReportClass = "INTERNAL_ERROR"
)

// Request is the "eval" command payload handed to the evaluator.
type Request struct {
	JobID     string
	JobURL    string
	ResultURL string
}

// Response is sent back to the broker as the "done" command payload.
type Response struct {
	JobID   string
	Result  ReportClass
	Message string
}

// kind distinguishes the two ways a pipeline step can fail: a transient,
// worker-local problem the broker may retry elsewhere (the default), or an
// unrecoverable one (bad submission/config, job_id mismatch, an INNER task
// failing) that the broker must not reassign.
type kind int

const (
	kindTransient kind = iota
	kindUnrecoverable
)

type classifiedError struct {
	kind kind
	err  error
}

func (c *classifiedError) Error() string { return c.err.Error() }
func (c *classifiedError) Unwrap() error { return c.err }

func unrecoverable(format string, args ...any) error {
	return &classifiedError{kind: kindUnrecoverable, err: fmt.Errorf(format, args...)}
}

// ProgressSink receives advisory lifecycle notifications. Implementations
// must never block the evaluator or return an error — a send failure is
// the sink's own problem to log and swallow (C10).
type ProgressSink interface {
	JobArchiveDownloaded(jobID string)
	JobBuildFailed(jobID string)
	JobEvent(jobID string, ev job.Event)
	JobResultsUploaded(jobID string)
	JobFinished(jobID string)
	JobAborted(jobID string)
}

type noopProgress struct{}

func (noopProgress) JobArchiveDownloaded(string)          {}
func (noopProgress) JobBuildFailed(string)                {}
func (noopProgress) JobEvent(string, job.Event)           {}
func (noopProgress) JobResultsUploaded(string)            {}
func (noopProgress) JobFinished(string)                   {}
func (noopProgress) JobAborted(string)                    {}

// Evaluator holds everything shared across job runs: worker identity,
// default limits, the fetcher, sandbox executor and progress sink.
type Evaluator struct {
	WorkerID            int
	HWGroup             string
	WorkingDir          string
	DefaultLimits       config.SandboxLimits
	MaxOutputLength     int
	MaxCarboncopyLength int
	CleanupSubmission   bool

	Fetcher  *fetcher.Fetcher
	Executor sandbox.Executor
	Logger   *slog.Logger
	Progress ProgressSink

	boxCounter atomic.Int32
}

// New builds an Evaluator from a loaded worker config.
func New(cfg *config.WorkerConfig, f *fetcher.Fetcher, exec sandbox.Executor, logger *slog.Logger, progress ProgressSink) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}
	if progress == nil {
		progress = noopProgress{}
	}
	return &Evaluator{
		WorkerID:            cfg.WorkerID,
		HWGroup:             cfg.HWGroup,
		WorkingDir:          cfg.WorkingDirectory,
		DefaultLimits:       cfg.Limits,
		MaxOutputLength:     cfg.MaxOutputLength,
		MaxCarboncopyLength: cfg.MaxCarboncopyLength,
		CleanupSubmission:   cfg.CleanupSubmission,
		Fetcher:             f,
		Executor:            exec,
		Logger:              logger,
		Progress:            progress,
	}
}

// paths collects the four job-scoped directories under working_dir, plus
// the archive file path once downloadSubmission learns its name.
type paths struct {
	archiveDir  string
	archiveFile string
	sourceDir   string
	tempDir     string
	resultsDir  string
}

func (e *Evaluator) paths(jobID string) paths {
	worker := strconv.Itoa(e.WorkerID)
	return paths{
		archiveDir: filepath.Join(e.WorkingDir, "downloads", worker, jobID),
		sourceDir:  filepath.Join(e.WorkingDir, "eval", worker, jobID),
		tempDir:    filepath.Join(e.WorkingDir, "temp", worker, jobID),
		resultsDir: filepath.Join(e.WorkingDir, "results", worker, jobID),
	}
}

// cleanupSubmission removes the job's four working directories if present,
// logging (not failing) on any individual removal error.
func (e *Evaluator) cleanupSubmission(p paths) {
	for _, dir := range []string{p.sourceDir, p.archiveDir, p.tempDir, p.resultsDir} {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := os.RemoveAll(dir); err != nil {
			e.Logger.Warn("directory not cleaned up properly", "dir", dir, "error", err)
		}
	}
}

// Prepare cleans up any stale directories left behind by a previous,
// possibly crashed, run for this job id — run unconditionally before every
// job, independent of CleanupSubmission (which only governs cleanup
// *after* this run).
func (e *Evaluator) Prepare(jobID string) {
	e.cleanupSubmission(e.paths(jobID))
}

// Evaluate runs one submission through the full pipeline and returns the
// broker-facing report. It never panics or returns a Go error itself —
// every failure is captured into the Response.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) Response {
	ctx, span := otelinit.WithSpan(ctx, "evaluator.evaluate")
	defer span()

	e.Logger.Info("request for job evaluation arrived", "job_id", req.JobID)
	e.Prepare(req.JobID)

	p := e.paths(req.JobID)
	resp := Response{JobID: req.JobID, Result: ReportOK}

	if err := e.pipeline(ctx, req, &p); err != nil {
		var ce *classifiedError
		var unrec *job.UnrecoverableError
		switch {
		case errors.As(err, &unrec):
			e.Logger.Error("job evaluator encountered unrecoverable error", "job_id", req.JobID, "error", err)
			e.Progress.JobBuildFailed(req.JobID)
			resp.Result, resp.Message = ReportFailed, err.Error()
		case errors.As(err, &ce) && ce.kind == kindUnrecoverable:
			e.Logger.Error("job evaluator encountered unrecoverable error", "job_id", req.JobID, "error", err)
			e.Progress.JobBuildFailed(req.JobID)
			resp.Result, resp.Message = ReportFailed, err.Error()
		default:
			e.Logger.Error("job evaluator encountered internal error", "job_id", req.JobID, "error", err)
			e.Progress.JobAborted(req.JobID)
			resp.Result, resp.Message = ReportInternalError, err.Error()
		}
	} else {
		e.Progress.JobFinished(req.JobID)
	}

	e.Logger.Info("job ended", "job_id", req.JobID)
	if e.CleanupSubmission {
		e.cleanupSubmission(p)
	}
	return resp
}

func (e *Evaluator) pipeline(ctx context.Context, req Request, p *paths) error {
	if err := e.downloadSubmission(ctx, req, p); err != nil {
		return err
	}
	if err := e.prepareSubmission(ctx, p); err != nil {
		return err
	}
	meta, j, err := e.buildJob(ctx, req, *p)
	if err != nil {
		return err
	}
	outcomes, err := e.runJob(ctx, req, meta, j, *p)
	if err != nil {
		return err
	}
	return e.pushResult(ctx, req, meta, *p, outcomes)
}

func (e *Evaluator) downloadSubmission(ctx context.Context, req Request, p *paths) error {
	e.Logger.Info("trying to download submission archive", "job_id", req.JobID)
	if err := os.MkdirAll(p.archiveDir, 0o755); err != nil {
		return fmt.Errorf("cannot create archive directory for submission archives: %w", err)
	}

	name := filepath.Base(req.JobURL)
	p.archiveFile = filepath.Join(p.archiveDir, name)
	if err := e.Fetcher.Get(ctx, req.JobURL, name, p.archiveFile); err != nil {
		return fmt.Errorf("downloading submission archive: %w", err)
	}

	e.Logger.Info("submission archive downloaded successfully", "job_id", req.JobID)
	e.Progress.JobArchiveDownloaded(req.JobID)
	return nil
}

func (e *Evaluator) prepareSubmission(ctx context.Context, p *paths) error {
	e.Logger.Info("preparing submission for usage")

	if err := os.MkdirAll(p.sourceDir, 0o775); err != nil {
		return fmt.Errorf("cannot create source directory: %w", err)
	}
	if err := tasks.ExtractArchive(ctx, p.archiveFile, p.sourceDir); err != nil {
		return fmt.Errorf("downloaded submission cannot be decompressed: %w", err)
	}
	if err := os.MkdirAll(p.resultsDir, 0o775); err != nil {
		return fmt.Errorf("result folder cannot be created: %w", err)
	}
	if err := os.MkdirAll(p.tempDir, 0o775); err != nil {
		return fmt.Errorf("cannot create temp directory: %w", err)
	}

	e.Logger.Info("submission prepared")
	return nil
}

func (e *Evaluator) buildJob(ctx context.Context, req Request, p paths) (*config.JobMetadata, *job.Job, error) {
	e.Logger.Info("building job")

	configPath := filepath.Join(p.sourceDir, "job-config.yml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, unrecoverable("job configuration not found: %v", err)
	}

	if err := copyFile(configPath, filepath.Join(p.resultsDir, "job-config.yml")); err != nil {
		e.Logger.Warn("copying of job-config.yml to results archive failed", "error", err)
	}

	meta, err := config.ParseJobConfig(data)
	if err != nil {
		return nil, nil, unrecoverable("job configuration loading problem: %v", err)
	}
	if meta.JobID != req.JobID {
		return nil, nil, unrecoverable("job identification from broker and in configuration are different")
	}

	j, err := job.Build(meta.Tasks)
	if err != nil {
		var cycle *dag.ErrCycleDetected
		if errors.As(err, &cycle) {
			return nil, nil, unrecoverable("Cycle in tasks dependencies detected")
		}
		return nil, nil, unrecoverable("job configuration loading problem: %v", err)
	}

	e.Logger.Info("job building done")
	return meta, j, nil
}

func (e *Evaluator) runJob(ctx context.Context, req Request, meta *config.JobMetadata, j *job.Job, p paths) ([]job.Outcome, error) {
	e.Logger.Info("ready for evaluation")

	env := &tasks.Env{
		Vars: tasks.Vars{
			WorkerID:  strconv.Itoa(e.WorkerID),
			JobID:     req.JobID,
			SourceDir: p.sourceDir,
			ResultDir: p.resultsDir,
			EvalDir:   "/box",
			TempDir:   p.tempDir,
			JudgesDir: "/usr/bin",
		},
		HWGroup:             e.HWGroup,
		DefaultLimits:       e.DefaultLimits,
		MaxOutputLength:     e.MaxOutputLength,
		MaxCarboncopyLength: e.MaxCarboncopyLength,
		Executor:            e.Executor,
		NextBoxID:           func() int { return int(e.boxCounter.Add(1)) },
		Fetch: func(ctx context.Context, logicalName, dst string) error {
			return e.Fetcher.Get(ctx, meta.FileServerURL+"/"+logicalName, logicalName, dst)
		},
	}

	outcomes, err := j.Run(ctx, env, func(ev job.Event) { e.Progress.JobEvent(req.JobID, ev) })
	if err != nil {
		return outcomes, err
	}

	e.Logger.Info("job evaluated")
	return outcomes, nil
}

func (e *Evaluator) pushResult(ctx context.Context, req Request, meta *config.JobMetadata, p paths, outcomes []job.Outcome) error {
	e.Logger.Info("trying to upload results of job")

	doc := resultDoc{JobID: req.JobID, HWGroup: e.HWGroup}
	for _, o := range outcomes {
		doc.Results = append(doc.Results, toTaskResult(o))
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("building yaml results file: %w", err)
	}
	resultYAML := filepath.Join(p.resultsDir, "result.yml")
	if err := os.WriteFile(resultYAML, data, 0o644); err != nil {
		return fmt.Errorf("writing yaml results file: %w", err)
	}

	archivePath := filepath.Join(p.resultsDir, "result.zip")
	if err := tasks.CreateZip(ctx, p.resultsDir, archivePath); err != nil {
		return fmt.Errorf("results file not archived properly: %w", err)
	}

	if err := e.Fetcher.Put(ctx, req.ResultURL, archivePath); err != nil {
		return fmt.Errorf("uploading result archive: %w", err)
	}

	e.Logger.Info("job results uploaded successfully")
	e.Progress.JobResultsUploaded(req.JobID)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, in)
	return err
}
