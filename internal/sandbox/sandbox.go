// Package sandbox defines the opaque sandboxed-process executor contract.
// Per the spec's scope boundary, the sandbox itself (an isolate-style
// process jail) is an external collaborator: this package only describes
// the request/result shape and ships one concrete backend that shells out
// to an "isolate" binary and parses its result, grounded on
// original_source/src/tasks/external_task.cpp's sandbox_check invocation.
package sandbox

import "context"

// Status is the sandbox's verdict for a single run.
type Status string

const (
	StatusOK                Status = "OK"
	StatusRuntimeError      Status = "RE"
	StatusSignaled          Status = "SG"
	StatusTimeLimitExceeded Status = "TLE"
	StatusInternalError     Status = "INTERNAL_ERROR"
)

// Request is everything an executor needs to run one sandboxed process.
type Request struct {
	Box          int // isolate box id, assigned by the caller
	Binary       string
	Args         []string
	Chdir        string
	StdInput     string
	StdOutput    string
	StdError     string
	StderrToStdout bool
	ShareNet     bool
	Environ      []string
	BoundDirs    []BoundDir

	CPUTimeLimit   float64 // seconds
	WallTimeLimit  float64 // seconds
	ExtraTimeLimit float64 // seconds
	MemoryLimit    uint64  // KiB
	ExtraMemoryLimit uint64 // KiB
	StackSizeLimit uint64  // KiB
	ProcessesLimit uint64
	DiskSizeLimit  uint64 // KiB
	DiskFilesLimit uint64
}

// BoundDir is a host-to-sandbox directory bind mount request.
type BoundDir struct {
	Host    string
	Sandbox string
	Flags   string // backend-specific mount flags, e.g. "rw"
}

// Results is the sandbox's report of how a run went.
type Results struct {
	Status     Status
	Message    string
	ExitCode   int
	Killed     bool
	Time       float64 // seconds of CPU time used
	WallTime   float64 // seconds of wall time used
	Memory     uint64  // KiB used (cgroup memory accounting)
	MaxRSS     uint64  // KiB, peak resident set size
	ExitSignal int
	CSWVoluntary int // voluntary context switches
	CSWForced    int // involuntary context switches
}

// Executor runs one sandboxed process and reports the outcome.
type Executor interface {
	Run(ctx context.Context, req Request) (Results, error)
}
