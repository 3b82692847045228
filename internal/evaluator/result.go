package evaluator

import (
	"github.com/recodex/worker/internal/job"
	"github.com/recodex/worker/internal/sandbox"
)

// resultDoc is the top-level shape of result.yml, matching spec.md §4.6's
// schema: {job-id, hw-group, results:[...]}.
type resultDoc struct {
	JobID   string       `yaml:"job-id"`
	HWGroup string       `yaml:"hw-group"`
	Results []taskResult `yaml:"results"`
}

type taskResult struct {
	TaskID       string       `yaml:"task-id"`
	Status       string       `yaml:"status"`
	ErrorMessage string       `yaml:"error_message,omitempty"`
	Output       *outputNode  `yaml:"output,omitempty"`
	Sandbox      *sandboxNode `yaml:"sandbox_results,omitempty"`
}

type outputNode struct {
	Stdout string `yaml:"stdout,omitempty"`
	Stderr string `yaml:"stderr,omitempty"`
}

type sandboxNode struct {
	ExitCode     int     `yaml:"exitcode"`
	Time         float64 `yaml:"time"`
	WallTime     float64 `yaml:"wall-time"`
	Memory       uint64  `yaml:"memory"`
	MaxRSS       uint64  `yaml:"max-rss"`
	Status       string  `yaml:"status"`
	ExitSignal   int     `yaml:"exitsig"`
	Killed       bool    `yaml:"killed"`
	Message      string  `yaml:"message"`
	CSWVoluntary int     `yaml:"csw-voluntary"`
	CSWForced    int     `yaml:"csw-forced"`
}

func toTaskResult(o job.Outcome) taskResult {
	r := taskResult{TaskID: o.TaskID, Status: string(o.Result.Status), ErrorMessage: o.Result.ErrorMessage}
	if o.Result.Stdout != "" || o.Result.Stderr != "" {
		r.Output = &outputNode{Stdout: o.Result.Stdout, Stderr: o.Result.Stderr}
	}
	if o.Result.Sandbox != nil {
		r.Sandbox = toSandboxNode(o.Result.Sandbox)
	}
	return r
}

func toSandboxNode(s *sandbox.Results) *sandboxNode {
	return &sandboxNode{
		ExitCode:     s.ExitCode,
		Time:         s.Time,
		WallTime:     s.WallTime,
		Memory:       s.Memory,
		MaxRSS:       s.MaxRSS,
		Status:       sandboxWireStatus(s.Status),
		ExitSignal:   s.ExitSignal,
		Killed:       s.Killed,
		Message:      s.Message,
		CSWVoluntary: s.CSWVoluntary,
		CSWForced:    s.CSWForced,
	}
}

// sandboxWireStatus maps internal/sandbox's Status vocabulary back onto the
// isolate-native {OK,RE,SG,TO,XX} enum for result.yml, the wire shape
// ReCodEx's frontend expects. Grounded on
// original_source/src/job/job_evaluator.cpp's isolate_status switch, which
// keeps SG (signal-killed: SIGSEGV, SIGKILL, OOM) distinct from a plain RE.
func sandboxWireStatus(s sandbox.Status) string {
	switch s {
	case sandbox.StatusOK:
		return "OK"
	case sandbox.StatusRuntimeError:
		return "RE"
	case sandbox.StatusSignaled:
		return "SG"
	case sandbox.StatusTimeLimitExceeded:
		return "TO"
	case sandbox.StatusInternalError:
		return "XX"
	default:
		return "XX"
	}
}
