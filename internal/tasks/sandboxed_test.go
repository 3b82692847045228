package tasks

import (
	"context"
	"testing"

	"github.com/recodex/worker/internal/config"
	"github.com/recodex/worker/internal/sandbox"
)

type fakeExecutor struct {
	results sandbox.Results
	gotReq  sandbox.Request
}

func (f *fakeExecutor) Run(ctx context.Context, req sandbox.Request) (sandbox.Results, error) {
	f.gotReq = req
	return f.results, nil
}

func testEnv(exec sandbox.Executor) *Env {
	return &Env{
		Vars:            Vars{WorkerID: "1", JobID: "job1", SourceDir: "/src", ResultDir: "/res", EvalDir: "/box", TempDir: "/tmp", JudgesDir: "/usr/bin"},
		HWGroup:         "group1",
		DefaultLimits:   config.SandboxLimits{CPUTime: 10, WallTime: 20, Memory: 1024, Processes: 1},
		MaxOutputLength: 1024,
		MaxCarboncopyLength: 1024,
		Executor:        exec,
		NextBoxID:       func() int { return 0 },
	}
}

func TestSandboxedTaskMapsNonOKStatusToFailed(t *testing.T) {
	exec := &fakeExecutor{results: sandbox.Results{Status: sandbox.StatusRuntimeError, Message: "exit code 1"}}
	task := sandboxedTask{
		baseTask: baseTask{meta: config.TaskMetadata{
			TaskID: "run",
			Cmd:    config.CmdConfig{Bin: "${EVAL_DIR}/a.out"},
			Sandbox: &config.SandboxConfig{
				Name:         "isolate",
				LoadedLimits: map[string]config.SandboxLimits{},
			},
		}},
	}
	res, err := task.Run(context.Background(), testEnv(exec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusFailed {
		t.Fatalf("expected FAILED, got %v", res.Status)
	}
	if res.ErrorMessage != "Sandboxed program failed: exit code 1" {
		t.Fatalf("unexpected error message: %q", res.ErrorMessage)
	}
	if exec.gotReq.Binary != "/box/a.out" {
		t.Fatalf("expected substituted binary path, got %q", exec.gotReq.Binary)
	}
}

func TestSandboxedTaskInheritsWorkerDefaultLimitsWhenUnset(t *testing.T) {
	exec := &fakeExecutor{results: sandbox.Results{Status: sandbox.StatusOK}}
	task := sandboxedTask{
		baseTask: baseTask{meta: config.TaskMetadata{
			TaskID: "run",
			Cmd:    config.CmdConfig{Bin: "a.out"},
			Sandbox: &config.SandboxConfig{
				Name:         "isolate",
				LoadedLimits: map[string]config.SandboxLimits{},
			},
		}},
	}
	_, err := task.Run(context.Background(), testEnv(exec))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if exec.gotReq.CPUTimeLimit != 10 {
		t.Fatalf("expected inherited CPU time limit 10, got %v", exec.gotReq.CPUTimeLimit)
	}
}

func TestSandboxedTaskRejectsLimitExceedingWorkerDefault(t *testing.T) {
	exec := &fakeExecutor{results: sandbox.Results{Status: sandbox.StatusOK}}
	limits := config.NewUnsetLimits()
	limits.CPUTime = 999
	task := sandboxedTask{
		baseTask: baseTask{meta: config.TaskMetadata{
			TaskID: "run",
			Cmd:    config.CmdConfig{Bin: "a.out"},
			Sandbox: &config.SandboxConfig{
				Name:         "isolate",
				LoadedLimits: map[string]config.SandboxLimits{"group1": limits},
			},
		}},
	}
	_, err := task.Run(context.Background(), testEnv(exec))
	if err == nil {
		t.Fatalf("expected error when job limit exceeds worker default")
	}
}
