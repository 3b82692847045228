package evaluator

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/recodex/worker/internal/cache"
	"github.com/recodex/worker/internal/config"
	"github.com/recodex/worker/internal/fetcher"
	"github.com/recodex/worker/internal/sandbox"
)

type fakeExecutor struct {
	calls int
}

func (f *fakeExecutor) Run(ctx context.Context, req sandbox.Request) (sandbox.Results, error) {
	f.calls++
	return sandbox.Results{Status: sandbox.StatusOK, ExitCode: 0}, nil
}

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("zip create %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("zip write %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func newTestEvaluator(t *testing.T, workingDir string) (*Evaluator, *fakeExecutor) {
	t.Helper()
	c, err := cache.New(context.Background(), t.TempDir())
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	f := fetcher.New(c, nil)
	exec := &fakeExecutor{}
	e := New(&config.WorkerConfig{
		WorkerID:            1,
		HWGroup:             "group1",
		WorkingDirectory:    workingDir,
		Limits:              config.SandboxLimits{CPUTime: 10, WallTime: 20, Memory: 1024, Processes: 1, StackSize: config.UnsetSize},
		MaxOutputLength:     4096,
		MaxCarboncopyLength: 4096,
		CleanupSubmission:   false,
	}, f, exec, slog.New(slog.NewTextHandler(io.Discard, nil)), nil)
	return e, exec
}

// S1 (happy path): two sandboxed tasks, compile then run, both succeed.
func TestEvaluateHappyPathProducesOKResultForEveryTask(t *testing.T) {
	jobConfig := `
submission:
  job-id: job1
  file-collector: http://example.invalid/files
  hw-groups: [group1]
tasks:
  - task-id: compile
    type: EXECUTION
    cmd: {bin: gcc, args: ["main.c", "-o", "a.out"]}
    sandbox: {name: isolate}
  - task-id: run
    type: EXECUTION
    dependencies: [compile]
    cmd: {bin: "./a.out"}
    sandbox: {name: isolate}
`
	archiveBytes := buildZip(t, map[string]string{"job-config.yml": jobConfig})

	var resultUpload []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/archive.zip":
			w.Write(archiveBytes)
		case r.Method == http.MethodPut && r.URL.Path == "/result":
			resultUpload, _ = io.ReadAll(r.Body)
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	e, exec := newTestEvaluator(t, t.TempDir())
	resp := e.Evaluate(context.Background(), Request{
		JobID:     "job1",
		JobURL:    srv.URL + "/archive.zip",
		ResultURL: srv.URL + "/result",
	})

	if resp.Result != ReportOK {
		t.Fatalf("expected OK, got %v: %s", resp.Result, resp.Message)
	}
	if exec.calls != 2 {
		t.Fatalf("expected both sandboxed tasks to run, got %d calls", exec.calls)
	}
	if len(resultUpload) == 0 {
		t.Fatalf("expected a result.zip upload, got none")
	}

	resultsDir := filepath.Join(e.WorkingDir, "results", "1", "job1")
	data, err := os.ReadFile(filepath.Join(resultsDir, "result.yml"))
	if err != nil {
		t.Fatalf("expected result.yml on disk: %v", err)
	}
	var doc resultDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parse result.yml: %v", err)
	}
	if len(doc.Results) != 2 {
		t.Fatalf("expected 2 task results, got %d", len(doc.Results))
	}
	for _, r := range doc.Results {
		if r.Status != "OK" {
			t.Fatalf("expected every task OK, got %+v", r)
		}
	}
}

// S4 (cycle): a job whose tasks depend on each other must be classified
// FAILED with the exact message a cycle is expected to produce.
func TestEvaluateCyclicDependenciesYieldsFailedWithCycleMessage(t *testing.T) {
	jobConfig := `
submission:
  job-id: job2
  file-collector: http://example.invalid/files
  hw-groups: [group1]
tasks:
  - task-id: A
    dependencies: [B]
    cmd: {bin: mkdir, args: ["/tmp/a"]}
  - task-id: B
    dependencies: [A]
    cmd: {bin: mkdir, args: ["/tmp/b"]}
`
	archiveBytes := buildZip(t, map[string]string{"job-config.yml": jobConfig})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write(archiveBytes)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e, _ := newTestEvaluator(t, t.TempDir())
	resp := e.Evaluate(context.Background(), Request{
		JobID:     "job2",
		JobURL:    srv.URL + "/archive.zip",
		ResultURL: srv.URL + "/result",
	})

	if resp.Result != ReportFailed {
		t.Fatalf("expected FAILED, got %v", resp.Result)
	}
	if resp.Message != "Cycle in tasks dependencies detected" {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
}

// A job_id mismatch between the broker request and the job-config.yml
// document must also classify FAILED (unrecoverable), not INTERNAL_ERROR.
func TestEvaluateJobIDMismatchYieldsFailed(t *testing.T) {
	jobConfig := `
submission:
  job-id: something-else
  file-collector: http://example.invalid/files
  hw-groups: [group1]
tasks:
  - task-id: A
    cmd: {bin: mkdir, args: ["/tmp/a"]}
`
	archiveBytes := buildZip(t, map[string]string{"job-config.yml": jobConfig})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			w.Write(archiveBytes)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e, _ := newTestEvaluator(t, t.TempDir())
	resp := e.Evaluate(context.Background(), Request{
		JobID:     "job3",
		JobURL:    srv.URL + "/archive.zip",
		ResultURL: srv.URL + "/result",
	})

	if resp.Result != ReportFailed {
		t.Fatalf("expected FAILED, got %v: %s", resp.Result, resp.Message)
	}
}
