package config

import "testing"

const sampleJob = `
submission:
  job-id: "123"
  file-collector: "https://fileserver.example/"
  hw-groups: ["group1"]
tasks:
  - task-id: "compile"
    priority: 10
    fatal-failure: true
    cmd:
      bin: gcc
      args: ["-o", "a.out", "main.c"]
    sandbox:
      name: isolate
      limits:
        - hw-group-id: group1
          time: 5
          memory: 65536
  - task-id: "run"
    priority: 5
    dependencies: ["compile"]
    cmd:
      bin: "${EVAL_DIR}/a.out"
`

func TestParseJobConfigValid(t *testing.T) {
	job, err := ParseJobConfig([]byte(sampleJob))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.JobID != "123" {
		t.Fatalf("expected job id 123, got %q", job.JobID)
	}
	if len(job.Tasks) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(job.Tasks))
	}
	run := job.Tasks[1]
	if len(run.Dependencies) != 1 || run.Dependencies[0] != "compile" {
		t.Fatalf("expected run to depend on compile, got %+v", run.Dependencies)
	}
	compile := job.Tasks[0]
	if compile.Sandbox == nil {
		t.Fatalf("expected compile task to carry sandbox config")
	}
	limits, ok := compile.Sandbox.LoadedLimits["group1"]
	if !ok {
		t.Fatalf("expected loaded limits for group1")
	}
	if limits.CPUTime != 5 {
		t.Fatalf("expected CPUTime 5, got %v", limits.CPUTime)
	}
	if limits.WallTime != UnsetTime {
		t.Fatalf("expected WallTime to remain unset, got %v", limits.WallTime)
	}
}

func TestParseJobConfigRejectsUnknownDependency(t *testing.T) {
	const bad = `
submission:
  job-id: "1"
  file-collector: "https://fileserver.example/"
  hw-groups: ["group1"]
tasks:
  - task-id: "run"
    dependencies: ["missing"]
    cmd:
      bin: ls
`
	if _, err := ParseJobConfig([]byte(bad)); err == nil {
		t.Fatalf("expected error for dependency on unknown task")
	}
}

func TestParseJobConfigRejectsDuplicateTaskID(t *testing.T) {
	const bad = `
submission:
  job-id: "1"
  file-collector: "https://fileserver.example/"
  hw-groups: ["group1"]
tasks:
  - task-id: "run"
    cmd:
      bin: ls
  - task-id: "run"
    cmd:
      bin: ls
`
	if _, err := ParseJobConfig([]byte(bad)); err == nil {
		t.Fatalf("expected error for duplicate task-id")
	}
}
