package config

import "testing"

func TestMergeLimitsInheritsSentinelFields(t *testing.T) {
	worker := SandboxLimits{CPUTime: 10, WallTime: 20, Memory: 1024, Processes: 1}
	job := NewUnsetLimits()
	job.WallTime = 5

	eff, err := MergeLimits(job, worker)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if eff.CPUTime != worker.CPUTime {
		t.Fatalf("expected inherited CPUTime %v, got %v", worker.CPUTime, eff.CPUTime)
	}
	if eff.WallTime != 5 {
		t.Fatalf("expected overridden WallTime 5, got %v", eff.WallTime)
	}
	if eff.Memory != worker.Memory {
		t.Fatalf("expected inherited Memory %v, got %v", worker.Memory, eff.Memory)
	}
}

func TestMergeLimitsRejectsExceedingWorkerDefault(t *testing.T) {
	worker := SandboxLimits{CPUTime: 10}
	job := NewUnsetLimits()
	job.CPUTime = 20

	if _, err := MergeLimits(job, worker); err == nil {
		t.Fatalf("expected error when job limit exceeds worker default")
	}
}

func TestMergeLimitsUnionsEnvironAndBoundDirsWithoutDuplicates(t *testing.T) {
	worker := SandboxLimits{
		EnvironVars: []EnvVar{{Key: "PATH", Value: "/usr/bin"}},
		BoundDirs:   []BoundDir{{Host: "/data", Sandbox: "/box/data", Perm: PermRO}},
	}
	job := NewUnsetLimits()
	job.EnvironVars = []EnvVar{{Key: "PATH", Value: "/usr/bin"}, {Key: "HOME", Value: "/box"}}
	job.BoundDirs = []BoundDir{{Host: "/data", Sandbox: "/box/data", Perm: PermRO}}

	eff, err := MergeLimits(job, worker)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(eff.EnvironVars) != 2 {
		t.Fatalf("expected 2 deduplicated env vars, got %d: %+v", len(eff.EnvironVars), eff.EnvironVars)
	}
	if len(eff.BoundDirs) != 1 {
		t.Fatalf("expected 1 deduplicated bound dir, got %d: %+v", len(eff.BoundDirs), eff.BoundDirs)
	}
}

func TestParseDirPerm(t *testing.T) {
	p, err := ParseDirPerm("rw,noexec")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p&PermRW == 0 || p&PermNoExec == 0 {
		t.Fatalf("expected rw|noexec bits set, got %v", p)
	}
	if _, err := ParseDirPerm("bogus"); err == nil {
		t.Fatalf("expected error for unknown permission token")
	}
}
