package sandbox

import (
	"os"
	"path/filepath"
	"testing"
)

func writeMeta(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.meta")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write meta fixture: %v", err)
	}
	return path
}

func TestParseMetaFileOK(t *testing.T) {
	path := writeMeta(t, "time:0.12\ntime-wall:0.15\nmax-rss:4096\nexitcode:0\n")
	res, err := parseMetaFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusOK {
		t.Fatalf("expected OK status, got %v", res.Status)
	}
	if res.Time != 0.12 || res.Memory != 4096 {
		t.Fatalf("unexpected parsed fields: %+v", res)
	}
}

func TestParseMetaFileTimeLimitExceeded(t *testing.T) {
	path := writeMeta(t, "time:5.0\nstatus:TO\n")
	res, err := parseMetaFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusTimeLimitExceeded {
		t.Fatalf("expected TLE status, got %v", res.Status)
	}
}

func TestParseMetaFileRuntimeErrorFromExitCode(t *testing.T) {
	path := writeMeta(t, "time:0.01\nexitcode:1\n")
	res, err := parseMetaFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusRuntimeError {
		t.Fatalf("expected RE status for nonzero exit code, got %v", res.Status)
	}
}

func TestParseMetaFileSignaled(t *testing.T) {
	path := writeMeta(t, "time:0.02\nstatus:SG\nexitsig:11\nmessage:Caught fatal signal 11\n")
	res, err := parseMetaFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Status != StatusSignaled {
		t.Fatalf("expected SG status, got %v", res.Status)
	}
	if !res.Killed || res.ExitSignal != 11 {
		t.Fatalf("expected Killed and exitsig to be recorded, got %+v", res)
	}
}
