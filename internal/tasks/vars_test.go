package tasks

import "testing"

func TestSubstituteReplacesKnownVariables(t *testing.T) {
	v := Vars{WorkerID: "3", JobID: "job-1", SourceDir: "/src", ResultDir: "/res", EvalDir: "/box", TempDir: "/tmp", JudgesDir: "/usr/bin"}
	got, err := v.Substitute("${JUDGES_DIR}/recodex-token-judge --job ${JOB_ID} --worker ${WORKER_ID}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "/usr/bin/recodex-token-judge --job job-1 --worker 3"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSubstituteLeavesUnknownVariablesUntouched(t *testing.T) {
	v := Vars{}
	got, err := v.Substitute("${MYSTERY}/path")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "${MYSTERY}/path" {
		t.Fatalf("got %q, want unchanged literal", got)
	}
}

func TestSubstituteErrorsOnUnclosedOpener(t *testing.T) {
	v := Vars{}
	if _, err := v.Substitute("prefix ${JOB_ID"); err == nil {
		t.Fatalf("expected error for unclosed variable opener")
	}
}

func TestSubstituteDoesNotNest(t *testing.T) {
	v := Vars{JobID: "outer"}
	got, err := v.Substitute("${JOB_ID${NESTED}}")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// The first "}" closes the opener, so the name looked up is
	// "JOB_ID${NESTED", which is unknown and left untouched.
	if got != "${JOB_ID${NESTED}}" {
		t.Fatalf("got %q", got)
	}
}
