package evaluator

import (
	"testing"

	"github.com/recodex/worker/internal/sandbox"
)

// TestSandboxWireStatus exercises the result.yml wire mapping against the
// isolate-native {OK,RE,SG,TO,XX} enum, in particular that a signal-killed
// run round-trips as "SG" rather than collapsing into a plain "RE".
func TestSandboxWireStatus(t *testing.T) {
	cases := []struct {
		in   sandbox.Status
		want string
	}{
		{sandbox.StatusOK, "OK"},
		{sandbox.StatusRuntimeError, "RE"},
		{sandbox.StatusSignaled, "SG"},
		{sandbox.StatusTimeLimitExceeded, "TO"},
		{sandbox.StatusInternalError, "XX"},
		{sandbox.Status("bogus"), "XX"},
	}
	for _, c := range cases {
		if got := sandboxWireStatus(c.in); got != c.want {
			t.Errorf("sandboxWireStatus(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestToSandboxNodePreservesSignal(t *testing.T) {
	node := toSandboxNode(&sandbox.Results{
		Status:     sandbox.StatusSignaled,
		Killed:     true,
		ExitSignal: 11,
		Message:    "Caught fatal signal 11",
	})
	if node.Status != "SG" {
		t.Fatalf("expected wire status SG, got %q", node.Status)
	}
	if !node.Killed || node.ExitSignal != 11 {
		t.Fatalf("expected killed/exitsig to carry through, got %+v", node)
	}
}
