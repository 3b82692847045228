package judge

import (
	"strings"
	"testing"
)

// TestLoggerBudgeting exercises spec.md §8 property 12: given a byte
// budget, the flush keeps every message strictly more urgent than the
// chosen cutoff severity in full, and the total output never exceeds the
// budget.
func TestLoggerBudgeting(t *testing.T) {
	var out strings.Builder
	l := NewLogger(&out)

	l.Error().Write("critical diagnostic\n")
	l.Warning().Write(strings.Repeat("warning line\n", 50))
	l.Info().Write(strings.Repeat("info line\n", 50))

	budget := 200
	l.RestrictSize(budget)
	if err := l.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	got := out.String()
	if len(got) > budget {
		t.Errorf("flushed output is %d bytes, exceeds budget of %d", len(got), budget)
	}
	if !strings.Contains(got, "critical diagnostic") {
		t.Error("expected the highest-severity message to survive truncation in full")
	}
}

// TestLoggerNoBudgetKeepsEverything confirms an unrestricted logger emits
// all accumulated content.
func TestLoggerNoBudgetKeepsEverything(t *testing.T) {
	var out strings.Builder
	l := NewLogger(&out)
	l.Info().Write("line one\n")
	l.Info().Write("line two\n")

	if err := l.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "line one") || !strings.Contains(got, "line two") {
		t.Errorf("expected both lines in unrestricted flush, got %q", got)
	}
}
