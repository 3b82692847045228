package dag

import (
	"errors"
	"testing"

	"github.com/recodex/worker/internal/config"
)

func TestOrderVisitsEveryReachableTaskExactlyOnce(t *testing.T) {
	ts := []config.TaskMetadata{
		{TaskID: "a"},
		{TaskID: "b", Dependencies: []string{"a"}},
		{TaskID: "c", Dependencies: []string{"a"}},
		{TaskID: "d", Dependencies: []string{"b", "c"}},
	}
	g, err := Build(ts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	order, err := g.Order()
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	if len(order) != len(ts) {
		t.Fatalf("expected %d tasks in order, got %d", len(ts), len(order))
	}
	seen := make(map[string]bool)
	for _, i := range order {
		id := g.TaskID(i)
		if seen[id] {
			t.Fatalf("task %q visited twice", id)
		}
		seen[id] = true
	}
	pos := make(map[string]int)
	for p, i := range order {
		pos[g.TaskID(i)] = p
	}
	if pos["a"] > pos["b"] || pos["a"] > pos["c"] {
		t.Fatalf("a must precede its dependents b,c: positions %+v", pos)
	}
	if pos["b"] > pos["d"] || pos["c"] > pos["d"] {
		t.Fatalf("d must come after both its dependencies: positions %+v", pos)
	}
}

func TestOrderBreaksTiesByPriorityThenID(t *testing.T) {
	ts := []config.TaskMetadata{
		{TaskID: "low", Priority: 1},
		{TaskID: "high", Priority: 10},
		{TaskID: "mid-first", Priority: 5},
		{TaskID: "mid-second", Priority: 5},
	}
	g, err := Build(ts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	order, err := g.Order()
	if err != nil {
		t.Fatalf("order: %v", err)
	}
	var got []string
	for _, i := range order {
		got = append(got, g.TaskID(i))
	}
	want := []string{"high", "mid-first", "mid-second", "low"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestOrderDetectsCycle(t *testing.T) {
	ts := []config.TaskMetadata{
		{TaskID: "a", Dependencies: []string{"b"}},
		{TaskID: "b", Dependencies: []string{"a"}},
	}
	g, err := Build(ts)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	_, err = g.Order()
	var cycleErr *ErrCycleDetected
	if !errors.As(err, &cycleErr) {
		t.Fatalf("expected ErrCycleDetected, got %v", err)
	}
}

func TestBuildRejectsUnknownDependency(t *testing.T) {
	ts := []config.TaskMetadata{
		{TaskID: "a", Dependencies: []string{"ghost"}},
	}
	if _, err := Build(ts); err == nil {
		t.Fatalf("expected error for unknown dependency")
	}
}
