package broker

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFrameRoundTrip(t *testing.T) {
	frames := []string{"eval", "job-1", "http://files/job.zip", "http://files/result"}
	got := decodeFrames(encodeFrames(frames))
	if len(got) != len(frames) {
		t.Fatalf("decodeFrames: got %d frames, want %d", len(got), len(frames))
	}
	for i, f := range frames {
		if got[i] != f {
			t.Errorf("frame %d: got %q, want %q", i, got[i], f)
		}
	}
}

func TestDecodeEmptyFrames(t *testing.T) {
	if got := decodeFrames(nil); got != nil {
		t.Errorf("decodeFrames(nil) = %v, want nil", got)
	}
}

// TestReconnectDelaySchedule exercises spec.md §8 property 8: the reconnect
// delay follows 1, 2, 4, 8, 16, 32, 32, ... seconds.
func TestReconnectDelaySchedule(t *testing.T) {
	want := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
		32 * time.Second,
		32 * time.Second,
		32 * time.Second,
	}
	d := time.Second
	for i, w := range want {
		d = nextReconnectDelay(d)
		if d != w {
			t.Fatalf("step %d: got %v, want %v", i, d, w)
		}
	}
}

func TestHandleBrokerMessageEval(t *testing.T) {
	c := &Connection{cfg: Config{HWGroup: "group1"}, logger: discardLogger()}

	jobs := make(chan EvalMsg, 1)
	msg := &nats.Msg{Data: encodeFrames([]string{"eval", "job-1", "http://job", "http://result"})}
	c.handleBrokerMessage(context.Background(), msg, jobs)

	select {
	case ev := <-jobs:
		if ev.JobID != "job-1" || ev.JobURL != "http://job" || ev.ResultURL != "http://result" {
			t.Errorf("unexpected eval message: %+v", ev)
		}
	default:
		t.Fatal("expected an EvalMsg on the jobs channel")
	}

	c.mu.Lock()
	cur := c.currentJob
	c.mu.Unlock()
	if cur != "job-1" {
		t.Errorf("currentJob = %q, want job-1", cur)
	}
}

func TestHandleBrokerMessageEvalWrongArity(t *testing.T) {
	c := &Connection{cfg: Config{HWGroup: "group1"}, logger: discardLogger()}
	jobs := make(chan EvalMsg, 1)
	msg := &nats.Msg{Data: encodeFrames([]string{"eval", "job-1"})}
	c.handleBrokerMessage(context.Background(), msg, jobs)

	select {
	case ev := <-jobs:
		t.Fatalf("expected no EvalMsg for malformed eval, got %+v", ev)
	default:
	}
}
