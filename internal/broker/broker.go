// Package broker implements the worker's connection to the ReCodEx broker
// (C8): the "init" handshake, heartbeat/liveness tracking, and the
// doubling-backoff reconnect loop, adapted onto NATS publish/subscribe in
// place of the ZMQ dealer socket the original worker used for the same job.
// Grounded on original_source/src/broker_connection.h's receive_tasks()
// poll loop and original_source/src/commands/broker_commands.h's eval/intro
// handlers.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// tracePropagator carries a span's trace context across the broker/job
// process boundary by injecting/extracting a traceparent NATS header.
var tracePropagator = propagation.TraceContext{}

// frameSep joins an outgoing command's frames into one NATS payload. The
// original ZMQ dealer socket carried native multipart frames; NATS messages
// are a single byte payload, so encodeFrames/decodeFrames reconstruct the
// same ordered-string-list shape on top of it.
const frameSep = "\x00"

func encodeFrames(frames []string) []byte {
	return []byte(strings.Join(frames, frameSep))
}

func decodeFrames(data []byte) []string {
	if len(data) == 0 {
		return nil
	}
	return strings.Split(string(data), frameSep)
}

// EvalMsg is the broker's "eval" command, handed off to the job side.
type EvalMsg struct {
	JobID     string
	JobURL    string
	ResultURL string
}

// DoneMsg is the job side's reply once a job has finished evaluating.
type DoneMsg struct {
	JobID   string
	Result  string
	Message string
}

// ProgressMsg is one advisory progress frame set, forwarded to the broker
// byte-for-byte. Frames[0] is always "progress".
type ProgressMsg struct {
	Frames []string
}

// Config is the subset of the worker config the broker connection needs.
type Config struct {
	WorkerID     int
	BrokerURI    string // NATS URL
	HWGroup      string
	Headers      []string // pre-flattened k=v pairs
	Description  string
	PingInterval time.Duration
	MaxLiveness  int
}

const brokerSubject = "recodex.broker"

func workerSubject(id int) string { return fmt.Sprintf("recodex.worker.%d", id) }

// Connection is the worker's broker-facing half of the two-thread message
// loop: it publishes on brokerSubject and subscribes on its own
// workerSubject for broker-originated commands.
type Connection struct {
	cfg    Config
	nc     *nats.Conn
	logger *slog.Logger

	workerSubject string

	mu         sync.Mutex
	currentJob string
}

// Connect dials the broker's NATS URL and sends the initial "init" frame.
func Connect(cfg Config, logger *slog.Logger) (*Connection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(
		cfg.BrokerURI,
		nats.Name(fmt.Sprintf("recodex-worker-%d", cfg.WorkerID)),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	c := &Connection{cfg: cfg, nc: nc, logger: logger, workerSubject: workerSubject(cfg.WorkerID)}
	if err := c.sendInit(); err != nil {
		nc.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the underlying NATS connection.
func (c *Connection) Close() { c.nc.Close() }

func (c *Connection) sendInit() error {
	c.mu.Lock()
	cur := c.currentJob
	c.mu.Unlock()

	msg := append([]string{"init", c.cfg.HWGroup}, c.cfg.Headers...)
	msg = append(msg, "", "description="+c.cfg.Description)
	if cur != "" {
		msg = append(msg, "current_job="+cur)
	}
	c.logger.Info("broker: sending init", "hwgroup", c.cfg.HWGroup, "current_job", cur)
	return c.nc.Publish(brokerSubject, encodeFrames(msg))
}

func (c *Connection) publish(frames []string) {
	if err := c.nc.Publish(brokerSubject, encodeFrames(frames)); err != nil {
		c.logger.Warn("broker: publish failed", "error", err)
	}
}

// publishTraced injects ctx's trace context into the NATS message header so
// a downstream broker-side consumer instrumented the same way can stitch
// this publish onto the job's trace, then publishes frames as usual.
func (c *Connection) publishTraced(ctx context.Context, frames []string) {
	hdr := nats.Header{}
	tracePropagator.Inject(ctx, propagation.HeaderCarrier(hdr))
	msg := &nats.Msg{Subject: brokerSubject, Data: encodeFrames(frames), Header: hdr}
	if err := c.nc.PublishMsg(msg); err != nil {
		c.logger.Warn("broker: publish failed", "error", err)
	}
}

// Run receives broker-originated commands and forwards done/progress
// messages from the job side until ctx is cancelled. It blocks; callers run
// it in its own goroutine — the BROKER "thread" of spec.md §5.
//
// Liveness and reconnection follow original_source/src/broker_connection.h
// exactly: a ping fires every PingInterval, counted from the previous ping
// whatever other traffic arrives; MaxLiveness consecutive pings with no broker traffic
// triggers a reconnect (resend "init") after a backoff sleep that doubles
// from 1s up to a 32s cap; any broker-originated message resets both
// liveness and the backoff delay.
func (c *Connection) Run(ctx context.Context, jobs chan<- EvalMsg, done <-chan DoneMsg, progress <-chan ProgressMsg) error {
	msgCh := make(chan *nats.Msg, 64)
	sub, err := c.nc.ChanSubscribe(c.workerSubject, msgCh)
	if err != nil {
		return fmt.Errorf("subscribe to worker subject: %w", err)
	}
	defer sub.Unsubscribe()

	liveness := c.cfg.MaxLiveness
	reconnectDelay := time.Second
	deadline := time.Now().Add(c.cfg.PingInterval)

	for {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		timer := time.NewTimer(remaining)

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case m, ok := <-msgCh:
			timer.Stop()
			if !ok {
				return fmt.Errorf("broker subscription closed")
			}
			liveness = c.cfg.MaxLiveness
			reconnectDelay = time.Second
			c.handleBrokerMessage(ctx, m, jobs)

		case d, ok := <-done:
			timer.Stop()
			if !ok {
				return nil
			}
			c.mu.Lock()
			c.currentJob = ""
			c.mu.Unlock()
			c.publishTraced(ctx, []string{"done", d.JobID, d.Result, d.Message})

		case p, ok := <-progress:
			timer.Stop()
			if !ok {
				continue
			}
			c.publishTraced(ctx, p.Frames)

		case <-timer.C:
			c.publish([]string{"ping"})
			deadline = time.Now().Add(c.cfg.PingInterval)
			liveness--
			if liveness == 0 {
				c.logger.Info("broker: connection expired, reconnecting", "delay", reconnectDelay)
				select {
				case <-time.After(reconnectDelay):
				case <-ctx.Done():
					return ctx.Err()
				}
				reconnectDelay = nextReconnectDelay(reconnectDelay)
				if err := c.sendInit(); err != nil {
					c.logger.Error("broker: resend init after reconnect failed", "error", err)
				}
				liveness = c.cfg.MaxLiveness
			}
		}
	}
}

// nextReconnectDelay doubles d, capped at 32s, matching spec.md §4.7/§8
// property 8's 1,2,4,8,16,32,32,... schedule.
func nextReconnectDelay(d time.Duration) time.Duration {
	if d < 32*time.Second {
		d *= 2
	}
	return d
}

func (c *Connection) handleBrokerMessage(ctx context.Context, m *nats.Msg, jobs chan<- EvalMsg) {
	if m.Header != nil {
		ctx = tracePropagator.Extract(ctx, propagation.HeaderCarrier(m.Header))
	}

	frames := decodeFrames(m.Data)
	if len(frames) == 0 {
		return
	}
	cmd, args := frames[0], frames[1:]
	switch cmd {
	case "eval":
		if len(args) != 3 {
			c.logger.Warn("broker: eval command with wrong number of arguments", "args", args)
			return
		}
		_, span := otel.Tracer("recodex-worker").Start(ctx, "broker.eval", trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()

		ev := EvalMsg{JobID: args[0], JobURL: args[1], ResultURL: args[2]}
		c.mu.Lock()
		c.currentJob = ev.JobID
		c.mu.Unlock()
		select {
		case jobs <- ev:
		case <-ctx.Done():
		}
	case "intro":
		if err := c.sendInit(); err != nil {
			c.logger.Warn("broker: resend init after intro failed", "error", err)
		}
	case "ping":
		// the broker pings too; no reply required, arrival alone resets liveness.
	default:
		c.logger.Warn("broker: unknown command", "command", cmd)
	}
}
