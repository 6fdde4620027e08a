// ABOUTME: Tests for the agent event loop against in-memory collaborators.
// ABOUTME: Covers dedup, echo suppression, turn taking, failure and shutdown paths.

package agent

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/2389/conclave/internal/console"
	"github.com/2389/conclave/internal/dedupe"
	"github.com/2389/conclave/internal/identity"
	"github.com/2389/conclave/internal/llm"
	"github.com/2389/conclave/internal/memory"
	"github.com/2389/conclave/internal/peers"
	"github.com/2389/conclave/internal/scheduler"
	"github.com/2389/conclave/internal/wire"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// busTransport stands in for the multicast socket. Deliver plays the part
// of the group handing a datagram to the receiver; Sent collects what the
// agent broadcast.
type busTransport struct {
	mu      sync.Mutex
	sent    [][]byte
	sendErr error

	incoming chan []byte
	closed   chan struct{}
	once     sync.Once
}

func newBusTransport() *busTransport {
	return &busTransport{
		incoming: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (b *busTransport) Send(payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sendErr != nil {
		return b.sendErr
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	b.sent = append(b.sent, cp)
	return nil
}

func (b *busTransport) ReceiveLoop(ctx context.Context, handler func(payload []byte, from net.Addr)) error {
	from := &net.UDPAddr{IP: net.IPv4(192, 0, 2, 7), Port: 9999}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-b.closed:
			return nil
		case p := <-b.incoming:
			handler(p, from)
		}
	}
}

func (b *busTransport) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

func (b *busTransport) failSends(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendErr = err
}

func (b *busTransport) deliver(t *testing.T, env wire.Envelope) {
	t.Helper()
	payload, err := wire.Encode(env)
	require.NoError(t, err)
	b.incoming <- payload
}

func (b *busTransport) deliverRaw(payload []byte) {
	b.incoming <- payload
}

// sentEnvelopes decodes everything broadcast so far. Undecodable payloads
// are skipped; the agent only ever sends what Encode produced.
func (b *busTransport) sentEnvelopes() []wire.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]wire.Envelope, 0, len(b.sent))
	for _, p := range b.sent {
		if env, err := wire.Decode(p); err == nil {
			out = append(out, env)
		}
	}
	return out
}

func (b *busTransport) sentCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.sent)
}

// scriptedGen returns a fixed reply or error and records every prompt.
type scriptedGen struct {
	mu    sync.Mutex
	calls [][]llm.Message
	reply string
	err   error
}

func (g *scriptedGen) Generate(_ context.Context, messages []llm.Message) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, messages)
	return g.reply, g.err
}

func (g *scriptedGen) count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}

func (g *scriptedGen) call(i int) []llm.Message {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[i]
}

type harness struct {
	agent    *Agent
	bus      *busTransport
	gen      *scriptedGen
	window   *memory.Window
	registry *peers.Registry
}

// newHarness wires an agent around in-memory fakes. The default scheduler
// never speaks on its own (an hour of required quiet); tests that exercise
// turn taking shorten it through mutate.
func newHarness(t *testing.T, mutate func(*Options)) *harness {
	t.Helper()
	logger := testLogger()
	bus := newBusTransport()
	gen := &scriptedGen{reply: "noted"}
	registry := peers.NewRegistry("alice", time.Minute, dedupe.New(time.Minute, 256), logger)
	t.Cleanup(registry.Close)
	window := memory.NewWindow("You are terse.", 16, 4096)

	opts := Options{
		Identity:  identity.Identity{ID: "alice", Personality: "You are terse."},
		Transport: bus,
		Registry:  registry,
		Window:    window,
		Scheduler: scheduler.New(time.Hour, time.Hour, scheduler.AlwaysPolicy{}),
		Generator: gen,
		Printer:   console.NewPrinter(io.Discard, "alice"),
		Logger:    logger,
	}
	if mutate != nil {
		mutate(&opts)
	}

	a, err := New(opts)
	require.NoError(t, err)
	return &harness{agent: a, bus: bus, gen: gen, window: window, registry: registry}
}

// run starts the agent and returns a stop func that is also registered as
// cleanup. Stopping twice is fine.
func (h *harness) run(t *testing.T) func() {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.agent.Run(ctx)
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			cancel()
			select {
			case <-done:
			case <-time.After(waitFor):
				t.Error("agent did not shut down")
			}
		})
	}
	t.Cleanup(stop)
	return stop
}

// entryContents flattens a snapshot for content assertions.
func entryContents(entries []memory.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Content
	}
	return out
}

func TestAgent_DuplicateDeliveryAppendsOnce(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t)

	first := wire.NewChat("bob", "first thought")
	h.bus.deliver(t, first)
	h.bus.deliver(t, first)
	h.bus.deliver(t, wire.NewChat("bob", "second thought"))

	require.Eventually(t, func() bool {
		entries := h.window.Snapshot()
		return len(entries) > 0 && entries[len(entries)-1].Content == "second thought"
	}, waitFor, tick, "second message never reached memory")

	entries := h.window.Snapshot()
	assert.Equal(t,
		[]string{"You are terse.", "first thought", "second thought"},
		entryContents(entries),
		"the retransmit should not have produced a second entry")
	assert.Equal(t, "bob", entries[1].Role)
}

func TestAgent_OwnEchoIsIgnored(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Greeting = true })
	h.run(t)

	require.Eventually(t, func() bool { return h.bus.sentCount() == 1 },
		waitFor, tick, "greeting never sent")
	greeting := h.bus.sentEnvelopes()[0]
	assert.Equal(t, "alice", greeting.SenderID)
	assert.Equal(t, "Hi", greeting.Content)

	// The group loops our own broadcast back at us.
	h.bus.deliver(t, greeting)
	h.bus.deliver(t, wire.NewChat("bob", "anyone here?"))

	require.Eventually(t, func() bool {
		entries := h.window.Snapshot()
		return len(entries) > 0 && entries[len(entries)-1].Content == "anyone here?"
	}, waitFor, tick, "probe never reached memory")

	assert.Equal(t,
		[]string{"You are terse.", "Hi", "anyone here?"},
		entryContents(h.window.Snapshot()),
		"the echo should not have re-entered memory")
	assert.Equal(t, 1, h.registry.Count(), "only bob belongs in the roster")
}

func TestAgent_RepliesWhenGroupGoesQuiet(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Scheduler = scheduler.New(20*time.Millisecond, 10*time.Millisecond, scheduler.AlwaysPolicy{})
	})
	h.run(t)

	h.bus.deliver(t, wire.NewChat("bob", "ping"))

	require.Eventually(t, func() bool { return h.bus.sentCount() == 1 },
		waitFor, tick, "no reply broadcast")

	env := h.bus.sentEnvelopes()[0]
	assert.Equal(t, wire.KindChat, env.Kind)
	assert.Equal(t, "alice", env.SenderID)
	assert.Equal(t, "noted", env.Content)
	assert.False(t, env.HasTurn)

	require.Equal(t, 1, h.gen.count())
	prompt := h.gen.call(0)
	require.Len(t, prompt, 2)
	assert.Equal(t, llm.Message{Role: llm.RoleSystem, Content: "You are terse."}, prompt[0])
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "bob: ping"}, prompt[1])

	require.Eventually(t, func() bool {
		entries := h.window.Snapshot()
		last := entries[len(entries)-1]
		return last.Role == memory.RoleSelf && last.Content == "noted"
	}, waitFor, tick, "own reply never mirrored into memory")
}

func TestAgent_MalformedDatagramDoesNotStallLoop(t *testing.T) {
	h := newHarness(t, nil)
	h.run(t)

	h.bus.deliverRaw([]byte{0xde, 0xad, 0xbe, 0xef})
	h.bus.deliver(t, wire.NewChat("bob", "still with me?"))

	require.Eventually(t, func() bool {
		entries := h.window.Snapshot()
		return len(entries) == 2 && entries[1].Content == "still with me?"
	}, waitFor, tick, "valid message after garbage never processed")
}

func TestAgent_DebateClaimsOrderedSlots(t *testing.T) {
	policy := scheduler.DebatePolicy{Role: "pro", Order: []string{"pro", "con"}, Loop: true}
	h := newHarness(t, func(o *Options) {
		o.Identity = identity.Identity{ID: "alice", Personality: "You are terse.", Role: "pro"}
		o.Scheduler = scheduler.New(20*time.Millisecond, 10*time.Millisecond, policy)
	})
	h.run(t)

	// First slot belongs to pro, so alice opens the round unprompted.
	require.Eventually(t, func() bool { return h.bus.sentCount() == 1 },
		waitFor, tick, "opening turn never broadcast")
	opening := h.bus.sentEnvelopes()[0]
	assert.Equal(t, wire.KindDebateTurn, opening.Kind)
	assert.True(t, opening.HasTurn)
	assert.Equal(t, uint32(1), opening.TurnSeq)

	// Con takes slot 2; the next pro slot is 3.
	h.bus.deliver(t, wire.NewDebateTurn("bob", "objection", 2))

	require.Eventually(t, func() bool { return h.bus.sentCount() == 2 },
		waitFor, tick, "rebuttal never broadcast")
	rebuttal := h.bus.sentEnvelopes()[1]
	assert.Equal(t, wire.KindDebateTurn, rebuttal.Kind)
	assert.Equal(t, uint32(3), rebuttal.TurnSeq)
}

func TestAgent_FailedTurnBroadcastsNotice(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Scheduler = scheduler.New(20*time.Millisecond, 10*time.Millisecond, scheduler.AlwaysPolicy{})
		o.FailureNotice = true
	})
	h.gen.err = errors.New("backend down")
	h.run(t)

	h.bus.deliver(t, wire.NewChat("bob", "ping"))

	require.Eventually(t, func() bool { return h.bus.sentCount() == 1 },
		waitFor, tick, "failure notice never broadcast")

	env := h.bus.sentEnvelopes()[0]
	assert.Equal(t, wire.KindChat, env.Kind)
	assert.Equal(t,
		"Agent alice received your message but couldn't generate a proper response",
		env.Content)

	assert.Equal(t,
		[]string{"You are terse.", "ping"},
		entryContents(h.window.Snapshot()),
		"apologies must stay out of conversation memory")
}

func TestAgent_FailedSendSkipsMemoryMirror(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Scheduler = scheduler.New(20*time.Millisecond, 10*time.Millisecond, scheduler.AlwaysPolicy{})
	})
	h.bus.failSends(errors.New("network unreachable"))
	h.run(t)

	h.bus.deliver(t, wire.NewChat("bob", "ping"))

	require.Eventually(t, func() bool { return h.gen.count() == 1 },
		waitFor, tick, "generation never ran")

	// The reply was composed but never made it out, so memory must not
	// claim it was said.
	assert.Never(t, func() bool {
		entries := h.window.Snapshot()
		return entries[len(entries)-1].Role == memory.RoleSelf
	}, 100*time.Millisecond, tick)
}

func TestAgent_HeartbeatsGoOut(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.HeartbeatEvery = 15 * time.Millisecond })
	h.run(t)

	require.Eventually(t, func() bool {
		for _, env := range h.bus.sentEnvelopes() {
			if env.Kind == wire.KindHeartbeat && env.SenderID == "alice" {
				return true
			}
		}
		return false
	}, waitFor, tick, "no heartbeat observed")

	// Heartbeats carry presence only and stay out of the conversation.
	h.bus.deliver(t, wire.NewHeartbeat("bob"))
	require.Eventually(t, func() bool { return h.registry.Count() == 1 },
		waitFor, tick, "heartbeat never registered bob")
	assert.Equal(t, 1, h.window.Len())
}

func TestAgent_RunLeavesNoGoroutines(t *testing.T) {
	h := newHarness(t, func(o *Options) {
		o.Scheduler = scheduler.New(20*time.Millisecond, 10*time.Millisecond, scheduler.AlwaysPolicy{})
		o.Greeting = true
		o.HeartbeatEvery = 15 * time.Millisecond
	})
	stop := h.run(t)

	h.bus.deliver(t, wire.NewChat("bob", "ping"))
	require.Eventually(t, func() bool { return h.bus.sentCount() >= 2 },
		waitFor, tick, "greeting and reply never both sent")

	stop()
	h.registry.Close()
	goleak.VerifyNone(t)
}

func TestNew_RequiresCollaborators(t *testing.T) {
	logger := testLogger()
	registry := peers.NewRegistry("alice", time.Minute, dedupe.New(time.Minute, 16), logger)
	t.Cleanup(registry.Close)

	valid := Options{
		Identity:  identity.Identity{ID: "alice"},
		Transport: newBusTransport(),
		Registry:  registry,
		Window:    memory.NewWindow("sys", 4, 512),
		Scheduler: scheduler.New(time.Second, time.Second, scheduler.AlwaysPolicy{}),
		Generator: &scriptedGen{},
		Printer:   console.NewPrinter(io.Discard, "alice"),
		Logger:    logger,
	}

	_, err := New(valid)
	require.NoError(t, err, "valid options rejected")

	breakages := []struct {
		name   string
		mutate func(*Options)
	}{
		{"transport", func(o *Options) { o.Transport = nil }},
		{"registry", func(o *Options) { o.Registry = nil }},
		{"window", func(o *Options) { o.Window = nil }},
		{"scheduler", func(o *Options) { o.Scheduler = nil }},
		{"generator", func(o *Options) { o.Generator = nil }},
		{"printer", func(o *Options) { o.Printer = nil }},
		{"logger", func(o *Options) { o.Logger = nil }},
	}
	for _, tc := range breakages {
		t.Run(tc.name, func(t *testing.T) {
			opts := valid
			tc.mutate(&opts)
			_, err := New(opts)
			assert.Error(t, err)
		})
	}
}
