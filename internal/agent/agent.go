// ABOUTME: The agent loop wiring transport, scheduler, memory, and backend together.
// ABOUTME: Single-writer event loop; receiver and generation run on side goroutines.

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/2389/conclave/internal/console"
	"github.com/2389/conclave/internal/identity"
	"github.com/2389/conclave/internal/llm"
	"github.com/2389/conclave/internal/memory"
	"github.com/2389/conclave/internal/peers"
	"github.com/2389/conclave/internal/scheduler"
	"github.com/2389/conclave/internal/voice"
	"github.com/2389/conclave/internal/wire"
)

const (
	// inboxSize bounds the hand-off between the receiver and the loop.
	// When the loop is busy the receiver drops rather than blocks.
	inboxSize = 64
	// voiceQueueSize bounds lines waiting on the speech command.
	voiceQueueSize = 16

	greetingText = "Hi"
)

// Transport carries encoded envelopes to and from the multicast group.
type Transport interface {
	Send(payload []byte) error
	ReceiveLoop(ctx context.Context, handler func(payload []byte, from net.Addr)) error
	Close() error
}

// Generator produces one reply from a message history.
type Generator interface {
	Generate(ctx context.Context, messages []llm.Message) (string, error)
}

// Archiver records envelopes into the transcript store.
type Archiver interface {
	Append(ctx context.Context, env wire.Envelope, receivedAt time.Time) error
}

// Options collects the agent's collaborators. Transport, Registry, Window,
// Scheduler, Generator, Printer, and Logger are required; Archive and
// Speaker may be left unset.
type Options struct {
	Identity  identity.Identity
	Transport Transport
	Registry  *peers.Registry
	Window    *memory.Window
	Scheduler *scheduler.Scheduler
	Generator Generator
	Archive   Archiver
	Printer   *console.Printer
	Speaker   voice.Speaker
	Logger    *slog.Logger

	// ProcessingDelay holds each generation back before calling the
	// backend, giving slower agents a chance to be heard first.
	ProcessingDelay time.Duration
	// HeartbeatEvery is the presence beacon interval. Zero disables
	// heartbeats and peer pruning.
	HeartbeatEvery time.Duration
	// FailureNotice broadcasts a short apology when a turn fails.
	FailureNotice bool
	// Greeting opens the conversation on startup so a silent group has
	// something to respond to.
	Greeting bool
}

// turnResult is what a generation goroutine hands back to the loop.
type turnResult struct {
	reply    string
	err      error
	decision scheduler.Decision
}

// Agent runs one swarm participant. All conversation state (memory, the
// scheduler, the peer roster) is touched only from the loop goroutine; the
// receiver and generation goroutines communicate through channels.
type Agent struct {
	identity  identity.Identity
	transport Transport
	registry  *peers.Registry
	window    *memory.Window
	sched     *scheduler.Scheduler
	generator Generator
	archive   Archiver
	printer   *console.Printer
	speaker   voice.Speaker
	logger    *slog.Logger

	processingDelay time.Duration
	heartbeatEvery  time.Duration
	failureNotice   bool
	greeting        bool

	inbox   chan wire.Envelope
	results chan turnResult
	voiceQ  chan string
	wg      sync.WaitGroup
}

// New validates the wiring and returns an agent ready to Run.
func New(opts Options) (*Agent, error) {
	switch {
	case opts.Transport == nil:
		return nil, errors.New("agent: transport is required")
	case opts.Registry == nil:
		return nil, errors.New("agent: peer registry is required")
	case opts.Window == nil:
		return nil, errors.New("agent: conversation window is required")
	case opts.Scheduler == nil:
		return nil, errors.New("agent: scheduler is required")
	case opts.Generator == nil:
		return nil, errors.New("agent: generator is required")
	case opts.Printer == nil:
		return nil, errors.New("agent: printer is required")
	case opts.Logger == nil:
		return nil, errors.New("agent: logger is required")
	}

	speaker := opts.Speaker
	if speaker == nil {
		speaker = voice.NopSpeaker{}
	}

	return &Agent{
		identity:        opts.Identity,
		transport:       opts.Transport,
		registry:        opts.Registry,
		window:          opts.Window,
		sched:           opts.Scheduler,
		generator:       opts.Generator,
		archive:         opts.Archive,
		printer:         opts.Printer,
		speaker:         speaker,
		logger:          opts.Logger.With("component", "agent", "agent_id", opts.Identity.ID),
		processingDelay: opts.ProcessingDelay,
		heartbeatEvery:  opts.HeartbeatEvery,
		failureNotice:   opts.FailureNotice,
		greeting:        opts.Greeting,

		inbox:   make(chan wire.Envelope, inboxSize),
		results: make(chan turnResult, 1),
		voiceQ:  make(chan string, voiceQueueSize),
	}, nil
}

// Run drives the agent until ctx is canceled or the transport dies. It
// returns only after every goroutine it started has finished.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.sched.Start(time.Now().UTC())

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.receive(ctx); err != nil {
			a.logger.Error("receive loop ended", "error", err)
			cancel()
		}
	}()

	a.wg.Add(1)
	go a.speakLoop(ctx)

	if a.greeting {
		a.greet(ctx)
	}

	a.loop(ctx)

	// Closing the socket unblocks the receiver's read; cancel covers the
	// generation and voice goroutines.
	if err := a.transport.Close(); err != nil {
		a.logger.Warn("closing transport", "error", err)
	}
	cancel()
	a.wg.Wait()
	return nil
}

// receive feeds decoded envelopes into the inbox. It never blocks on the
// loop: a full inbox drops the message and the swarm carries on without it.
func (a *Agent) receive(ctx context.Context) error {
	return a.transport.ReceiveLoop(ctx, func(payload []byte, from net.Addr) {
		env, err := wire.Decode(payload)
		if err != nil {
			a.logger.Debug("dropping malformed datagram", "from", from, "error", err)
			return
		}
		select {
		case a.inbox <- env:
		default:
			a.logger.Warn("inbox full, dropping message",
				"sender", env.SenderID, "kind", env.Kind.String())
		}
	})
}

// speakLoop runs voice output off the main loop so a slow speech command
// never holds up the conversation.
func (a *Agent) speakLoop(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-a.voiceQ:
			if err := a.speaker.Speak(ctx, text); err != nil {
				a.logger.Warn("voice output failed", "error", err)
			}
		}
	}
}

func (a *Agent) enqueueSpeech(text string) {
	select {
	case a.voiceQ <- text:
	default:
		a.logger.Debug("voice queue full, skipping line")
	}
}

// loop is the single writer over all turn state. Each iteration re-arms the
// wake timer from the scheduler's next deadline, then waits on whichever
// event arrives first.
func (a *Agent) loop(ctx context.Context) {
	var maintenance <-chan time.Time
	if a.heartbeatEvery > 0 {
		ticker := time.NewTicker(a.heartbeatEvery)
		defer ticker.Stop()
		maintenance = ticker.C
	}

	wake := time.NewTimer(time.Hour)
	if !wake.Stop() {
		<-wake.C
	}
	defer wake.Stop()

	for {
		if !wake.Stop() {
			select {
			case <-wake.C:
			default:
			}
		}
		if deadline, ok := a.sched.NextWake(); ok {
			d := time.Until(deadline)
			if d < 0 {
				d = 0
			}
			wake.Reset(d)
		}

		select {
		case <-ctx.Done():
			return
		case env := <-a.inbox:
			a.handleEnvelope(ctx, env)
		case <-wake.C:
			a.handleWake(ctx)
		case res := <-a.results:
			a.handleResult(ctx, res)
		case <-maintenance:
			a.heartbeat()
		}
	}
}

// handleEnvelope screens an incoming envelope and, when it is fresh peer
// conversation, records it everywhere it needs to go. The seen set is the
// only thing deciding duplicate versus fresh; own echoes fall out of it
// because broadcasts are marked before they are sent.
func (a *Agent) handleEnvelope(ctx context.Context, env wire.Envelope) {
	now := time.Now().UTC()
	if a.registry.Observe(env.SenderID, env.ID, now) {
		a.logger.Debug("dropping duplicate", "sender", env.SenderID, "message_id", env.ID)
		return
	}
	if env.Kind == wire.KindHeartbeat {
		a.logger.Debug("heartbeat", "sender", env.SenderID)
		return
	}

	a.window.Append(memory.Entry{Role: env.SenderID, Content: env.Content, At: env.CreatedAt})
	a.printer.Peer(env.SenderID, env.Content)
	a.archiveEnvelope(ctx, env, now)
	a.enqueueSpeech(env.Content)
	a.sched.MessageAccepted(now, env.TurnSeq, env.HasTurn)
}

// handleWake fires the scheduler transition the current state is waiting
// on. Composing and Broadcasting have no deadline, so a wake in those
// states is a stale timer and falls through.
func (a *Agent) handleWake(ctx context.Context) {
	now := time.Now().UTC()
	switch a.sched.State() {
	case scheduler.StateIdle, scheduler.StateListening:
		if d := a.sched.QuietExpired(now); d.Speak {
			a.compose(ctx, d)
		}
	case scheduler.StateCooldown:
		a.sched.CooldownExpired(now)
	}
}

// compose snapshots the conversation and starts the one in-flight
// generation. The goroutine reports back through results; it holds no
// turn state of its own.
func (a *Agent) compose(ctx context.Context, d scheduler.Decision) {
	prompt := buildPrompt(a.window.Snapshot())
	a.logger.Info("composing reply",
		"history", len(prompt), "turn_seq", d.TurnSeq, "tagged", d.Tagged)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if a.processingDelay > 0 {
			select {
			case <-ctx.Done():
				return
			case <-time.After(a.processingDelay):
			}
		}
		reply, err := a.generator.Generate(ctx, prompt)
		select {
		case a.results <- turnResult{reply: reply, err: err, decision: d}:
		case <-ctx.Done():
		}
	}()
}

// handleResult finishes a turn: broadcast on success, cooldown straight
// away on failure.
func (a *Agent) handleResult(ctx context.Context, res turnResult) {
	now := time.Now().UTC()
	if res.err != nil {
		a.logger.Error("turn failed", "error", res.err)
		a.sched.GenerateFailed(now)
		a.printer.Notice("reply failed: %v", res.err)
		if a.failureNotice {
			a.sendFailureNotice(ctx)
		}
		return
	}
	a.sched.GenerateSucceeded(now)
	a.broadcast(ctx, res.decision, res.reply)
}

// broadcast puts the composed reply on the wire and mirrors it into local
// state. MarkOwn happens before Send so the looped-back copy is already a
// known duplicate by the time it arrives.
func (a *Agent) broadcast(ctx context.Context, d scheduler.Decision, reply string) {
	now := time.Now().UTC()
	content := clampContent(reply)

	var env wire.Envelope
	if d.Tagged {
		env = wire.NewDebateTurn(a.identity.ID, content, d.TurnSeq)
	} else {
		env = wire.NewChat(a.identity.ID, content)
	}
	payload, err := wire.Encode(env)
	if err != nil {
		a.logger.Error("encoding reply", "error", err)
		a.sched.BroadcastFailed(now)
		return
	}

	a.registry.MarkOwn(env.ID)
	if err := a.transport.Send(payload); err != nil {
		a.logger.Error("broadcasting reply", "error", err)
		a.sched.BroadcastFailed(now)
		return
	}

	a.sched.Broadcasted(now)
	a.window.Append(memory.Entry{Role: memory.RoleSelf, Content: content, At: env.CreatedAt})
	a.printer.Self(content)
	a.archiveEnvelope(ctx, env, now)
}

// greet opens the conversation with a short hello, since a group where
// everyone waits for the first message stays silent forever.
func (a *Agent) greet(ctx context.Context) {
	env := wire.NewChat(a.identity.ID, greetingText)
	payload, err := wire.Encode(env)
	if err != nil {
		a.logger.Error("encoding greeting", "error", err)
		return
	}
	a.registry.MarkOwn(env.ID)
	if err := a.transport.Send(payload); err != nil {
		a.logger.Warn("sending greeting", "error", err)
		return
	}
	a.window.Append(memory.Entry{Role: memory.RoleSelf, Content: greetingText, At: env.CreatedAt})
	a.printer.Self(greetingText)
	a.archiveEnvelope(ctx, env, time.Now().UTC())
}

// sendFailureNotice tells the group this agent heard them but has nothing
// to say. The notice is archived but kept out of conversation memory so
// later prompts are not padded with apologies.
func (a *Agent) sendFailureNotice(ctx context.Context) {
	text := fmt.Sprintf(
		"Agent %s received your message but couldn't generate a proper response",
		a.identity.ID)
	env := wire.NewChat(a.identity.ID, text)
	payload, err := wire.Encode(env)
	if err != nil {
		a.logger.Error("encoding failure notice", "error", err)
		return
	}
	a.registry.MarkOwn(env.ID)
	if err := a.transport.Send(payload); err != nil {
		a.logger.Warn("sending failure notice", "error", err)
		return
	}
	a.archiveEnvelope(ctx, env, time.Now().UTC())
}

// heartbeat sends the presence beacon and sweeps expired peers.
func (a *Agent) heartbeat() {
	env := wire.NewHeartbeat(a.identity.ID)
	payload, err := wire.Encode(env)
	if err != nil {
		a.logger.Error("encoding heartbeat", "error", err)
		return
	}
	a.registry.MarkOwn(env.ID)
	if err := a.transport.Send(payload); err != nil {
		a.logger.Warn("sending heartbeat", "error", err)
	}
	a.registry.Prune(time.Now().UTC())
}

func (a *Agent) archiveEnvelope(ctx context.Context, env wire.Envelope, receivedAt time.Time) {
	if a.archive == nil {
		return
	}
	if err := a.archive.Append(ctx, env, receivedAt); err != nil {
		a.logger.Error("archiving message", "error", err)
	}
}

// clampContent trims a reply to what one envelope can carry, cutting back
// to a rune boundary so the wire never carries split UTF-8.
func clampContent(s string) string {
	if len(s) <= wire.MaxContent {
		return s
	}
	s = s[:wire.MaxContent]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
