// ABOUTME: Turn-taking state machine deciding when this agent may speak.
// ABOUTME: Pure transitions driven by explicit clocks; the agent loop owns the timers.

package scheduler

import (
	"time"
)

// State is the scheduler's position in the turn cycle.
type State int

const (
	StateIdle State = iota
	StateListening
	StateComposing
	StateBroadcasting
	StateCooldown
)

// String returns a short name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateComposing:
		return "composing"
	case StateBroadcasting:
		return "broadcasting"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Scheduler runs the turn cycle for one agent:
//
//	Idle/Listening -> Listening   on any accepted message (quiet timer resets)
//	Listening      -> Composing   when the quiet window closes and the policy permits
//	Composing      -> Broadcasting when the backend returns text
//	Broadcasting   -> Cooldown    once the response is on the wire
//	Cooldown       -> Idle/Listening on expiry
//
// Failure path: Composing -> Cooldown directly, no broadcast. Every method
// takes the current time explicitly, so transitions are testable without
// real clocks. Not safe for concurrent use: the agent loop is the single
// owner, per the one-writer discipline over all turn state.
type Scheduler struct {
	state       State
	policy      Policy
	quietWindow time.Duration
	cooldown    time.Duration

	lastActivity  time.Time
	cooldownEnd   time.Time
	pending       bool
	quietConsumed bool
	turnSeen      bool
	highestTurn   uint32
	claimedSeq    uint32
	claimTagged   bool
}

// New creates a scheduler in StateIdle. Call Start when the loop begins so
// the quiet clock has an origin.
func New(quietWindow, cooldown time.Duration, policy Policy) *Scheduler {
	return &Scheduler{
		state:       StateIdle,
		policy:      policy,
		quietWindow: quietWindow,
		cooldown:    cooldown,
	}
}

// Start arms the quiet clock. Until the first message arrives the window is
// measured from here, which is what lets a debate's first speaker open the
// round on a silent group.
func (s *Scheduler) Start(now time.Time) {
	s.lastActivity = now
}

// State returns the current state.
func (s *Scheduler) State() State {
	return s.state
}

// MessageAccepted records an accepted (non-duplicate, non-self) chat or
// debate message. Resets the quiet timer, marks traffic pending, and tracks
// the highest turn sequence observed. Only Idle and Listening change state;
// later states keep their position in the cycle and pick the message up
// after cooldown.
func (s *Scheduler) MessageAccepted(now time.Time, turnSeq uint32, tagged bool) {
	s.lastActivity = now
	s.pending = true
	s.quietConsumed = false
	if tagged {
		if !s.turnSeen || turnSeq > s.highestTurn {
			s.highestTurn = turnSeq
		}
		s.turnSeen = true
	}

	if s.state == StateIdle {
		s.state = StateListening
	}
}

// QuietExpired is called when the quiet timer fires. If the window has
// genuinely closed and the policy permits speaking, the scheduler moves to
// Composing and returns the decision (with any claimed turn sequence) so the
// caller can start exactly one generation. Otherwise the zero Decision is
// returned and the quiet window is consumed until new traffic re-arms it.
func (s *Scheduler) QuietExpired(now time.Time) Decision {
	if s.state != StateIdle && s.state != StateListening {
		return Decision{}
	}
	if s.quietConsumed {
		return Decision{}
	}
	if now.Before(s.lastActivity.Add(s.quietWindow)) {
		return Decision{}
	}

	d := s.policy.Decide(TurnView{
		Pending:     s.pending,
		TurnSeen:    s.turnSeen,
		HighestTurn: s.highestTurn,
	})
	if !d.Speak {
		s.quietConsumed = true
		return Decision{}
	}

	s.state = StateComposing
	s.pending = false
	s.claimedSeq = d.TurnSeq
	s.claimTagged = d.Tagged
	return d
}

// GenerateSucceeded moves Composing to Broadcasting once the backend has
// returned text.
func (s *Scheduler) GenerateSucceeded(now time.Time) {
	if s.state == StateComposing {
		s.state = StateBroadcasting
	}
}

// GenerateFailed is the failure path: Composing drops straight to Cooldown
// with nothing broadcast and no turn claimed.
func (s *Scheduler) GenerateFailed(now time.Time) {
	if s.state != StateComposing {
		return
	}
	s.state = StateCooldown
	s.cooldownEnd = now.Add(s.cooldown)
	s.claimTagged = false
}

// Broadcasted records that the composed response made it onto the wire.
// The claimed turn sequence now counts as observed, so in debate mode the
// scheduler waits for the next slot rather than re-claiming its own.
func (s *Scheduler) Broadcasted(now time.Time) {
	if s.state != StateBroadcasting {
		return
	}
	s.state = StateCooldown
	s.cooldownEnd = now.Add(s.cooldown)
	if s.claimTagged {
		if !s.turnSeen || s.claimedSeq > s.highestTurn {
			s.highestTurn = s.claimedSeq
		}
		s.turnSeen = true
		s.claimTagged = false
	}
}

// BroadcastFailed handles a send error after a successful generation: the
// turn is abandoned without recording the claimed sequence, so the same
// slot can be retried after cooldown.
func (s *Scheduler) BroadcastFailed(now time.Time) {
	if s.state != StateBroadcasting {
		return
	}
	s.state = StateCooldown
	s.cooldownEnd = now.Add(s.cooldown)
	s.claimTagged = false
}

// CooldownExpired leaves Cooldown for Listening when traffic arrived during
// the hold, or Idle otherwise. The quiet timer is not reset here: if the
// window already closed during cooldown, the next wake fires immediately.
func (s *Scheduler) CooldownExpired(now time.Time) {
	if s.state != StateCooldown || now.Before(s.cooldownEnd) {
		return
	}
	if s.pending {
		s.state = StateListening
	} else {
		s.state = StateIdle
	}
	s.quietConsumed = false
}

// NextWake returns the next deadline the owner should set a timer for, if
// any. Composing and Broadcasting have none: those states advance when the
// generation result arrives, not on a clock.
func (s *Scheduler) NextWake() (time.Time, bool) {
	switch s.state {
	case StateIdle, StateListening:
		if s.quietConsumed {
			return time.Time{}, false
		}
		return s.lastActivity.Add(s.quietWindow), true
	case StateCooldown:
		return s.cooldownEnd, true
	default:
		return time.Time{}, false
	}
}
