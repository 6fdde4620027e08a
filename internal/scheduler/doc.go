// Package scheduler decides when this agent may speak.
//
// # State machine
//
// The turn cycle is Idle -> Listening -> Composing -> Broadcasting ->
// Cooldown and back. Accepted messages put the machine in Listening and
// reset the quiet timer; when the group has been quiet for the configured
// window, the speaking policy is consulted and, if it permits, the machine
// enters Composing, at which point exactly one backend generation may run.
// A failed generation skips Broadcasting and drops straight to Cooldown.
//
// # Policies
//
// Free-form agents use AlwaysPolicy (speak whenever something new was
// heard) or ProbabilisticPolicy (a coin-flip gate with an injected
// randomness source). Debate agents use DebatePolicy, built from a Script:
// an ordered list of role slots loaded from TOML. Turn sequences are
// explicit on the wire; the next expected sequence is always the highest
// observed plus one, and only the agent whose role owns that slot may
// compose. Everyone else stays in Listening no matter how quiet the group
// gets.
//
// # Clocks
//
// The scheduler owns no timers and never reads the wall clock. Every event
// takes the current time as an argument and NextWake tells the owner when
// to fire the next one, so the whole machine is testable with a fixed
// clock.
package scheduler
