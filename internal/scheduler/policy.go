// ABOUTME: Speaking policies consulted when the quiet window closes.
// ABOUTME: Free-form always/probabilistic gates and the structured debate slots.

package scheduler

import (
	"math/rand"
)

// TurnView is what a policy sees when deciding: whether anything new has
// been heard since the agent last spoke, and the highest turn sequence
// observed so far (own broadcasts included).
type TurnView struct {
	Pending     bool
	TurnSeen    bool
	HighestTurn uint32
}

// Decision is a policy's answer. When Speak is set and Tagged is true the
// outgoing envelope must carry TurnSeq, claiming that debate slot.
type Decision struct {
	Speak   bool
	TurnSeq uint32
	Tagged  bool
}

// Policy decides whether the agent may compose once the group has gone
// quiet. Implementations must be pure: same view, same answer (the
// probabilistic gate draws from an injected source for exactly this reason).
type Policy interface {
	Name() string
	Decide(v TurnView) Decision
}

// AlwaysPolicy speaks whenever the quiet window closes with new traffic
// heard. The free-form default.
type AlwaysPolicy struct{}

func (AlwaysPolicy) Name() string { return "always" }

func (AlwaysPolicy) Decide(v TurnView) Decision {
	return Decision{Speak: v.Pending}
}

// ProbabilisticPolicy gates free-form speaking on a coin flip, so a large
// swarm does not answer every message in unison.
type ProbabilisticPolicy struct {
	p   float64
	rnd func() float64
}

// NewProbabilisticPolicy creates a gate that speaks with probability p.
// rnd is the randomness source; nil means math/rand.
func NewProbabilisticPolicy(p float64, rnd func() float64) ProbabilisticPolicy {
	if rnd == nil {
		rnd = rand.Float64
	}
	return ProbabilisticPolicy{p: p, rnd: rnd}
}

func (p ProbabilisticPolicy) Name() string { return "probabilistic" }

func (p ProbabilisticPolicy) Decide(v TurnView) Decision {
	if !v.Pending {
		return Decision{}
	}
	return Decision{Speak: p.rnd() < p.p}
}

// DebatePolicy speaks only in this agent's slots of a structured running
// order. The next sequence is always highest-observed + 1; the agent speaks
// when that sequence's slot carries its role. At round start (no turn seen
// yet) only the first slot may open. An agent whose role is not next stays
// silent no matter how long the group is quiet.
type DebatePolicy struct {
	Role  string
	Order []string
	Loop  bool
}

func (p DebatePolicy) Name() string { return "debate" }

func (p DebatePolicy) Decide(v TurnView) Decision {
	next := uint32(1)
	if v.TurnSeen {
		next = v.HighestTurn + 1
	}

	idx := int(next - 1)
	if p.Loop {
		idx %= len(p.Order)
	} else if idx >= len(p.Order) {
		// Running order exhausted: the debate is over for everyone.
		return Decision{}
	}

	if p.Order[idx] != p.Role {
		return Decision{}
	}
	return Decision{Speak: true, TurnSeq: next, Tagged: true}
}
