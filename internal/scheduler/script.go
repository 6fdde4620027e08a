// ABOUTME: Debate script loading: the running order agents follow in debate mode.
// ABOUTME: TOML file with an ordered list of role slots and an optional loop flag.

package scheduler

import (
	"fmt"
	"slices"

	"github.com/BurntSushi/toml"
)

// Script is a debate running order. Slots are spoken top to bottom; when
// Loop is set the order repeats (sequence numbers keep climbing), otherwise
// the debate ends after the last slot.
type Script struct {
	Loop  bool       `toml:"loop"`
	Turns []TurnSpec `toml:"turns"`
}

// TurnSpec is one slot in the running order.
type TurnSpec struct {
	Role string `toml:"role"`
}

// LoadScript reads and validates a debate script.
func LoadScript(path string) (Script, error) {
	var s Script
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return Script{}, fmt.Errorf("debate script %s: %w", path, err)
	}
	if err := s.validate(); err != nil {
		return Script{}, fmt.Errorf("debate script %s: %w", path, err)
	}
	return s, nil
}

func (s Script) validate() error {
	if len(s.Turns) == 0 {
		return fmt.Errorf("no turns defined")
	}
	for i, t := range s.Turns {
		if t.Role == "" {
			return fmt.Errorf("turn %d has no role", i+1)
		}
	}
	return nil
}

// Order returns the roles in speaking order.
func (s Script) Order() []string {
	order := make([]string, len(s.Turns))
	for i, t := range s.Turns {
		order[i] = t.Role
	}
	return order
}

// Policy builds the debate policy for the agent holding the given role.
// The role must appear in the running order.
func (s Script) Policy(role string) (DebatePolicy, error) {
	order := s.Order()
	if !slices.Contains(order, role) {
		return DebatePolicy{}, fmt.Errorf("role %q is not in the running order %v", role, order)
	}
	return DebatePolicy{Role: role, Order: order, Loop: s.Loop}, nil
}
