// ABOUTME: Roster of swarm peers plus the duplicate-suppression gate.
// ABOUTME: Tracks last-seen times for pruning and drops already-seen message ids.

package peers

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/conclave/internal/dedupe"
)

// Record is one observed peer. Purely observational: it feeds the roster
// display and staleness pruning, never turn-taking.
type Record struct {
	AgentID   string
	FirstSeen time.Time
	LastSeen  time.Time
	Messages  int
}

// Registry tracks which agents have been heard from and which message ids
// have already been processed. Every decoded envelope passes through
// Observe; a true result means the envelope is a duplicate and processing
// stops there.
type Registry struct {
	mu     sync.RWMutex
	own    string
	peers  map[string]*Record
	seen   *dedupe.SeenSet
	ttl    time.Duration
	logger *slog.Logger
}

// NewRegistry creates a registry for the agent with the given own id. Peers
// silent for longer than ttl are dropped by Prune. The seen set is owned by
// the registry after this call; Close releases it.
func NewRegistry(ownID string, ttl time.Duration, seen *dedupe.SeenSet, logger *slog.Logger) *Registry {
	return &Registry{
		own:    ownID,
		peers:  make(map[string]*Record),
		seen:   seen,
		ttl:    ttl,
		logger: logger,
	}
}

// Observe records a sighting of senderID and checks the message id against
// the seen set. Returns true when the id is a duplicate. The peer's
// last-seen time advances either way, since a retransmit is still evidence
// the peer is alive, but only new messages count toward Messages. The
// agent's own id never enters the roster; its looped-back broadcasts are
// caught here as duplicates of ids marked by MarkOwn.
func (r *Registry) Observe(senderID string, id uuid.UUID, now time.Time) bool {
	if senderID == r.own {
		return r.seen.CheckAndMark(id)
	}

	r.mu.Lock()
	rec, ok := r.peers[senderID]
	if !ok {
		rec = &Record{AgentID: senderID, FirstSeen: now}
		r.peers[senderID] = rec
		r.logger.Info("peer joined", "agent_id", senderID, "total_peers", len(r.peers))
	}
	rec.LastSeen = now
	r.mu.Unlock()

	duplicate := r.seen.CheckAndMark(id)
	if !duplicate {
		r.mu.Lock()
		rec.Messages++
		r.mu.Unlock()
	}
	return duplicate
}

// MarkOwn registers an outbound message id before it is sent, so the
// broadcast looping back from the group is dropped as a duplicate.
func (r *Registry) MarkOwn(id uuid.UUID) {
	r.seen.Mark(id)
}

// Prune removes peers not heard from within the ttl and returns their ids.
func (r *Registry) Prune(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed []string
	for id, rec := range r.peers {
		if now.Sub(rec.LastSeen) > r.ttl {
			delete(r.peers, id)
			removed = append(removed, id)
		}
	}
	sort.Strings(removed)
	for _, id := range removed {
		r.logger.Info("peer pruned", "agent_id", id, "total_peers", len(r.peers))
	}
	return removed
}

// Count returns the number of known peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// List returns a copy of all peer records sorted by agent id.
func (r *Registry) List() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Record, 0, len(r.peers))
	for _, rec := range r.peers {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Close releases the seen set's background sweeper.
func (r *Registry) Close() {
	r.seen.Close()
}
