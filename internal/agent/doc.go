// Package agent runs one swarm participant end to end.
//
// # Event loop
//
// The agent is a single event loop plus three kinds of helper goroutine:
// a receiver feeding decoded envelopes through a bounded inbox, at most
// one generation goroutine composing a reply, and a voice worker draining
// a queue of lines to speak. The loop alone touches the scheduler, the
// conversation window, and the peer registry, so no turn state ever needs
// a lock.
//
// # Receiving
//
// The receiver decodes datagrams and hands envelopes off without ever
// blocking: when the inbox is full the message is dropped and logged. The
// loop screens each envelope through the peer registry's seen set. The
// seen set alone decides duplicate versus fresh, covering both peer
// retransmits and this agent's own broadcasts looping back from the
// group, since every outgoing id is marked before the send.
//
// # Speaking
//
// When the scheduler's quiet window closes and its policy grants a turn,
// the loop snapshots the window, builds the prompt, and starts the one
// in-flight generation. The result comes back on a channel: success
// broadcasts the reply (tagged with a turn sequence in debate mode) and
// mirrors it into memory, the console, and the archive; failure drops the
// scheduler into cooldown and optionally broadcasts a short notice.
//
// # Presence
//
// A maintenance ticker sends heartbeats and prunes peers that have gone
// quiet past their TTL. Heartbeats never touch the turn cycle.
package agent
