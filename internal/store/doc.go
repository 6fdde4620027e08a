// Package store persists the conversation transcript in SQLite.
//
// The archive is append-only: every envelope this agent broadcast or
// accepted lands in one table, stamped with the local arrival time.
// Timestamps are stored as unix milliseconds so a reloaded envelope
// carries exactly the precision the wire format does. Row ids are ULIDs,
// which sort by insertion and keep same-millisecond arrivals in order.
//
// The database opens in WAL mode with a busy timeout, so a running agent
// and the transcript command can read it at the same time. The archive is
// optional; agents run fine without one.
package store
