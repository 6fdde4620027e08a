// Package wire defines the envelope exchanged between swarm agents and its
// fixed binary encoding. The layout is versioned; decoders reject unknown
// versions instead of guessing.
package wire
