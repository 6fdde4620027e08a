// Package dedupe tracks recently seen message ids so duplicates arriving
// from the multicast group (retransmits or an agent's own echo) are
// dropped exactly once per id within a bounded window.
package dedupe
