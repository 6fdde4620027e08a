// Package transport moves raw datagrams over a UDP multicast group.
// It knows nothing about envelopes; callers hand it bytes and get bytes.
package transport
