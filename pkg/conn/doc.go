// Package conn provides a resilient wrapper around a single bidirectional
// message-stream connection. The wrapper owns at most one transport at a
// time, detects stalled connection attempts, and re-establishes lost
// connections with capped exponential backoff, while exposing one stable
// set of events so callers never need to know a reconnect happened.
//
// Connection lifecycle: connecting -> open on a successful handshake, open
// -> connecting on an unforced close (looping through scheduled retries),
// and closing/closed only through Close, which is terminal.
package conn
