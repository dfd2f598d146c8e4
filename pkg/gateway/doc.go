// Package gateway provides network access to a PV namespace.
//
// The server side fronts a pv.Registry: clients read, write and monitor
// its channels over a TCP connection carrying CBOR messages in
// length-prefixed frames. The client side exposes the served channels
// through the same pv.PV interface local channels implement, so devices
// work identically against a local registry and a remote gateway.
//
// Each request carries a message ID the response echoes; monitor updates
// are pushed with message ID zero and correlate by monitor ID instead.
// Monitors are connection-scoped: every connection has its own monitor
// manager, and all of a connection's monitors die with it.
package gateway
