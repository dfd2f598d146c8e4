// Package wire defines the gateway message encoding.
//
// All messages are CBOR maps with integer keys. A request carries a
// message ID, an operation code and the target PV name; the matching
// response echoes the message ID with a status code. Monitor updates are
// pushed with messageId=0 and are correlated by monitor ID instead.
//
// Encoding is deterministic (canonical key order) so identical messages
// produce identical bytes; decoding is lenient so unknown keys from newer
// peers are ignored.
package wire
