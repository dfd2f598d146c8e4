// Package monitor tracks server-side PV monitors for the gateway.
//
// Each monitor follows one process variable with a per-monitor
// coalescing window (min interval) and heartbeat period (max
// interval). Changes recorded inside the window collapse to the
// latest value; a monitor that has been quiet for its max interval
// replays its last value as a heartbeat, so clients can tell a silent
// channel from a dead connection.
//
// The manager never suppresses an update for carrying the same value
// as the previous one. Change semantics belong to the record layer:
// some records notify on every write, and collapsing their pulses to
// nothing would hide commanded moves from remote callers.
//
// Updates leave through the OnUpdate callback, driven by periodic
// ProcessNotifications calls and gated by a global token bucket.
// A rate-limited update stays pending and goes out on a later pump.
package monitor
