// Package positioner drives a single slit axis over its process
// variable triplet.
//
// Each axis is addressed by three channels derived from the slit
// record prefix:
//
//	<prefix>:<SHORT>_REQ      setpoint (short axis tag, e.g. XWID)
//	<prefix>:ACTUAL_<LONG>    readback (long axis tag, e.g. XWIDTH)
//	<prefix>:DMOV             done flag, shared by all four axes
//
// The naming asymmetry between setpoint and readback is a hardware
// convention and is preserved exactly.
//
// A move writes the setpoint without blocking and returns a
// status.MoveStatus that settles when the done flag pulses true. The
// record layer guarantees one false-to-true pulse per commanded move,
// including moves to the current position, so every returned status
// eventually settles or times out.
package positioner
