// Package pv defines the process-variable abstraction the device layer
// is built on.
//
// A PV is a named scalar channel with optional engineering-unit and
// control-limit metadata. Values are read with Get, written with Put
// (non-blocking at the channel level) and observed with Monitor. Slit
// records come in triplets per axis: a setpoint (":XWID_REQ"), a readback
// (":ACTUAL_XWIDTH") and a done flag (":DMOV") shared by all axes of one
// slit.
//
// Two implementations exist: SoftPV, an in-memory channel used by the
// simulator and tests, and the gateway client's remote PV which proxies a
// channel served over TCP. A Registry maps names to channels and doubles
// as the Connector device constructors consume.
package pv
