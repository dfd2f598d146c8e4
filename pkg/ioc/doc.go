// Package ioc simulates the slit hardware as a set of soft records.
//
// A SlitRecordSet builds every channel one slit prefix exposes: a
// setpoint/readback pair per axis, the shared done flag, the discrete
// command records and the blocked flag. Writing a setpoint starts a
// motion goroutine that steps the readback toward the target at a
// configured velocity; the done flag drops when the first axis starts
// moving and rises once every axis has arrived. Every commanded move
// produces a false-to-true done transition, no-op moves included, which
// is the contract the device layer's move resolution relies on.
//
// Rewriting a setpoint mid-move retargets the axis: the previous motion
// goroutine is superseded and the new target takes over from the current
// position. Writing the current readback value back is therefore a stop.
package ioc
