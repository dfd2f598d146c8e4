// Package slits models a four-blade slit assembly as one logical
// aperture device.
//
// A slit owns four positioners (xwidth, ywidth, xcenter, ycenter)
// plus discrete open, close and block command records and a blocked
// readback. The device-level Move drives the two width axes: both
// requests are dispatched before either is awaited, so the axes travel
// in parallel, and the returned status settles only when both have
// settled. A failure on either axis fails the joint status with the
// first failure's detail.
//
// Insertion state and the transmission estimate are pure functions of
// the current aperture against the configured nominal aperture. The
// hardware state is read fresh on every query; nothing is cached
// beyond the current call.
package slits
