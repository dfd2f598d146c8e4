package slits

// Aperture is a slit opening in engineering units. Negative widths
// mean the blades overlap.
type Aperture struct {
	Width  float64
	Height float64
}

// Square returns an aperture with equal width and height.
func Square(size float64) Aperture {
	return Aperture{Width: size, Height: size}
}

// IsZero reports whether both dimensions are zero.
func (a Aperture) IsZero() bool {
	return a.Width == 0 && a.Height == 0
}
