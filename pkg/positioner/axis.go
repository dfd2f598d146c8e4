package positioner

// AxisKind identifies one of the four logical slit axes.
type AxisKind uint8

const (
	// XWidth is the horizontal gap axis.
	XWidth AxisKind = 0
	// YWidth is the vertical gap axis.
	YWidth AxisKind = 1
	// XCenter is the horizontal offset axis.
	XCenter AxisKind = 2
	// YCenter is the vertical offset axis.
	YCenter AxisKind = 3
)

// String returns the long hardware tag used by readback records.
func (k AxisKind) String() string {
	switch k {
	case XWidth:
		return "XWIDTH"
	case YWidth:
		return "YWIDTH"
	case XCenter:
		return "XCENTER"
	case YCenter:
		return "YCENTER"
	default:
		return "UNKNOWN"
	}
}

// Short returns the four-character tag used by setpoint records.
func (k AxisKind) Short() string {
	s := k.String()
	if len(s) < 4 {
		return s
	}
	return s[:4]
}

// IsValid reports whether k names one of the four slit axes.
func (k AxisKind) IsValid() bool {
	return k <= YCenter
}

// AxisAddress computes the setpoint, readback and done PV names for one
// axis of the slit at prefix. The done record is shared by all four
// axes: it reads true only when no axis of the slit is in motion.
func AxisAddress(prefix string, kind AxisKind) (setpoint, readback, done string) {
	setpoint = prefix + ":" + kind.Short() + "_REQ"
	readback = prefix + ":ACTUAL_" + kind.String()
	done = prefix + ":DMOV"
	return
}
