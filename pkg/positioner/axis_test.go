package positioner

import "testing"

func TestAxisKindString(t *testing.T) {
	tests := []struct {
		kind AxisKind
		want string
	}{
		{XWidth, "XWIDTH"},
		{YWidth, "YWIDTH"},
		{XCenter, "XCENTER"},
		{YCenter, "YCENTER"},
		{AxisKind(99), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAxisKindShort(t *testing.T) {
	tests := []struct {
		kind AxisKind
		want string
	}{
		{XWidth, "XWID"},
		{YWidth, "YWID"},
		{XCenter, "XCEN"},
		{YCenter, "YCEN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.kind.Short(); got != tt.want {
				t.Errorf("Short() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAxisKindIsValid(t *testing.T) {
	for _, k := range []AxisKind{XWidth, YWidth, XCenter, YCenter} {
		if !k.IsValid() {
			t.Errorf("IsValid() = false for %v", k)
		}
	}
	if AxisKind(4).IsValid() {
		t.Error("IsValid() = true for out-of-range kind")
	}
}

func TestAxisAddress(t *testing.T) {
	tests := []struct {
		kind         AxisKind
		wantSetpoint string
		wantReadback string
	}{
		{XWidth, "HXR:SLIT1:XWID_REQ", "HXR:SLIT1:ACTUAL_XWIDTH"},
		{YWidth, "HXR:SLIT1:YWID_REQ", "HXR:SLIT1:ACTUAL_YWIDTH"},
		{XCenter, "HXR:SLIT1:XCEN_REQ", "HXR:SLIT1:ACTUAL_XCENTER"},
		{YCenter, "HXR:SLIT1:YCEN_REQ", "HXR:SLIT1:ACTUAL_YCENTER"},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			sp, rb, dm := AxisAddress("HXR:SLIT1", tt.kind)
			if sp != tt.wantSetpoint {
				t.Errorf("setpoint = %q, want %q", sp, tt.wantSetpoint)
			}
			if rb != tt.wantReadback {
				t.Errorf("readback = %q, want %q", rb, tt.wantReadback)
			}
			// All four axes share one done record.
			if dm != "HXR:SLIT1:DMOV" {
				t.Errorf("done = %q, want %q", dm, "HXR:SLIT1:DMOV")
			}
		})
	}
}
