package wire

// Status represents a response status code.
type Status uint8

const (
	// StatusSuccess indicates the operation completed successfully.
	StatusSuccess Status = 0

	// StatusNotFound indicates the gateway serves no PV with that name.
	StatusNotFound Status = 1

	// StatusDisconnected indicates the PV exists but its channel is offline.
	StatusDisconnected Status = 2

	// StatusBadRequest indicates a malformed message, unknown operation or
	// invalid payload.
	StatusBadRequest Status = 3

	// StatusReadOnly indicates an attempt to write a read-only PV.
	StatusReadOnly Status = 4

	// StatusInternal indicates an unexpected failure inside the gateway.
	StatusInternal Status = 5
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "SUCCESS"
	case StatusNotFound:
		return "NOT_FOUND"
	case StatusDisconnected:
		return "DISCONNECTED"
	case StatusBadRequest:
		return "BAD_REQUEST"
	case StatusReadOnly:
		return "READ_ONLY"
	case StatusInternal:
		return "INTERNAL"
	default:
		return "UNKNOWN"
	}
}

// IsSuccess returns true if the status indicates success.
func (s Status) IsSuccess() bool {
	return s == StatusSuccess
}

// IsError returns true if the status indicates an error.
func (s Status) IsError() bool {
	return s != StatusSuccess
}
