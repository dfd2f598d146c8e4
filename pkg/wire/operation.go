package wire

// Operation represents a gateway protocol operation.
type Operation uint8

const (
	// OpGet reads the current value of a PV.
	OpGet Operation = 1

	// OpPut writes a value to a PV. The write is acknowledged when the
	// gateway has accepted it, not when any resulting motion completes.
	OpPut Operation = 2

	// OpInfo reads PV metadata (engineering units, control limits).
	OpInfo Operation = 3

	// OpMonitor registers a value monitor on a PV.
	OpMonitor Operation = 4

	// OpUnmonitor cancels a previously registered monitor.
	OpUnmonitor Operation = 5

	// OpList enumerates the PV names the gateway serves.
	OpList Operation = 6

	// OpHello announces the client's protocol version and returns the
	// server's. Sent once after connecting.
	OpHello Operation = 7
)

// String returns the operation name.
func (o Operation) String() string {
	switch o {
	case OpGet:
		return "Get"
	case OpPut:
		return "Put"
	case OpInfo:
		return "Info"
	case OpMonitor:
		return "Monitor"
	case OpUnmonitor:
		return "Unmonitor"
	case OpList:
		return "List"
	case OpHello:
		return "Hello"
	default:
		return "Unknown"
	}
}

// IsValid returns true if the operation is a valid gateway operation.
func (o Operation) IsValid() bool {
	return o >= OpGet && o <= OpHello
}

// NeedsPV returns true if the operation targets a named PV. OpList and
// OpHello are addressed to the gateway itself.
func (o Operation) NeedsPV() bool {
	return o != OpList && o != OpHello
}
