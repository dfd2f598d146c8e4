package wire

import (
	"fmt"
)

// CBOR map keys for message encoding.
// All gateway messages use integer keys for efficiency.
const (
	// Common message keys
	KeyMessageID  = 1
	KeyOpOrStatus = 2 // Operation (request) or Status (response)
	KeyPV         = 3
	KeyPayload    = 4

	// Update-specific key (messageId=0 indicates a monitor update)
	KeyMonitorID = 2 // Replaces operation/status for updates
)

// MessageID 0 is reserved to indicate a monitor update.
const UpdateMessageID uint32 = 0

// Request represents a gateway request message from client to server.
//
// CBOR encoding:
//
//	{
//	  1: messageId,  // uint32
//	  2: operation,  // uint8: 1=Get, 2=Put, 3=Info, 4=Monitor, 5=Unmonitor, 6=List
//	  3: pv,         // text: target PV name (absent for List)
//	  4: payload     // operation-specific data
//	}
type Request struct {
	MessageID uint32    `cbor:"1,keyasint"`
	Operation Operation `cbor:"2,keyasint"`
	PV        string    `cbor:"3,keyasint,omitempty"`
	Payload   any       `cbor:"4,keyasint,omitempty"`
}

// Validate checks if the request is valid.
func (r *Request) Validate() error {
	if r.MessageID == UpdateMessageID {
		return fmt.Errorf("messageId 0 is reserved for monitor updates")
	}
	if !r.Operation.IsValid() {
		return fmt.Errorf("invalid operation: %d", r.Operation)
	}
	if r.Operation.NeedsPV() && r.PV == "" {
		return fmt.Errorf("operation %s requires a PV name", r.Operation)
	}
	return nil
}

// Response represents a gateway response message from server to client.
//
// CBOR encoding:
//
//	{
//	  1: messageId,  // uint32: matches request
//	  2: status,     // uint8: 0=success, or error code
//	  3: payload     // operation-specific response data
//	}
type Response struct {
	MessageID uint32 `cbor:"1,keyasint"`
	Status    Status `cbor:"2,keyasint"`
	Payload   any    `cbor:"3,keyasint,omitempty"`
}

// IsSuccess returns true if the response indicates success.
func (r *Response) IsSuccess() bool {
	return r.Status.IsSuccess()
}

// Update represents a monitor update pushed from server to client.
//
// CBOR encoding:
//
//	{
//	  1: 0,          // messageId 0 = update
//	  2: monitorId,  // uint32
//	  3: pv,         // text
//	  4: value,      // float64
//	  5: timestamp   // int64: unix nanoseconds
//	}
type Update struct {
	MonitorID uint32  `cbor:"2,keyasint"`
	PV        string  `cbor:"3,keyasint"`
	Value     float64 `cbor:"4,keyasint"`
	Timestamp int64   `cbor:"5,keyasint,omitempty"`
}

// PutPayload represents the payload for a Put request.
//
// CBOR encoding: { 1: value }
type PutPayload struct {
	Value float64 `cbor:"1,keyasint"`
}

// GetResponsePayload represents the payload for a Get response.
//
// CBOR encoding: { 1: value, 2: timestamp }
type GetResponsePayload struct {
	Value     float64 `cbor:"1,keyasint"`
	Timestamp int64   `cbor:"2,keyasint,omitempty"`
}

// InfoResponsePayload represents the payload for an Info response.
//
// CBOR encoding: { 1: units, 2: limitLow, 3: limitHigh, 4: hasLimits }
type InfoResponsePayload struct {
	Units     string  `cbor:"1,keyasint,omitempty"`
	LimitLow  float64 `cbor:"2,keyasint,omitempty"`
	LimitHigh float64 `cbor:"3,keyasint,omitempty"`
	HasLimits bool    `cbor:"4,keyasint,omitempty"`
}

// MonitorPayload represents the payload for a Monitor request.
// Intervals are milliseconds; zero means no constraint.
//
// CBOR encoding: { 1: minInterval, 2: maxInterval }
type MonitorPayload struct {
	MinInterval uint32 `cbor:"1,keyasint,omitempty"`
	MaxInterval uint32 `cbor:"2,keyasint,omitempty"`
}

// MonitorResponsePayload represents the payload for a Monitor response.
// Current carries the value at registration time (priming report).
//
// CBOR encoding: { 1: monitorId, 2: current }
type MonitorResponsePayload struct {
	MonitorID uint32  `cbor:"1,keyasint"`
	Current   float64 `cbor:"2,keyasint"`
}

// UnmonitorPayload represents the payload for an Unmonitor request.
//
// CBOR encoding: { 1: monitorId }
type UnmonitorPayload struct {
	MonitorID uint32 `cbor:"1,keyasint"`
}

// ListResponsePayload represents the payload for a List response.
//
// CBOR encoding: { 1: [pv, ...] }
type ListResponsePayload struct {
	PVs []string `cbor:"1,keyasint,omitempty"`
}

// HelloPayload represents the payload for a Hello request or response.
// Each side announces the protocol version it implements.
//
// CBOR encoding: { 1: version }
type HelloPayload struct {
	Version string `cbor:"1,keyasint"`
}

// ErrorPayload represents additional error information in a response.
//
// CBOR encoding: { 1: message }
type ErrorPayload struct {
	Message string `cbor:"1,keyasint,omitempty"`
}

// toKeyMap normalizes a raw CBOR-decoded map to uint64 keys.
// After a CBOR round-trip payloads arrive as map[any]any, not as the
// typed structs used before encoding.
func toKeyMap(payload any) map[uint64]any {
	switch m := payload.(type) {
	case map[uint64]any:
		return m
	case map[any]any:
		result := make(map[uint64]any, len(m))
		for k, v := range m {
			switch key := k.(type) {
			case uint64:
				result[key] = v
			case int64:
				if key >= 0 {
					result[uint64(key)] = v
				}
			}
		}
		return result
	default:
		return nil
	}
}

// numAsFloat converts a raw CBOR-decoded number to float64.
func numAsFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case uint64:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// numAsUint converts a raw CBOR-decoded number to uint32.
func numAsUint(v any) (uint32, bool) {
	switch n := v.(type) {
	case uint64:
		return uint32(n), true
	case int64:
		if n >= 0 {
			return uint32(n), true
		}
	case float64:
		if n >= 0 {
			return uint32(n), true
		}
	}
	return 0, false
}

// numAsInt converts a raw CBOR-decoded number to int64.
func numAsInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// ExtractPutValue extracts the value from a Put request payload.
// Handles both the typed form (before encoding) and the raw CBOR map form.
func ExtractPutValue(payload any) (float64, bool) {
	switch p := payload.(type) {
	case *PutPayload:
		return p.Value, true
	case PutPayload:
		return p.Value, true
	}
	m := toKeyMap(payload)
	if m == nil {
		return 0, false
	}
	return numAsFloat(m[1])
}

// ExtractGetResponse extracts a Get response payload from a raw
// CBOR-decoded value.
func ExtractGetResponse(payload any) (GetResponsePayload, bool) {
	switch p := payload.(type) {
	case *GetResponsePayload:
		return *p, true
	case GetResponsePayload:
		return p, true
	}
	m := toKeyMap(payload)
	if m == nil {
		return GetResponsePayload{}, false
	}
	value, ok := numAsFloat(m[1])
	if !ok {
		return GetResponsePayload{}, false
	}
	ts, _ := numAsInt(m[2])
	return GetResponsePayload{Value: value, Timestamp: ts}, true
}

// ExtractInfoResponse extracts an Info response payload from a raw
// CBOR-decoded value.
func ExtractInfoResponse(payload any) (InfoResponsePayload, bool) {
	switch p := payload.(type) {
	case *InfoResponsePayload:
		return *p, true
	case InfoResponsePayload:
		return p, true
	}
	m := toKeyMap(payload)
	if m == nil {
		return InfoResponsePayload{}, false
	}
	var info InfoResponsePayload
	if s, ok := m[1].(string); ok {
		info.Units = s
	}
	info.LimitLow, _ = numAsFloat(m[2])
	info.LimitHigh, _ = numAsFloat(m[3])
	if b, ok := m[4].(bool); ok {
		info.HasLimits = b
	}
	return info, true
}

// ExtractMonitorPayload extracts a Monitor request payload from a raw
// CBOR-decoded value. A nil payload yields zero intervals.
func ExtractMonitorPayload(payload any) MonitorPayload {
	switch p := payload.(type) {
	case *MonitorPayload:
		return *p
	case MonitorPayload:
		return p
	}
	m := toKeyMap(payload)
	if m == nil {
		return MonitorPayload{}
	}
	var mp MonitorPayload
	mp.MinInterval, _ = numAsUint(m[1])
	mp.MaxInterval, _ = numAsUint(m[2])
	return mp
}

// ExtractMonitorResponse extracts a Monitor response payload from a raw
// CBOR-decoded value.
func ExtractMonitorResponse(payload any) (MonitorResponsePayload, bool) {
	switch p := payload.(type) {
	case *MonitorResponsePayload:
		return *p, true
	case MonitorResponsePayload:
		return p, true
	}
	m := toKeyMap(payload)
	if m == nil {
		return MonitorResponsePayload{}, false
	}
	id, ok := numAsUint(m[1])
	if !ok {
		return MonitorResponsePayload{}, false
	}
	current, _ := numAsFloat(m[2])
	return MonitorResponsePayload{MonitorID: id, Current: current}, true
}

// ExtractMonitorID extracts the monitor ID from an Unmonitor request payload.
func ExtractMonitorID(payload any) (uint32, bool) {
	switch p := payload.(type) {
	case *UnmonitorPayload:
		return p.MonitorID, true
	case UnmonitorPayload:
		return p.MonitorID, true
	}
	m := toKeyMap(payload)
	if m == nil {
		return 0, false
	}
	return numAsUint(m[1])
}

// ExtractPVList extracts the PV names from a List response payload.
func ExtractPVList(payload any) []string {
	switch p := payload.(type) {
	case *ListResponsePayload:
		return p.PVs
	case ListResponsePayload:
		return p.PVs
	}
	m := toKeyMap(payload)
	if m == nil {
		return nil
	}
	arr, ok := m[1].([]any)
	if !ok {
		return nil
	}
	pvs := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			pvs = append(pvs, s)
		}
	}
	return pvs
}

// ExtractErrorMessage extracts the error message from an error response
// payload. Returns an empty string if none is present.
func ExtractErrorMessage(payload any) string {
	switch p := payload.(type) {
	case *ErrorPayload:
		return p.Message
	case ErrorPayload:
		return p.Message
	}
	m := toKeyMap(payload)
	if m == nil {
		return ""
	}
	s, _ := m[1].(string)
	return s
}

// ExtractHelloVersion extracts the protocol version from a Hello
// request or response payload.
func ExtractHelloVersion(payload any) (string, bool) {
	switch p := payload.(type) {
	case *HelloPayload:
		return p.Version, p.Version != ""
	case HelloPayload:
		return p.Version, p.Version != ""
	}
	m := toKeyMap(payload)
	if m == nil {
		return "", false
	}
	s, ok := m[1].(string)
	return s, ok && s != ""
}
