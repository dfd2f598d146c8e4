package wire

import (
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// encMode is the CBOR encoder mode for gateway messages.
// Configured for deterministic encoding with integer keys.
var encMode cbor.EncMode

// decMode is the CBOR decoder mode for gateway messages.
var decMode cbor.DecMode

func init() {
	var err error

	// Configure encoder for deterministic output
	encOpts := cbor.EncOptions{
		Sort:          cbor.SortCanonical, // Deterministic key ordering
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeUnix, // Unix timestamps
	}
	encMode, err = encOpts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR encoder mode: %v", err))
	}

	// Configure decoder to be lenient for forward compatibility
	decOpts := cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyQuiet, // Ignore duplicate keys (last wins)
		IndefLength:       cbor.IndefLengthAllowed,
		ExtraReturnErrors: cbor.ExtraDecErrorNone,
	}
	decMode, err = decOpts.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create CBOR decoder mode: %v", err))
	}
}

// Marshal encodes a value to CBOR bytes.
func Marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

// Unmarshal decodes CBOR bytes into a value.
func Unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}

// NewEncoder creates a new CBOR encoder that writes to w.
func NewEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewDecoder creates a new CBOR decoder that reads from r.
func NewDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

// EncodeRequest encodes a request message to CBOR bytes.
func EncodeRequest(req *Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return Marshal(req)
}

// DecodeRequest decodes CBOR bytes into a request message.
func DecodeRequest(data []byte) (*Request, error) {
	var req Request
	if err := Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid request: %w", err)
	}
	return &req, nil
}

// EncodeResponse encodes a response message to CBOR bytes.
func EncodeResponse(resp *Response) ([]byte, error) {
	return Marshal(resp)
}

// DecodeResponse decodes CBOR bytes into a response message.
func DecodeResponse(data []byte) (*Response, error) {
	var resp Response
	if err := Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &resp, nil
}

// EncodeUpdate encodes a monitor update to CBOR bytes.
// Updates have messageId=0 which is handled automatically.
func EncodeUpdate(update *Update) ([]byte, error) {
	// Create the wire format with messageId=0
	wireMsg := struct {
		MessageID uint32  `cbor:"1,keyasint"`
		MonitorID uint32  `cbor:"2,keyasint"`
		PV        string  `cbor:"3,keyasint"`
		Value     float64 `cbor:"4,keyasint"`
		Timestamp int64   `cbor:"5,keyasint,omitempty"`
	}{
		MessageID: UpdateMessageID,
		MonitorID: update.MonitorID,
		PV:        update.PV,
		Value:     update.Value,
		Timestamp: update.Timestamp,
	}
	return Marshal(wireMsg)
}

// DecodeUpdate decodes CBOR bytes into a monitor update.
func DecodeUpdate(data []byte) (*Update, error) {
	var wireMsg struct {
		MessageID uint32  `cbor:"1,keyasint"`
		MonitorID uint32  `cbor:"2,keyasint"`
		PV        string  `cbor:"3,keyasint"`
		Value     float64 `cbor:"4,keyasint"`
		Timestamp int64   `cbor:"5,keyasint,omitempty"`
	}
	if err := Unmarshal(data, &wireMsg); err != nil {
		return nil, fmt.Errorf("failed to decode update: %w", err)
	}
	if wireMsg.MessageID != UpdateMessageID {
		return nil, fmt.Errorf("not an update message: messageId=%d", wireMsg.MessageID)
	}
	return &Update{
		MonitorID: wireMsg.MonitorID,
		PV:        wireMsg.PV,
		Value:     wireMsg.Value,
		Timestamp: wireMsg.Timestamp,
	}, nil
}

// MessageType represents the type of a decoded message.
type MessageType int

const (
	MessageTypeUnknown MessageType = iota
	MessageTypeRequest
	MessageTypeResponse
	MessageTypeUpdate
)

// PeekMessageType examines CBOR data to determine the message type
// without fully decoding it.
//
// Message type detection logic:
//   - Update: messageId (key 1) = 0
//   - Request: key 3 holds a PV name (text) and key 2 is a valid operation
//   - Response: everything else
//
// Direction normally disambiguates (servers only receive requests, clients
// only receive responses and updates); the peek covers recording and replay
// paths that see both directions.
func PeekMessageType(data []byte) (MessageType, error) {
	var peek struct {
		MessageID uint32 `cbor:"1,keyasint"`
		Code      uint8  `cbor:"2,keyasint"`
		Field3    any    `cbor:"3,keyasint,omitempty"`
	}
	if err := Unmarshal(data, &peek); err != nil {
		return MessageTypeUnknown, fmt.Errorf("failed to peek message: %w", err)
	}

	if peek.MessageID == UpdateMessageID {
		return MessageTypeUpdate, nil
	}

	if _, ok := peek.Field3.(string); ok && Operation(peek.Code).IsValid() {
		return MessageTypeRequest, nil
	}

	return MessageTypeResponse, nil
}
