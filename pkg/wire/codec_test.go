package wire

import (
	"testing"
)

func TestRequestRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "get request",
			req: Request{
				MessageID: 1,
				Operation: OpGet,
				PV:        "HX2:SB1:Slits:XWID_REQ",
			},
		},
		{
			name: "put request",
			req: Request{
				MessageID: 2,
				Operation: OpPut,
				PV:        "HX2:SB1:Slits:XWID_REQ",
				Payload:   PutPayload{Value: 2.5},
			},
		},
		{
			name: "monitor request",
			req: Request{
				MessageID: 3,
				Operation: OpMonitor,
				PV:        "HX2:SB1:Slits:ACTUAL_XWIDTH",
				Payload: MonitorPayload{
					MinInterval: 100,
					MaxInterval: 60000,
				},
			},
		},
		{
			name: "list request",
			req: Request{
				MessageID: 4,
				Operation: OpList,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeRequest(&tt.req)
			if err != nil {
				t.Fatalf("EncodeRequest failed: %v", err)
			}

			decoded, err := DecodeRequest(data)
			if err != nil {
				t.Fatalf("DecodeRequest failed: %v", err)
			}

			if decoded.MessageID != tt.req.MessageID {
				t.Errorf("MessageID mismatch: got %d, want %d", decoded.MessageID, tt.req.MessageID)
			}
			if decoded.Operation != tt.req.Operation {
				t.Errorf("Operation mismatch: got %v, want %v", decoded.Operation, tt.req.Operation)
			}
			if decoded.PV != tt.req.PV {
				t.Errorf("PV mismatch: got %q, want %q", decoded.PV, tt.req.PV)
			}
		})
	}
}

func TestResponseRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		resp Response
	}{
		{
			name: "get response",
			resp: Response{
				MessageID: 1,
				Status:    StatusSuccess,
				Payload:   GetResponsePayload{Value: 2.5, Timestamp: 1700000000000000000},
			},
		},
		{
			name: "error response",
			resp: Response{
				MessageID: 2,
				Status:    StatusNotFound,
				Payload:   ErrorPayload{Message: "no such PV"},
			},
		},
		{
			name: "monitor ack",
			resp: Response{
				MessageID: 3,
				Status:    StatusSuccess,
				Payload:   MonitorResponsePayload{MonitorID: 7, Current: 5.0},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeResponse(&tt.resp)
			if err != nil {
				t.Fatalf("EncodeResponse failed: %v", err)
			}

			decoded, err := DecodeResponse(data)
			if err != nil {
				t.Fatalf("DecodeResponse failed: %v", err)
			}

			if decoded.MessageID != tt.resp.MessageID {
				t.Errorf("MessageID mismatch: got %d, want %d", decoded.MessageID, tt.resp.MessageID)
			}
			if decoded.Status != tt.resp.Status {
				t.Errorf("Status mismatch: got %v, want %v", decoded.Status, tt.resp.Status)
			}
		})
	}
}

func TestUpdateRoundTrip(t *testing.T) {
	update := Update{
		MonitorID: 42,
		PV:        "HX2:SB1:Slits:ACTUAL_XWIDTH",
		Value:     1.25,
		Timestamp: 1700000000000000000,
	}

	data, err := EncodeUpdate(&update)
	if err != nil {
		t.Fatalf("EncodeUpdate failed: %v", err)
	}

	decoded, err := DecodeUpdate(data)
	if err != nil {
		t.Fatalf("DecodeUpdate failed: %v", err)
	}

	if decoded.MonitorID != update.MonitorID {
		t.Errorf("MonitorID mismatch: got %d, want %d", decoded.MonitorID, update.MonitorID)
	}
	if decoded.PV != update.PV {
		t.Errorf("PV mismatch: got %q, want %q", decoded.PV, update.PV)
	}
	if decoded.Value != update.Value {
		t.Errorf("Value mismatch: got %v, want %v", decoded.Value, update.Value)
	}
	if decoded.Timestamp != update.Timestamp {
		t.Errorf("Timestamp mismatch: got %d, want %d", decoded.Timestamp, update.Timestamp)
	}
}

func TestDecodeUpdateRejectsNonZeroMessageID(t *testing.T) {
	resp := Response{MessageID: 9, Status: StatusSuccess}
	data, err := EncodeResponse(&resp)
	if err != nil {
		t.Fatalf("EncodeResponse failed: %v", err)
	}

	if _, err := DecodeUpdate(data); err == nil {
		t.Errorf("DecodeUpdate should reject messageId != 0")
	}
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{
			name:    "valid request",
			req:     Request{MessageID: 1, Operation: OpGet, PV: "X:REQ"},
			wantErr: false,
		},
		{
			name:    "messageId 0 reserved",
			req:     Request{MessageID: 0, Operation: OpGet, PV: "X:REQ"},
			wantErr: true,
		},
		{
			name:    "invalid operation",
			req:     Request{MessageID: 1, Operation: Operation(99), PV: "X:REQ"},
			wantErr: true,
		},
		{
			name:    "missing PV",
			req:     Request{MessageID: 1, Operation: OpGet},
			wantErr: true,
		},
		{
			name:    "list needs no PV",
			req:     Request{MessageID: 1, Operation: OpList},
			wantErr: false,
		},
		{
			name:    "hello needs no PV",
			req:     Request{MessageID: 1, Operation: OpHello, Payload: HelloPayload{Version: "1.0"}},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestExtractPayloadsAfterRoundTrip(t *testing.T) {
	// After a CBOR round-trip payloads arrive as raw maps, not as the typed
	// structs. The Extract helpers must handle both forms.
	t.Run("put value", func(t *testing.T) {
		req := Request{MessageID: 1, Operation: OpPut, PV: "X:REQ", Payload: PutPayload{Value: 3.5}}
		data, err := EncodeRequest(&req)
		if err != nil {
			t.Fatalf("EncodeRequest failed: %v", err)
		}
		decoded, err := DecodeRequest(data)
		if err != nil {
			t.Fatalf("DecodeRequest failed: %v", err)
		}

		value, ok := ExtractPutValue(decoded.Payload)
		if !ok {
			t.Fatalf("ExtractPutValue failed on %T", decoded.Payload)
		}
		if value != 3.5 {
			t.Errorf("value mismatch: got %v, want 3.5", value)
		}
	})

	t.Run("monitor intervals", func(t *testing.T) {
		req := Request{
			MessageID: 1,
			Operation: OpMonitor,
			PV:        "X:ACTUAL",
			Payload:   MonitorPayload{MinInterval: 250, MaxInterval: 30000},
		}
		data, err := EncodeRequest(&req)
		if err != nil {
			t.Fatalf("EncodeRequest failed: %v", err)
		}
		decoded, err := DecodeRequest(data)
		if err != nil {
			t.Fatalf("DecodeRequest failed: %v", err)
		}

		mp := ExtractMonitorPayload(decoded.Payload)
		if mp.MinInterval != 250 || mp.MaxInterval != 30000 {
			t.Errorf("intervals mismatch: got %+v", mp)
		}
	})

	t.Run("unmonitor id", func(t *testing.T) {
		req := Request{MessageID: 1, Operation: OpUnmonitor, PV: "X:ACTUAL", Payload: UnmonitorPayload{MonitorID: 17}}
		data, err := EncodeRequest(&req)
		if err != nil {
			t.Fatalf("EncodeRequest failed: %v", err)
		}
		decoded, err := DecodeRequest(data)
		if err != nil {
			t.Fatalf("DecodeRequest failed: %v", err)
		}

		id, ok := ExtractMonitorID(decoded.Payload)
		if !ok || id != 17 {
			t.Errorf("monitor id mismatch: got %d (ok=%v), want 17", id, ok)
		}
	})

	t.Run("info response", func(t *testing.T) {
		resp := Response{
			MessageID: 1,
			Status:    StatusSuccess,
			Payload:   InfoResponsePayload{Units: "mm", LimitLow: -1, LimitHigh: 11, HasLimits: true},
		}
		data, err := EncodeResponse(&resp)
		if err != nil {
			t.Fatalf("EncodeResponse failed: %v", err)
		}
		decoded, err := DecodeResponse(data)
		if err != nil {
			t.Fatalf("DecodeResponse failed: %v", err)
		}

		info, ok := ExtractInfoResponse(decoded.Payload)
		if !ok {
			t.Fatalf("ExtractInfoResponse failed on %T", decoded.Payload)
		}
		if info.Units != "mm" || info.LimitLow != -1 || info.LimitHigh != 11 || !info.HasLimits {
			t.Errorf("info mismatch: got %+v", info)
		}
	})

	t.Run("pv list", func(t *testing.T) {
		resp := Response{
			MessageID: 1,
			Status:    StatusSuccess,
			Payload:   ListResponsePayload{PVs: []string{"A:REQ", "A:ACTUAL"}},
		}
		data, err := EncodeResponse(&resp)
		if err != nil {
			t.Fatalf("EncodeResponse failed: %v", err)
		}
		decoded, err := DecodeResponse(data)
		if err != nil {
			t.Fatalf("DecodeResponse failed: %v", err)
		}

		pvs := ExtractPVList(decoded.Payload)
		if len(pvs) != 2 || pvs[0] != "A:REQ" || pvs[1] != "A:ACTUAL" {
			t.Errorf("pv list mismatch: got %v", pvs)
		}
	})

	t.Run("error message", func(t *testing.T) {
		resp := Response{
			MessageID: 1,
			Status:    StatusReadOnly,
			Payload:   ErrorPayload{Message: "ACTUAL records reject writes"},
		}
		data, err := EncodeResponse(&resp)
		if err != nil {
			t.Fatalf("EncodeResponse failed: %v", err)
		}
		decoded, err := DecodeResponse(data)
		if err != nil {
			t.Fatalf("DecodeResponse failed: %v", err)
		}

		if msg := ExtractErrorMessage(decoded.Payload); msg != "ACTUAL records reject writes" {
			t.Errorf("error message mismatch: got %q", msg)
		}
	})

	t.Run("hello version", func(t *testing.T) {
		req := Request{MessageID: 1, Operation: OpHello, Payload: HelloPayload{Version: "1.0"}}
		data, err := EncodeRequest(&req)
		if err != nil {
			t.Fatalf("EncodeRequest failed: %v", err)
		}
		decoded, err := DecodeRequest(data)
		if err != nil {
			t.Fatalf("DecodeRequest failed: %v", err)
		}

		ver, ok := ExtractHelloVersion(decoded.Payload)
		if !ok || ver != "1.0" {
			t.Errorf("hello version mismatch: got %q (ok=%v), want 1.0", ver, ok)
		}
	})
}

func TestPeekMessageType(t *testing.T) {
	reqData, err := EncodeRequest(&Request{MessageID: 1, Operation: OpGet, PV: "X:ACTUAL"})
	if err != nil {
		t.Fatalf("EncodeRequest failed: %v", err)
	}
	respData, err := EncodeResponse(&Response{MessageID: 1, Status: StatusSuccess, Payload: GetResponsePayload{Value: 1}})
	if err != nil {
		t.Fatalf("EncodeResponse failed: %v", err)
	}
	updateData, err := EncodeUpdate(&Update{MonitorID: 3, PV: "X:ACTUAL", Value: 1})
	if err != nil {
		t.Fatalf("EncodeUpdate failed: %v", err)
	}

	tests := []struct {
		name string
		data []byte
		want MessageType
	}{
		{"request", reqData, MessageTypeRequest},
		{"response", respData, MessageTypeResponse},
		{"update", updateData, MessageTypeUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PeekMessageType(tt.data)
			if err != nil {
				t.Fatalf("PeekMessageType failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("PeekMessageType = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestUnknownFieldsIgnored(t *testing.T) {
	// Forward compatibility: a message from a newer protocol version may
	// carry keys this version does not know about.
	msg := map[int]any{
		1:  uint32(1),
		2:  uint8(1), // OpGet
		3:  "X:ACTUAL",
		99: "future field",
	}

	data, err := Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	decoded, err := DecodeRequest(data)
	if err != nil {
		t.Fatalf("DecodeRequest should succeed with unknown fields: %v", err)
	}

	if decoded.MessageID != 1 {
		t.Errorf("MessageID mismatch: got %d, want 1", decoded.MessageID)
	}
	if decoded.Operation != OpGet {
		t.Errorf("Operation mismatch: got %v, want Get", decoded.Operation)
	}
}

func TestOperationStrings(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpGet, "Get"},
		{OpPut, "Put"},
		{OpInfo, "Info"},
		{OpMonitor, "Monitor"},
		{OpUnmonitor, "Unmonitor"},
		{OpList, "List"},
		{OpHello, "Hello"},
		{Operation(200), "Unknown"},
	}

	for _, tt := range tests {
		if got := tt.op.String(); got != tt.want {
			t.Errorf("Operation(%d).String() = %q, want %q", tt.op, got, tt.want)
		}
	}
}

func TestStatusPredicates(t *testing.T) {
	if !StatusSuccess.IsSuccess() || StatusSuccess.IsError() {
		t.Errorf("StatusSuccess predicates wrong")
	}
	if StatusNotFound.IsSuccess() || !StatusNotFound.IsError() {
		t.Errorf("StatusNotFound predicates wrong")
	}
}
