package wire_test

import (
	"reflect"
	"testing"

	"sima/internal/wire"
)

func TestRequestRoundTrip(t *testing.T) {
	cases := []wire.Request{
		wire.StartRequest("web"),
		wire.StopRequest("web"),
		wire.RestartRequest("db"),
		wire.StatusRequest(),
		wire.PoweroffRequest(),
		wire.RebootRequest(),
		wire.SoftRebootRequest(),
		wire.StartRequest(""), // empty name is syntactically valid at the wire layer
	}
	for _, req := range cases {
		encoded := wire.EncodeRequest(req)
		decoded, err := wire.DecodeRequest(encoded)
		if err != nil {
			t.Fatalf("decode(encode(%v)) failed: %v", req, err)
		}
		if !reflect.DeepEqual(req, decoded) {
			t.Fatalf("decode(encode(%v)) = %v, want %v", req, decoded, req)
		}
		// encode(decode(b)) = b
		reencoded := wire.EncodeRequest(decoded)
		if !reflect.DeepEqual(encoded, reencoded) {
			t.Fatalf("encode(decode(b)) != b for %v", req)
		}
	}
}

func TestResponseRoundTrip(t *testing.T) {
	pid := int32(1234)
	cases := []wire.Response{
		wire.OkResponse(),
		wire.ErrorResponse("invalid request: %s", "bad tag"),
		wire.StatusReportResponse(nil),
		wire.StatusReportResponse([]wire.ServiceInfo{
			{Name: "a", PID: pid, Running: true},
			{Name: "b", PID: 0, Running: false},
		}),
	}
	for _, resp := range cases {
		encoded := wire.EncodeResponse(resp)
		decoded, err := wire.DecodeResponse(encoded)
		if err != nil {
			t.Fatalf("decode(encode(%v)) failed: %v", resp, err)
		}
		if !reflect.DeepEqual(resp, decoded) {
			t.Fatalf("decode(encode(%v)) = %v, want %v", resp, decoded, resp)
		}
		reencoded := wire.EncodeResponse(decoded)
		if !reflect.DeepEqual(encoded, reencoded) {
			t.Fatalf("encode(decode(b)) != b for %v", resp)
		}
	}
}

func TestDecodeRequestErrors(t *testing.T) {
	cases := [][]byte{
		nil,
		{0xFF},                                    // unknown tag
		{byte(wire.ReqStart)},                     // missing name
		{byte(wire.ReqStatus), 0x01},               // trailing byte
		{byte(wire.ReqStart), 0x05, 'h', 'i'},      // truncated string
	}
	for _, b := range cases {
		if _, err := wire.DecodeRequest(b); err == nil {
			t.Errorf("DecodeRequest(%v) succeeded, want error", b)
		}
	}
}

func TestDecodeResponseErrors(t *testing.T) {
	cases := [][]byte{
		nil,
		{0xFF},
		{byte(wire.RespOk), 0x01},
		{byte(wire.RespStatusReport), 0x02}, // claims 2 services, has 0
	}
	for _, b := range cases {
		if _, err := wire.DecodeResponse(b); err == nil {
			t.Errorf("DecodeResponse(%v) succeeded, want error", b)
		}
	}
}
