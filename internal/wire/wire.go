// Package wire implements the control-socket codec shared by the
// supervisor and its clients.
//
// The encoding is a small, self-delimiting, tagged-variant binary
// format: one tag byte identifying the variant, followed by that
// variant's fields. Strings are uvarint-length-prefixed; there is no
// top-level length prefix because the control protocol relies on the
// client half-closing its write side (see internal/control).
//
// No library in this repository's dependency set implements a codec
// shaped like this one (self-delimiting tagged unions, no outer
// length prefix) — see DESIGN.md for why this is one of the few
// hand-rolled, standard-library-only corners of sima.
package wire

import (
	"encoding/binary"
	"fmt"
)

// Request is a control-socket request, tagged by Kind.
type Request struct {
	Kind RequestKind
	Name string // valid for Start, Stop, Restart
}

type RequestKind byte

const (
	ReqStart RequestKind = iota + 1
	ReqStop
	ReqRestart
	ReqStatus
	ReqPoweroff
	ReqReboot
	ReqSoftReboot
)

func (k RequestKind) String() string {
	switch k {
	case ReqStart:
		return "Start"
	case ReqStop:
		return "Stop"
	case ReqRestart:
		return "Restart"
	case ReqStatus:
		return "Status"
	case ReqPoweroff:
		return "Poweroff"
	case ReqReboot:
		return "Reboot"
	case ReqSoftReboot:
		return "SoftReboot"
	default:
		return fmt.Sprintf("RequestKind(%d)", byte(k))
	}
}

// ServiceInfo is the externally visible projection of a service's state.
type ServiceInfo struct {
	Name    string
	PID     int32 // 0 if not running; PIDs are always >= 1
	Running bool
}

// Response is a tagged variant mirroring ControlResponse in the spec.
type Response struct {
	Kind     ResponseKind
	Error    string        // valid for RespError
	Services []ServiceInfo // valid for RespStatusReport
}

type ResponseKind byte

const (
	RespOk ResponseKind = iota + 1
	RespError
	RespStatusReport
)

// StartRequest, StopRequest etc. are convenience constructors used by
// both the control server (decoding) and the client (encoding).

func StartRequest(name string) Request   { return Request{Kind: ReqStart, Name: name} }
func StopRequest(name string) Request    { return Request{Kind: ReqStop, Name: name} }
func RestartRequest(name string) Request { return Request{Kind: ReqRestart, Name: name} }
func StatusRequest() Request             { return Request{Kind: ReqStatus} }
func PoweroffRequest() Request           { return Request{Kind: ReqPoweroff} }
func RebootRequest() Request             { return Request{Kind: ReqReboot} }
func SoftRebootRequest() Request         { return Request{Kind: ReqSoftReboot} }

func OkResponse() Response { return Response{Kind: RespOk} }

func ErrorResponse(format string, v ...any) Response {
	return Response{Kind: RespError, Error: fmt.Sprintf(format, v...)}
}

func StatusReportResponse(services []ServiceInfo) Response {
	return Response{Kind: RespStatusReport, Services: services}
}

// EncodeRequest serializes req into the wire format described above.
func EncodeRequest(req Request) []byte {
	var buf []byte
	buf = append(buf, byte(req.Kind))
	switch req.Kind {
	case ReqStart, ReqStop, ReqRestart:
		buf = appendString(buf, req.Name)
	case ReqStatus, ReqPoweroff, ReqReboot, ReqSoftReboot:
		// no payload
	}
	return buf
}

// DecodeRequest parses a Request from b, returning an error if b is
// malformed or contains trailing bytes.
func DecodeRequest(b []byte) (Request, error) {
	if len(b) == 0 {
		return Request{}, fmt.Errorf("empty request")
	}
	kind := RequestKind(b[0])
	rest := b[1:]
	var req Request
	req.Kind = kind
	switch kind {
	case ReqStart, ReqStop, ReqRestart:
		name, rest2, err := readString(rest)
		if err != nil {
			return Request{}, fmt.Errorf("decoding %s name: %w", kind, err)
		}
		if len(rest2) != 0 {
			return Request{}, fmt.Errorf("trailing bytes after %s request", kind)
		}
		req.Name = name
	case ReqStatus, ReqPoweroff, ReqReboot, ReqSoftReboot:
		if len(rest) != 0 {
			return Request{}, fmt.Errorf("trailing bytes after %s request", kind)
		}
	default:
		return Request{}, fmt.Errorf("unknown request tag %d", byte(kind))
	}
	return req, nil
}

// EncodeResponse serializes resp into the wire format described above.
func EncodeResponse(resp Response) []byte {
	var buf []byte
	buf = append(buf, byte(resp.Kind))
	switch resp.Kind {
	case RespOk:
		// no payload
	case RespError:
		buf = appendString(buf, resp.Error)
	case RespStatusReport:
		buf = appendUvarint(buf, uint64(len(resp.Services)))
		for _, svc := range resp.Services {
			buf = appendString(buf, svc.Name)
			buf = appendBool(buf, svc.PID != 0)
			if svc.PID != 0 {
				buf = appendUvarint(buf, uint64(svc.PID))
			}
			buf = appendBool(buf, svc.Running)
		}
	}
	return buf
}

// DecodeResponse parses a Response from b.
func DecodeResponse(b []byte) (Response, error) {
	if len(b) == 0 {
		return Response{}, fmt.Errorf("empty response")
	}
	kind := ResponseKind(b[0])
	rest := b[1:]
	var resp Response
	resp.Kind = kind
	switch kind {
	case RespOk:
		if len(rest) != 0 {
			return Response{}, fmt.Errorf("trailing bytes after Ok response")
		}
	case RespError:
		msg, rest2, err := readString(rest)
		if err != nil {
			return Response{}, fmt.Errorf("decoding Error message: %w", err)
		}
		if len(rest2) != 0 {
			return Response{}, fmt.Errorf("trailing bytes after Error response")
		}
		resp.Error = msg
	case RespStatusReport:
		n, rest2, err := readUvarint(rest)
		if err != nil {
			return Response{}, fmt.Errorf("decoding StatusReport length: %w", err)
		}
		// An empty report decodes to a nil list, the same value
		// StatusReportResponse(nil) encodes from.
		var services []ServiceInfo
		if n > 0 {
			services = make([]ServiceInfo, 0, n)
		}
		for i := uint64(0); i < n; i++ {
			var svc ServiceInfo
			var hasPID bool
			svc.Name, rest2, err = readString(rest2)
			if err != nil {
				return Response{}, fmt.Errorf("decoding service %d name: %w", i, err)
			}
			hasPID, rest2, err = readBool(rest2)
			if err != nil {
				return Response{}, fmt.Errorf("decoding service %d pid flag: %w", i, err)
			}
			if hasPID {
				var pid uint64
				pid, rest2, err = readUvarint(rest2)
				if err != nil {
					return Response{}, fmt.Errorf("decoding service %d pid: %w", i, err)
				}
				svc.PID = int32(pid)
			}
			svc.Running, rest2, err = readBool(rest2)
			if err != nil {
				return Response{}, fmt.Errorf("decoding service %d running flag: %w", i, err)
			}
			services = append(services, svc)
		}
		if len(rest2) != 0 {
			return Response{}, fmt.Errorf("trailing bytes after StatusReport response")
		}
		resp.Services = services
	default:
		return Response{}, fmt.Errorf("unknown response tag %d", byte(kind))
	}
	return resp, nil
}

func appendUvarint(b []byte, v uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	return append(b, tmp[:n]...)
}

func readUvarint(b []byte) (uint64, []byte, error) {
	v, n := binary.Uvarint(b)
	if n <= 0 {
		return 0, nil, fmt.Errorf("malformed varint")
	}
	return v, b[n:], nil
}

func appendString(b []byte, s string) []byte {
	b = appendUvarint(b, uint64(len(s)))
	return append(b, s...)
}

func readString(b []byte) (string, []byte, error) {
	n, rest, err := readUvarint(b)
	if err != nil {
		return "", nil, err
	}
	if uint64(len(rest)) < n {
		return "", nil, fmt.Errorf("truncated string (want %d bytes, have %d)", n, len(rest))
	}
	return string(rest[:n]), rest[n:], nil
}

func appendBool(b []byte, v bool) []byte {
	if v {
		return append(b, 1)
	}
	return append(b, 0)
}

func readBool(b []byte) (bool, []byte, error) {
	if len(b) == 0 {
		return false, nil, fmt.Errorf("truncated bool")
	}
	if b[0] > 1 {
		return false, nil, fmt.Errorf("malformed bool byte %d", b[0])
	}
	return b[0] == 1, b[1:], nil
}
