package text

import (
	"fmt"

	"github.com/kareszklub/roblibd/internal/protocol"
)

// EncodeRequest writes a multiplexed request: "<id> <prefix> <args...>"
// (§6 "For transports that multiplex, the request is prefixed by <id>
// token"). STREAM and DUPLEX-MSG use this form.
func EncodeRequest(id uint32, cmd protocol.Command) (string, error) {
	w := NewWriter()
	w.WriteU32(id)
	if err := EncodeCommand(w, cmd); err != nil {
		return "", err
	}
	return w.String(), nil
}

// DecodeRequest reads a multiplexed request line produced by EncodeRequest.
func DecodeRequest(s string) (id uint32, cmd protocol.Command, err error) {
	r := NewReader(s)
	id, err = r.ReadU32()
	if err != nil {
		return 0, nil, err
	}
	cmd, err = DecodeCommand(r)
	if err != nil {
		return 0, nil, err
	}
	return id, cmd, nil
}

// EncodeRequestUnframed writes a bare "<prefix> <args...>" request with no
// id token, for REQ-RESP (§6: "the request body is a single text-encoded
// command" — this transport carries exactly one command per body, so no
// correlation id is needed on the wire).
func EncodeRequestUnframed(cmd protocol.Command) (string, error) {
	w := NewWriter()
	if err := EncodeCommand(w, cmd); err != nil {
		return "", err
	}
	return w.String(), nil
}

// DecodeRequestUnframed reads a bare command body, as sent on REQ-RESP.
func DecodeRequestUnframed(s string) (protocol.Command, error) {
	r := NewReader(s)
	return DecodeCommand(r)
}

// EncodeResponse writes a multiplexed response: "<id> <return...>".
func EncodeResponse(id uint32, prefix byte, value any) (string, error) {
	w := NewWriter()
	w.WriteU32(id)
	if err := EncodeReturn(w, prefix, value); err != nil {
		return "", err
	}
	return w.String(), nil
}

// DecodeResponse reads a multiplexed response given the prefix of the
// command that produced it.
func DecodeResponse(s string, prefix byte) (id uint32, value any, err error) {
	r := NewReader(s)
	id, err = r.ReadU32()
	if err != nil {
		return 0, nil, err
	}
	value, err = DecodeReturn(r, prefix)
	if err != nil {
		return 0, nil, err
	}
	return id, value, nil
}

// EncodeResponseUnframed writes a bare return value, as sent on REQ-RESP
// ("the response body is its text-encoded return").
func EncodeResponseUnframed(prefix byte, value any) (string, error) {
	w := NewWriter()
	if err := EncodeReturn(w, prefix, value); err != nil {
		return "", err
	}
	return w.String(), nil
}

// DecodeResponseUnframed reads a bare return value.
func DecodeResponseUnframed(s string, prefix byte) (any, error) {
	r := NewReader(s)
	return DecodeReturn(r, prefix)
}

// EncodeEvent writes a multiplexed event delivery: "<id> <value...>", where
// id is the subscription id that established the stream.
func EncodeEvent(id uint32, key protocol.EventKey, value any) (string, error) {
	w := NewWriter()
	w.WriteU32(id)
	if err := EncodeEventValue(w, key, value); err != nil {
		return "", err
	}
	return w.String(), nil
}

// DecodeEvent reads a multiplexed event delivery.
func DecodeEvent(s string) (id uint32, key protocol.EventKey, value any, err error) {
	r := NewReader(s)
	id, err = r.ReadU32()
	if err != nil {
		return 0, nil, nil, err
	}
	key, value, err = DecodeEventValue(r)
	if err != nil {
		return 0, nil, nil, err
	}
	return id, key, value, nil
}

// ErrMessageTooLarge mirrors binary.ErrMessageTooLarge for DGRAM-facing text
// encoders, should a text-framed datagram transport ever be added.
var ErrMessageTooLarge = fmt.Errorf("text: message exceeds datagram cap")
