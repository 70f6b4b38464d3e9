package binary

import (
	"fmt"
	"io"

	"github.com/kareszklub/roblibd/internal/protocol"
)

// EncodeRequestFrame writes the full STREAM request frame: a u32 length
// header covering everything after it, then (id, Command) (§6 "Wire —
// binary"). DGRAM uses EncodeRequestBody directly and omits the header —
// the datagram boundary itself supplies the length.
func EncodeRequestFrame(id uint32, cmd protocol.Command) ([]byte, error) {
	body, err := EncodeRequestBody(id, cmd)
	if err != nil {
		return nil, err
	}
	header := NewWriter()
	header.WriteU32(uint32(len(body)))
	return append(header.Bytes(), body...), nil
}

// EncodeRequestBody writes (id:u32_be, prefix:u8, args...) with no outer
// length header.
func EncodeRequestBody(id uint32, cmd protocol.Command) ([]byte, error) {
	w := NewWriter()
	w.WriteU32(id)
	if err := EncodeCommand(w, cmd); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// DecodeRequestFrame reads a length-prefixed STREAM request frame from r.
func DecodeRequestFrame(r io.Reader) (id uint32, cmd protocol.Command, err error) {
	lenReader := NewReader(r)
	bodyLen, err := lenReader.ReadU32()
	if err != nil {
		return 0, nil, err
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, decodeErr("short-frame", err)
	}
	return DecodeRequestBody(body)
}

// DecodeRequestBody reads (id, Command) from a bare byte slice (DGRAM, or a
// STREAM frame body already split out by its length header).
func DecodeRequestBody(body []byte) (id uint32, cmd protocol.Command, err error) {
	r := NewReaderBytes(body)
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

// EncodeResponse writes (id:u32_be, return...). Callers frame this with a
// length header themselves on STREAM (matching the request framing);
// DGRAM sends it as a bare datagram body.
func EncodeResponse(id uint32, prefix byte, value any) ([]byte, error) {
	w := NewWriter()
	w.WriteU32(id)
	if err := EncodeReturn(w, prefix, value); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// DecodeResponse reads (id, return) given the prefix of the command that
// produced it — the client must remember which prefix it sent under this
// id, since the wire form carries no type tag for the return value.
func DecodeResponse(body []byte, prefix byte) (id uint32, value any, err error) {
	r := NewReaderBytes(body)
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

// EncodeEvent writes (id:u32_be, value...) for an event delivery, where id
// is the subscription id that established it (§6).
func EncodeEvent(id uint32, key protocol.EventKey, value any) ([]byte, error) {
	w := NewWriter()
	w.WriteU32(id)
	if err := EncodeEventValue(w, key, value); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// DecodeEvent reads (id, ConcreteValue) from an event delivery.
func DecodeEvent(body []byte) (id uint32, key protocol.EventKey, value any, err error) {
	r := NewReaderBytes(body)
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

// ErrMessageTooLarge is reported by the DGRAM transport's send path
// (wrapped in a TransportError) when a frame would exceed its buffer cap (§4.G DGRAM: "Buffer cap 1024
// bytes; larger messages fail with MessageTooLarge").
var ErrMessageTooLarge = fmt.Errorf("binary: message exceeds datagram cap")
