// Package protocol is the single source of truth for the command/event
// wire protocol: prefixes, argument shapes, return types, and event
// names. Both codecs (internal/codec/binary, internal/codec/text) and
// the dispatcher (internal/dispatch) consume this package rather than
// duplicating the enumeration.
package protocol

import "fmt"

// MotionHint summarises the direction implied by a drive command's wheel
// speeds, forwarded to the LocationService so it can bias its estimator.
type MotionHint uint8

const (
	MotionStationary MotionHint = iota
	MotionForwards
	MotionBackwards
)

// String renders the hint as a full word ("forwards", "backwards",
// "stationary") for debug output and log fields; the single-letter wire
// form is WireByte.
func (h MotionHint) String() string {
	switch h {
	case MotionForwards:
		return "forwards"
	case MotionBackwards:
		return "backwards"
	default:
		return "stationary"
	}
}

// WireByte returns the single ASCII letter this hint is encoded as on
// the wire ('f'/'b'/'s'), matching the original roblib parser rather
// than the Go enum's ordinal.
func (h MotionHint) WireByte() byte {
	switch h {
	case MotionForwards:
		return 'f'
	case MotionBackwards:
		return 'b'
	default:
		return 's'
	}
}

// ParseMotionHintByte is the inverse of WireByte, used by both codecs'
// decoders.
func ParseMotionHintByte(b byte) (MotionHint, error) {
	switch b {
	case 'f':
		return MotionForwards, nil
	case 'b':
		return MotionBackwards, nil
	case 's':
		return MotionStationary, nil
	default:
		return 0, fmt.Errorf("protocol: unknown motion hint byte %q", b)
	}
}

// DeriveMotionHint implements the sign-pattern rule from the glossary:
// both wheels positive ⇒ forwards, both negative ⇒ backwards, anything
// else (including a stopped or turning-in-place robot) ⇒ stationary.
func DeriveMotionHint(left, right float64) MotionHint {
	switch {
	case left > 0 && right > 0:
		return MotionForwards
	case left < 0 && right < 0:
		return MotionBackwards
	default:
		return MotionStationary
	}
}

// PinMode selects the direction of a raw GPIO pin. The wire form (a u32
// variant index under both codecs) is authoritative; string aliases
// ("input"/"output") are a convenience the binding layer may offer but
// are not part of the core protocol.
type PinMode uint32

const (
	PinModeInput PinMode = iota
	PinModeOutput
)

// ParsePinModeAlias accepts the convenience string aliases mentioned in
// the source FFI binding. It is never used by the wire codecs themselves.
func ParsePinModeAlias(s string) (PinMode, error) {
	switch s {
	case "input":
		return PinModeInput, nil
	case "output":
		return PinModeOutput, nil
	default:
		return 0, fmt.Errorf("protocol: unknown pin mode alias %q", s)
	}
}

// Position is the payload produced by LocationService.GetPosition and the
// CamlocPosition event.
type Position struct {
	X        float64
	Y        float64
	Rotation float64
}
