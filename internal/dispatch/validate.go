package dispatch

import (
	"fmt"

	roberrors "github.com/kareszklub/roblibd/internal/errors"
)

// Range is the inclusive [Min, Max] bound for a float argument.
// SPEC_FULL.md §4.N only specifies static range checks, not per-frame
// rate-of-change limits, so there is no delta/cooldown tracking here.
type Range struct {
	Min float64
	Max float64
}

func (r Range) contains(v float64) bool { return v >= r.Min && v <= r.Max }

// Argument ranges named in SPEC_FULL.md §4.N.
var (
	unitRange         = Range{Min: -1.0, Max: 1.0}
	unitIntervalRange = Range{Min: 0.0, Max: 1.0}
	servoDegreeRange  = Range{Min: 0, Max: 180}
)

const maxPin = 64

func validateUnit(name string, v float64) error {
	return validateRange(name, v, unitRange)
}

func validateUnitInterval(name string, v float64) error {
	return validateRange(name, v, unitIntervalRange)
}

func validateServoDegrees(degrees float64) error {
	return validateRange("degrees", degrees, servoDegreeRange)
}

func validateRange(name string, v float64, r Range) error {
	if r.contains(v) {
		return nil
	}
	return roberrors.NewBackendError(
		roberrors.BackendKindInvalidArgument,
		fmt.Errorf("%s=%v out of range [%v, %v]", name, v, r.Min, r.Max),
	)
}

func validatePin(pin uint8) error {
	if pin < maxPin {
		return nil
	}
	return roberrors.NewBackendError(
		roberrors.BackendKindInvalidArgument,
		fmt.Errorf("pin=%d out of range [0, %d)", pin, maxPin),
	)
}
