package eventbus

import (
	"github.com/kareszklub/roblibd/internal/logging"
	"github.com/kareszklub/roblibd/internal/protocol"
)

// activateGpio registers a pin-change handler with the Gpio backend
// that re-emits every level change as a GpioPinKey event (§4.F
// "GpioPin(n): register a pin-change handler that emits
// (GpioPin(n), new_level)"). A nil backend is a no-op: the pin simply
// never fires, matching the absent-backend defaults elsewhere.
func (b *Bus) activateGpio(key protocol.GpioPinKey) error {
	if b.backends.Gpio == nil {
		return nil
	}
	return b.backends.Gpio.Subscribe(key.Pin, func(level bool) {
		b.emitLocked(&key, level)
	})
}

// deactivateGpio tears down the pin-change handler once the last
// GpioPin(n) subscriber leaves.
func (b *Bus) deactivateGpio(key protocol.GpioPinKey) {
	if b.backends.Gpio == nil {
		return
	}
	if err := b.backends.Gpio.Unsubscribe(key.Pin); err != nil {
		b.logger.Warn("gpio unsubscribe failed", logging.Int("pin", int(key.Pin)), logging.Error(err))
	}
}
