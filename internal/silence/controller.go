// Package silence implements the two resettable countdown timers described
// in spec.md §4.4: a silence deadline that drives session close, and a
// hardware-idle deadline that drives fleet deactivation. Both are plain
// monotonic-ms deadlines owned by the coordinator and checked on a
// periodic tick, per spec.md's "time values mixing monotonic and
// wall-clock" redesign note (§9) — no timer here is ever derived from
// wall-clock time.
package silence

// Controller owns the two deadlines. The zero value is ready to use.
type Controller struct {
	disableDelayMS     int64
	hardwareIdleDelayMS int64

	silenceDeadline  *int64 // nil means "not armed"
	hardwareDeadline *int64
}

// New returns a Controller configured with the two delays from
// config.Config (DisableDelay, HardwareIdleDelay), both in milliseconds.
func New(disableDelayMS, hardwareIdleDelayMS int64) *Controller {
	return &Controller{disableDelayMS: disableDelayMS, hardwareIdleDelayMS: hardwareIdleDelayMS}
}

// OnAudioDetected clears both deadlines: sustained audio cancels any
// pending session-close or hardware-idle countdown (spec.md §4.4).
func (c *Controller) OnAudioDetected() {
	c.silenceDeadline = nil
	c.hardwareDeadline = nil
}

// OnSilence arms the silence deadline on the first silence event after
// audio-activation. Subsequent silence events while it is already armed do
// not move it (the spec's "first OnSilence event" rule).
func (c *Controller) OnSilence(nowMS int64) {
	if c.silenceDeadline != nil {
		return
	}
	d := nowMS + c.disableDelayMS
	c.silenceDeadline = &d
}

// ArmHardwareIdle sets the hardware-idle deadline, called when the
// recorder stops (spec.md §4.4).
func (c *Controller) ArmHardwareIdle(nowMS int64) {
	d := nowMS + c.hardwareIdleDelayMS
	c.hardwareDeadline = &d
}

// SilenceExpired reports whether the silence deadline has passed. Checked
// on a periodic tick (spec.md §4.4 requires ≤100ms cadence from the
// caller).
func (c *Controller) SilenceExpired(nowMS int64) bool {
	return c.silenceDeadline != nil && nowMS >= *c.silenceDeadline
}

// HardwareIdleExpired reports whether the hardware-idle deadline has
// passed.
func (c *Controller) HardwareIdleExpired(nowMS int64) bool {
	return c.hardwareDeadline != nil && nowMS >= *c.hardwareDeadline
}

// ConsumeSilenceExpiry disarms the silence deadline once acted upon, so it
// fires exactly once per arm.
func (c *Controller) ConsumeSilenceExpiry() {
	c.silenceDeadline = nil
}

// ConsumeHardwareIdleExpiry disarms the hardware-idle deadline once acted
// upon.
func (c *Controller) ConsumeHardwareIdleExpiry() {
	c.hardwareDeadline = nil
}
