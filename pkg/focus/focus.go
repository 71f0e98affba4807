// Package focus decides when and how to refocus the camera. It holds no
// timers itself: every accepted trigger returns an Action telling the owner
// which mode to apply and which follow-ups to schedule.
package focus

import (
	"time"

	"product-scanner/pkg/camera"
)

type Status string

const (
	StatusIdle     Status = "idle"
	StatusFocusing Status = "focusing"
	StatusSuccess  Status = "success"
)

// Point is a tap position in percent of the preview, 0-100 on both axes.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Valid() bool {
	return p.X >= 0 && p.X <= 100 && p.Y >= 0 && p.Y <= 100
}

type Config struct {
	ManualThrottle   time.Duration
	AutoThrottle     time.Duration
	Periodic         time.Duration
	RevertDelay      time.Duration
	SettleManual     time.Duration
	SettleContinuous time.Duration
	BlurDuration     time.Duration
	ReticleDuration  time.Duration
}

func DefaultConfig() Config {
	return Config{
		ManualThrottle:   500 * time.Millisecond,
		AutoThrottle:     2 * time.Second,
		Periodic:         4 * time.Second,
		RevertDelay:      1200 * time.Millisecond,
		SettleManual:     600 * time.Millisecond,
		SettleContinuous: 150 * time.Millisecond,
		BlurDuration:     800 * time.Millisecond,
		ReticleDuration:  2 * time.Second,
	}
}

// Action is the result of an accepted trigger.
type Action struct {
	Epoch uint64
	// Mode is the focus mode to apply now, empty when nothing applies.
	Mode camera.FocusMode
	// RevertAfter, when set, asks for continuous focus to be re-applied after
	// the delay unless a capture is running by then.
	RevertAfter time.Duration
	// SettleAfter and ExpireAfter drive the visual status.
	SettleAfter time.Duration
	ExpireAfter time.Duration
}

type State struct {
	Status     Status    `json:"status"`
	Reticle    *Point    `json:"reticle,omitempty"`
	InProgress bool      `json:"inProgress"`
	Continuous bool      `json:"continuous"`
	LastFocus  time.Time `json:"lastFocus"`
}

type Controller struct {
	cfg        Config
	caps       camera.Capabilities
	continuous bool

	last         time.Time
	inProgress   bool
	status       Status
	reticle      *Point
	epoch        uint64
	reticleEpoch uint64
}

// New builds a controller for one session. continuous is the negotiated
// continuous-autofocus flag and never changes afterwards.
func New(cfg Config, caps camera.Capabilities, continuous bool) *Controller {
	return &Controller{cfg: cfg, caps: caps, continuous: continuous, status: StatusIdle}
}

func (c *Controller) Continuous() bool {
	return c.continuous
}

// Trigger requests a focus pass, at p for a tap or untargeted when p is nil.
// Taps are throttled to one per ManualThrottle, automatic passes to one per
// AutoThrottle, both measured from the last accepted pass of any kind.
func (c *Controller) Trigger(now time.Time, p *Point) (Action, bool) {
	throttle := c.cfg.AutoThrottle
	if p != nil {
		throttle = c.cfg.ManualThrottle
	}
	if !c.last.IsZero() && now.Sub(c.last) < throttle {
		return Action{}, false
	}
	c.last = now
	c.epoch++
	c.inProgress = true
	c.status = StatusFocusing
	if p != nil {
		pt := *p
		c.reticle = &pt
		c.reticleEpoch = c.epoch
	}

	a := Action{
		Epoch:       c.epoch,
		SettleAfter: c.cfg.BlurDuration,
		ExpireAfter: c.cfg.ReticleDuration,
	}
	single := c.caps.HasFocus(camera.FocusSingleShot)
	cont := c.caps.HasFocus(camera.FocusContinuous)
	switch {
	case single:
		a.Mode = camera.FocusSingleShot
	case cont && p == nil:
		a.Mode = camera.FocusContinuous
	}
	if single && cont {
		a.RevertAfter = c.cfg.RevertDelay
	}

	return a, true
}

// Settled ends the focusing phase of the pass with the given epoch.
func (c *Controller) Settled(epoch uint64) {
	if epoch != c.epoch {
		return
	}
	c.inProgress = false
	c.status = StatusSuccess
}

// Expired returns the status to idle and hides the reticle it placed, unless
// a newer pass took over in the meantime.
func (c *Controller) Expired(epoch uint64) {
	if epoch == c.epoch {
		c.inProgress = false
		c.status = StatusIdle
	}
	if epoch == c.reticleEpoch {
		c.reticle = nil
	}
}

// PreCapture returns how long to wait before sampling a still. Without
// continuous autofocus it also starts an untargeted pass, which may be
// throttled away; the settle delay applies either way.
func (c *Controller) PreCapture(now time.Time) (Action, bool, time.Duration) {
	if c.continuous {
		return Action{}, false, c.cfg.SettleContinuous
	}
	a, ok := c.Trigger(now, nil)
	return a, ok, c.cfg.SettleManual
}

// Due reports whether hardware without continuous autofocus has gone long
// enough without a focus pass to need one.
func (c *Controller) Due(now time.Time) bool {
	if c.continuous || c.cfg.Periodic <= 0 {
		return false
	}
	return now.Sub(c.last) > c.cfg.Periodic
}

func (c *Controller) State() State {
	s := State{
		Status:     c.status,
		InProgress: c.inProgress,
		Continuous: c.continuous,
		LastFocus:  c.last,
	}
	if c.reticle != nil {
		pt := *c.reticle
		s.Reticle = &pt
	}
	return s
}
