// Package exposure samples scene brightness and decides flash and refocus
// actions from it.
package exposure

import (
	"image"
	"math"

	"golang.org/x/image/draw"
)

type Config struct {
	Grid          int
	FlashOnBelow  float64
	FlashOffAbove float64
	RefocusDelta  float64
}

func DefaultConfig() Config {
	return Config{Grid: 64, FlashOnBelow: 50, FlashOffAbove: 180, RefocusDelta: 8}
}

// Luminance scales img down to a grid×grid square and returns the mean of
// (r+g+b)/3 over every sampled pixel, in 0-255.
func Luminance(img image.Image, grid int) float64 {
	if img == nil || grid <= 0 || img.Bounds().Empty() {
		return 0
	}
	dst := image.NewRGBA(image.Rect(0, 0, grid, grid))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, img.Bounds(), draw.Src, nil)

	var total float64
	for i := 0; i+3 < len(dst.Pix); i += 4 {
		total += (float64(dst.Pix[i]) + float64(dst.Pix[i+1]) + float64(dst.Pix[i+2])) / 3
	}
	return total / float64(grid*grid)
}

// Input is what the autopilot needs to know about the session at a sample.
type Input struct {
	Luminance float64
	FlashOn   bool
	AutoFlash bool
	// CanRefocus is false on hardware with continuous autofocus and while a
	// capture is running.
	CanRefocus bool
}

type Decision struct {
	// Flash is the torch state to apply, nil to leave it alone.
	Flash   *bool
	Refocus bool
}

// Autopilot keeps the previous sample between calls. Not safe for concurrent use.
type Autopilot struct {
	cfg  Config
	last float64
	seen bool
}

func NewAutopilot(cfg Config) *Autopilot {
	return &Autopilot{cfg: cfg}
}

// Observe feeds one sample. Flash switches on below FlashOnBelow and back off
// above FlashOffAbove, so values between the two never toggle it.
func (a *Autopilot) Observe(in Input) Decision {
	var d Decision
	if in.AutoFlash {
		switch {
		case !in.FlashOn && in.Luminance < a.cfg.FlashOnBelow:
			on := true
			d.Flash = &on
		case in.FlashOn && in.Luminance > a.cfg.FlashOffAbove:
			off := false
			d.Flash = &off
		}
	}
	if in.CanRefocus && a.seen && math.Abs(in.Luminance-a.last) > a.cfg.RefocusDelta {
		d.Refocus = true
	}
	a.last = in.Luminance
	a.seen = true

	return d
}

// Last returns the previous sample, ok is false before the first one.
func (a *Autopilot) Last() (float64, bool) {
	return a.last, a.seen
}

func (a *Autopilot) Reset() {
	a.last = 0
	a.seen = false
}
