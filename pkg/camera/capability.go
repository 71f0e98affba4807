package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"time"

	imageutil "product-scanner/pkg/utils/image"
)

var (
	ErrCameraUnavailable = errors.New("camera is not available")
	ErrPermissionDenied  = errors.New("camera permission denied")
	ErrPlaybackFailed    = errors.New("could not start camera view")
	ErrNotSupported      = errors.New("constraint not supported by camera")
	ErrStreamClosed      = errors.New("camera stream closed")
)

type FocusMode string

const (
	FocusContinuous FocusMode = "continuous"
	FocusSingleShot FocusMode = "single-shot"
	FocusManual     FocusMode = "manual"
)

type ExposureMode string

const (
	ExposureContinuous ExposureMode = "continuous"
	ExposureManual     ExposureMode = "manual"
)

type WhiteBalanceMode string

const (
	WhiteBalanceContinuous WhiteBalanceMode = "continuous"
	WhiteBalanceManual     WhiteBalanceMode = "manual"
)

type Range struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Step float64 `json:"step"`
}

// Clamp limits v to the range and snaps it onto the step grid.
func (r Range) Clamp(v float64) float64 {
	if v < r.Min {
		v = r.Min
	}
	if v > r.Max {
		v = r.Max
	}
	if r.Step > 0 {
		n := (v - r.Min) / r.Step
		v = r.Min + float64(int64(n+0.5))*r.Step
		if v > r.Max {
			v = r.Max
		}
	}

	return v
}

// Capabilities is the hardware report read once when a stream is opened.
// Nil ranges mean the control does not exist on the device.
type Capabilities struct {
	Zoom              *Range             `json:"zoom,omitempty"`
	Exposure          *Range             `json:"exposure,omitempty"`
	Torch             bool               `json:"torch"`
	FocusModes        []FocusMode        `json:"focusModes,omitempty"`
	ExposureModes     []ExposureMode     `json:"exposureModes,omitempty"`
	WhiteBalanceModes []WhiteBalanceMode `json:"whiteBalanceModes,omitempty"`
}

func (c Capabilities) HasFocus(m FocusMode) bool {
	return slices.Contains(c.FocusModes, m)
}

func (c Capabilities) HasExposure(m ExposureMode) bool {
	return slices.Contains(c.ExposureModes, m)
}

func (c Capabilities) HasWhiteBalance(m WhiteBalanceMode) bool {
	return slices.Contains(c.WhiteBalanceModes, m)
}

// Constraint is one change to apply to a running stream. Only the set
// fields are applied.
type Constraint struct {
	Zoom             *float64
	Exposure         *float64
	Torch            *bool
	FocusMode        FocusMode
	ExposureMode     ExposureMode
	WhiteBalanceMode WhiteBalanceMode
}

func ZoomTo(v float64) Constraint     { return Constraint{Zoom: &v} }
func ExposureTo(v float64) Constraint { return Constraint{Exposure: &v} }
func TorchTo(on bool) Constraint      { return Constraint{Torch: &on} }
func FocusTo(m FocusMode) Constraint  { return Constraint{FocusMode: m} }

func (c Constraint) String() string {
	switch {
	case c.Zoom != nil:
		return fmt.Sprintf("zoom=%v", *c.Zoom)
	case c.Exposure != nil:
		return fmt.Sprintf("exposure=%v", *c.Exposure)
	case c.Torch != nil:
		return fmt.Sprintf("torch=%v", *c.Torch)
	case c.FocusMode != "":
		return "focusMode=" + string(c.FocusMode)
	case c.ExposureMode != "":
		return "exposureMode=" + string(c.ExposureMode)
	case c.WhiteBalanceMode != "":
		return "whiteBalanceMode=" + string(c.WhiteBalanceMode)
	}
	return "none"
}

type PixelFormat string

const (
	FormatJPEG    PixelFormat = "jpeg"
	FormatRGB24   PixelFormat = "rgb24"
	FormatUnknown PixelFormat = "unknown"
)

type Frame struct {
	Seq    uint64
	Data   []byte
	Format PixelFormat
	Width  int
	Height int
	Time   time.Time
}

// Image decodes the frame into something the detector and the samplers can read.
func (f Frame) Image() (image.Image, error) {
	switch f.Format {
	case FormatJPEG:
		return imageutil.DecodeJPEG(f.Data)
	case FormatRGB24:
		return imageutil.WrapRGB(f.Data, f.Width, f.Height)
	}

	return nil, fmt.Errorf("pixel format %q can not be decoded", f.Format)
}

type StreamRequest struct {
	// Facing is a hint for devices with several sensors, "environment" is the rear one.
	Facing     string
	Width      int
	Height     int
	FPS        int
	BufferSize int
}

// Device opens camera streams. Implementations report ErrCameraUnavailable,
// ErrPermissionDenied or ErrPlaybackFailed (possibly wrapped).
type Device interface {
	Open(ctx context.Context, req StreamRequest) (Stream, error)
}

// Stream is one open hardware stream. Frame and Apply are safe for
// concurrent use; Close is idempotent.
type Stream interface {
	Capabilities() Capabilities
	Apply(ctx context.Context, c Constraint) error
	// Frame returns the newest frame, false while nothing has been delivered
	// yet or after the stream stopped.
	Frame() (Frame, bool)
	Close() error
}
