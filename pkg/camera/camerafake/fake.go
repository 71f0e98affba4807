// Package camerafake provides an in-memory camera for tests.
package camerafake

import (
	"context"
	"image"
	"image/color"
	"sync"
	"time"

	"product-scanner/pkg/camera"
	imageutil "product-scanner/pkg/utils/image"
)

type Device struct {
	lock sync.Mutex

	Caps    camera.Capabilities
	OpenErr error
	// Blank keeps new streams without a frame, as a stalled sensor would.
	Blank bool

	opened  int
	streams []*Stream
}

func NewDevice(caps camera.Capabilities) *Device {
	return &Device{Caps: caps}
}

func (d *Device) Open(_ context.Context, _ camera.StreamRequest) (camera.Stream, error) {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.OpenErr != nil {
		return nil, d.OpenErr
	}
	s := &Stream{caps: d.Caps}
	if !d.Blank {
		s.SetImage(Gray(64, 48, 128))
	}
	d.opened++
	d.streams = append(d.streams, s)

	return s, nil
}

func (d *Device) Opened() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.opened
}

// Last returns the most recently opened stream.
func (d *Device) Last() *Stream {
	d.lock.Lock()
	defer d.lock.Unlock()
	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

type Stream struct {
	lock sync.Mutex

	caps     camera.Capabilities
	frame    camera.Frame
	hasFrame bool
	seq      uint64
	closed   int
	applied  []camera.Constraint
	ApplyErr error
}

// SetFrame replaces the current frame; a nil frame makes Frame report nothing.
func (s *Stream) SetFrame(f *camera.Frame) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if f == nil {
		s.hasFrame = false
		return
	}
	s.seq++
	s.frame = *f
	s.frame.Seq = s.seq
	s.frame.Time = time.Now()
	s.hasFrame = true
}

// SetImage encodes img as JPEG and makes it the current frame.
func (s *Stream) SetImage(img image.Image) {
	data, err := imageutil.EncodeJPEGBytes(img, imageutil.DefaultQuality)
	if err != nil {
		panic(err)
	}
	b := img.Bounds()
	s.SetFrame(&camera.Frame{Data: data, Format: camera.FormatJPEG, Width: b.Dx(), Height: b.Dy()})
}

// SetApplyErr makes every following Apply fail with err, nil restores it.
func (s *Stream) SetApplyErr(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.ApplyErr = err
}

func (s *Stream) Capabilities() camera.Capabilities {
	return s.caps
}

func (s *Stream) Apply(_ context.Context, c camera.Constraint) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed > 0 {
		return camera.ErrStreamClosed
	}
	if s.ApplyErr != nil {
		return s.ApplyErr
	}
	s.applied = append(s.applied, c)
	return nil
}

func (s *Stream) Frame() (camera.Frame, bool) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.closed > 0 || !s.hasFrame {
		return camera.Frame{}, false
	}
	return s.frame, true
}

func (s *Stream) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed++
	return nil
}

func (s *Stream) Closed() bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.closed > 0
}

func (s *Stream) Applied() []camera.Constraint {
	s.lock.Lock()
	defer s.lock.Unlock()
	return append([]camera.Constraint(nil), s.applied...)
}

// Torches returns the torch values applied so far, in order.
func (s *Stream) Torches() []bool {
	var res []bool
	for _, c := range s.Applied() {
		if c.Torch != nil {
			res = append(res, *c.Torch)
		}
	}
	return res
}

// FocusModes returns the focus modes applied so far, in order.
func (s *Stream) FocusModes() []camera.FocusMode {
	var res []camera.FocusMode
	for _, c := range s.Applied() {
		if c.FocusMode != "" {
			res = append(res, c.FocusMode)
		}
	}
	return res
}

// Gray returns a uniform image of the given luminance.
func Gray(w, h int, y uint8) image.Image {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = y
	}
	return img
}

// Solid returns a uniform colour image.
func Solid(w, h int, c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}
