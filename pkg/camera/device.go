package camera

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	"product-scanner/pkg/types"
)

const (
	DefaultDevice = "/dev/video0"
	DefaultFPS    = 30
)

// V4L2Device opens MJPEG streams on a video4linux node.
type V4L2Device struct {
	devName string
}

func NewV4L2(devName string) *V4L2Device {
	if devName == "" {
		devName = DefaultDevice
	}
	return &V4L2Device{devName: devName}
}

func (d *V4L2Device) Open(_ context.Context, req StreamRequest) (Stream, error) {
	if _, err := os.Stat(d.devName); err != nil {
		return nil, classifyOpenErr(d.devName, err)
	}
	fps := req.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	bufSize := req.BufferSize
	if bufSize <= 0 {
		bufSize = 2
	}
	logger.Infof("open %s in %d*%d@%d", d.devName, req.Width, req.Height, fps)
	dev, err := device.Open(
		d.devName,
		device.WithBufferSize(uint32(bufSize)),
		device.WithFPS(uint32(fps)),
		device.WithPixFormat(v4l2.PixFormat{
			PixelFormat: v4l2.PixelFmtMJPEG,
			Width:       uint32(req.Width),
			Height:      uint32(req.Height),
		}),
	)
	if err != nil {
		return nil, classifyOpenErr(d.devName, err)
	}

	// the stream outlives the request that opened it
	ctx, cancel := context.WithCancel(context.Background())
	if err = dev.Start(ctx); err != nil {
		cancel()
		_ = dev.Close()
		return nil, fmt.Errorf("%w: %w", ErrPlaybackFailed, err)
	}

	s := &v4l2Stream{
		dev:    dev,
		cancel: cancel,
		format: FormatJPEG,
		width:  req.Width,
		height: req.Height,
	}
	if pf, err := v4l2.GetPixFormat(dev.Fd()); err == nil {
		// the driver may have degraded the requested size
		s.width, s.height = int(pf.Width), int(pf.Height)
		s.format = pixelFormatOf(pf.PixelFormat)
	}
	s.caps, s.exposureAuto = queryCapabilities(func(id v4l2.CtrlID) (v4l2.Control, error) {
		return v4l2.GetControl(dev.Fd(), id)
	})
	s.pump = newFramePump(s.format, s.width, s.height)
	go s.pump.run(ctx, dev.GetOutput())

	return s, nil
}

// Settings reads the current value of every control this package knows about.
func (d *V4L2Device) Settings() (types.CameraSettings, []v4l2.Control, error) {
	dev, err := device.Open(d.devName, device.WithBufferSize(1))
	if err != nil {
		return nil, nil, classifyOpenErr(d.devName, err)
	}
	defer dev.Close()

	res := make(types.CameraSettings)
	var ctrls []v4l2.Control
	for _, id := range knownCtrlID {
		ctrl, err := v4l2.GetControl(dev.Fd(), id)
		if err != nil {
			continue
		}
		res[ctrl.ID] = ctrl.Value
		ctrls = append(ctrls, ctrl)
	}

	return res, ctrls, nil
}

func classifyOpenErr(devName string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrCameraUnavailable, devName)
	case errors.Is(err, fs.ErrPermission), strings.Contains(strings.ToLower(err.Error()), "permission denied"):
		return fmt.Errorf("%w: %s", ErrPermissionDenied, devName)
	case isBusyErr(err):
		return fmt.Errorf("%w: %s is busy", ErrCameraUnavailable, devName)
	}

	return fmt.Errorf("%w: %w", ErrCameraUnavailable, err)
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "busy") || strings.Contains(s, "ebusy")
}

func pixelFormatOf(f v4l2.FourCCType) PixelFormat {
	switch f {
	case v4l2.PixelFmtMJPEG, v4l2.PixelFmtJPEG:
		return FormatJPEG
	case v4l2.PixelFmtRGB24:
		return FormatRGB24
	}
	return FormatUnknown
}

type v4l2Stream struct {
	lock   sync.Mutex
	dev    *device.Device
	cancel context.CancelFunc
	pump   *framePump

	format        PixelFormat
	width, height int

	caps         Capabilities
	exposureAuto v4l2.CtrlValue
}

func (s *v4l2Stream) Capabilities() Capabilities {
	return s.caps
}

func (s *v4l2Stream) Frame() (Frame, bool) {
	return s.pump.latest()
}

func (s *v4l2Stream) Apply(_ context.Context, c Constraint) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.dev == nil {
		return ErrStreamClosed
	}

	switch {
	case c.Zoom != nil:
		if s.caps.Zoom == nil {
			return ErrNotSupported
		}
		return s.dev.SetControlValue(ctrlZoomAbsolute, v4l2.CtrlValue(math.Round(s.caps.Zoom.Clamp(*c.Zoom))))
	case c.Exposure != nil:
		if s.caps.Exposure == nil {
			return ErrNotSupported
		}
		return s.dev.SetControlValue(ctrlAutoExposureBias, v4l2.CtrlValue(math.Round(s.caps.Exposure.Clamp(*c.Exposure))))
	case c.Torch != nil:
		if !s.caps.Torch {
			return ErrNotSupported
		}
		mode := flashLEDNone
		if *c.Torch {
			mode = flashLEDTorch
		}
		return s.dev.SetControlValue(ctrlFlashLEDMode, mode)
	case c.FocusMode != "":
		return s.applyFocus(c.FocusMode)
	case c.ExposureMode != "":
		v := exposureManual
		if c.ExposureMode == ExposureContinuous {
			v = s.exposureAuto
		}
		return s.dev.SetControlValue(ctrlExposureAuto, v)
	case c.WhiteBalanceMode != "":
		var v v4l2.CtrlValue
		if c.WhiteBalanceMode == WhiteBalanceContinuous {
			v = 1
		}
		return s.dev.SetControlValue(ctrlAutoWhiteBalance, v)
	}

	return nil
}

func (s *v4l2Stream) applyFocus(m FocusMode) error {
	if !s.caps.HasFocus(m) {
		return fmt.Errorf("%w: focus mode %s", ErrNotSupported, m)
	}
	switch m {
	case FocusContinuous:
		return s.dev.SetControlValue(ctrlFocusAuto, 1)
	case FocusSingleShot:
		if s.caps.HasFocus(FocusContinuous) {
			if err := s.dev.SetControlValue(ctrlFocusAuto, 0); err != nil {
				return err
			}
		}
		// AUTO_FOCUS_START is a button control, any write triggers one sweep
		return s.dev.SetControlValue(ctrlAutoFocusStart, 1)
	case FocusManual:
		return s.dev.SetControlValue(ctrlFocusAuto, 0)
	}

	return nil
}

// Close stops streaming and releases the device. Safe to call repeatedly.
func (s *v4l2Stream) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.cancel != nil {
		// cancel first so the go4vl stream goroutine reaches ctx.Done and stops
		// the device before we close the fd under it
		s.cancel()
		time.Sleep(100 * time.Millisecond)
		s.cancel = nil
	}
	s.pump.stop()
	if s.dev != nil {
		err := s.dev.Close()
		s.dev = nil
		logger.Info("camera stream closed")
		return err
	}

	return nil
}
