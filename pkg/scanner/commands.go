package scanner

import (
	"context"
	"time"

	"product-scanner/pkg/camera"
	"product-scanner/pkg/focus"
	"product-scanner/pkg/types"
)

// Start opens the camera and goes live. Starting an open session is a no-op.
func (s *Scanner) Start(ctx context.Context) error {
	return s.call(ctx, func() error {
		if s.sess != nil {
			return nil
		}
		return s.open(ctx)
	})
}

// Stop tears the session down and returns to idle from any state. A
// pending capture or recording is abandoned and a reviewed artifact dropped.
func (s *Scanner) Stop(ctx context.Context) error {
	return s.call(ctx, func() error {
		s.shutdown()
		return nil
	})
}

// Retake discards the reviewed artifact and reopens the camera.
func (s *Scanner) Retake(ctx context.Context) error {
	return s.call(ctx, func() error {
		if err := s.transition(evRetake); err != nil {
			return err
		}
		s.artifact = nil
		return s.open(ctx)
	})
}

func (s *Scanner) SetMode(ctx context.Context, m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}
	return s.call(ctx, func() error {
		if !s.is(StateLive) {
			return s.transitionErr("mode", "mode can only change while live")
		}
		if s.mode != m {
			s.mode = m
			s.sess.detect.Reset()
			logger.Infof("mode %s", m)
		}
		return nil
	})
}

// Capture takes a still and waits for the artifact. While recording, the
// recording is discarded in favour of the still.
func (s *Scanner) Capture(ctx context.Context) (types.Artifact, error) {
	var w chan outcome
	err := s.call(ctx, func() error {
		var err error
		w, err = s.startCapture()
		return err
	})
	if err != nil {
		return types.Artifact{}, err
	}
	o, err := s.await(ctx, w)

	return o.artifact, err
}

func (s *Scanner) StartRecording(ctx context.Context) error {
	return s.call(ctx, s.startRecording)
}

// StopRecording stops the recording and waits for it to be finalized. ok is
// false when nothing was recorded; the scanner is then live again.
func (s *Scanner) StopRecording(ctx context.Context) (types.Artifact, bool, error) {
	var w chan outcome
	err := s.call(ctx, func() error {
		switch {
		case s.is(StateRecording):
			w = s.addWaiter()
			s.stopRecording()
			return nil
		case s.is(StateFinalizing):
			w = s.addWaiter()
			return nil
		}
		return s.transitionErr(evStop, "not recording")
	})
	if err != nil {
		return types.Artifact{}, false, err
	}
	o, err := s.await(ctx, w)

	return o.artifact, o.ok, err
}

// Focus runs a tap-to-focus pass at p. accepted is false when the tap was
// throttled or a capture is running.
func (s *Scanner) Focus(ctx context.Context, p focus.Point) (accepted bool, err error) {
	if !p.Valid() {
		return false, ErrInvalidPoint
	}
	err = s.call(ctx, func() error {
		if s.sess == nil {
			return ErrNoSession
		}
		if !s.is(StateLive) && !s.is(StateRecording) {
			return nil
		}
		accepted = s.focusPass(time.Now(), &p)
		return nil
	})

	return accepted, err
}

// SetZoom clamps v to the zoom range and applies it. It returns the value
// requested from the device. A value the device refuses is logged and not
// recorded in the session.
func (s *Scanner) SetZoom(ctx context.Context, v float64) (float64, error) {
	err := s.call(ctx, func() error {
		if s.sess == nil {
			return ErrNoSession
		}
		r := s.sess.caps.Zoom
		if r == nil {
			return camera.ErrNotSupported
		}
		v = r.Clamp(v)
		if err := s.apply(camera.ZoomTo(v)); err != nil {
			return nil
		}
		s.sess.zoom = &v
		return nil
	})

	return v, err
}

func (s *Scanner) SetExposure(ctx context.Context, v float64) (float64, error) {
	err := s.call(ctx, func() error {
		if s.sess == nil {
			return ErrNoSession
		}
		r := s.sess.caps.Exposure
		if r == nil {
			return camera.ErrNotSupported
		}
		v = r.Clamp(v)
		if err := s.apply(camera.ExposureTo(v)); err != nil {
			return nil
		}
		s.sess.exposure = &v
		return nil
	})

	return v, err
}

// SetFlash switches the torch by hand, which also turns auto-flash off.
func (s *Scanner) SetFlash(ctx context.Context, on bool) error {
	return s.call(ctx, func() error {
		if s.sess == nil {
			return ErrNoSession
		}
		if !s.sess.caps.Torch {
			return camera.ErrNotSupported
		}
		s.sess.autoFlash = false
		s.setTorch(on, "manual")
		return nil
	})
}

func (s *Scanner) SetAutoFlash(ctx context.Context, on bool) error {
	return s.call(ctx, func() error {
		if s.sess == nil {
			return ErrNoSession
		}
		if !s.sess.caps.Torch {
			return camera.ErrNotSupported
		}
		s.sess.autoFlash = on
		return nil
	})
}

// Artifact returns the artifact under review.
func (s *Scanner) Artifact(ctx context.Context) (types.Artifact, bool, error) {
	var (
		a  types.Artifact
		ok bool
	)
	err := s.call(ctx, func() error {
		if s.artifact != nil {
			a, ok = *s.artifact, true
		}
		return nil
	})

	return a, ok, err
}
