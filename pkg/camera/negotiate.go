package camera

import (
	"context"
	"fmt"
	"time"
)

// Negotiated is an open stream together with the choices made while opening it.
type Negotiated struct {
	Stream Stream
	Caps   Capabilities
	// ContinuousFocus is fixed for the life of the stream.
	ContinuousFocus bool
	FocusMode       FocusMode
}

// Negotiate opens a stream, waits for it to deliver a first frame within
// startTimeout and applies the best focus, exposure and white-balance modes
// the hardware offers. Failures to apply modes are logged and ignored.
func Negotiate(ctx context.Context, dev Device, req StreamRequest, startTimeout time.Duration) (*Negotiated, error) {
	if dev == nil {
		return nil, ErrCameraUnavailable
	}
	stream, err := dev.Open(ctx, req)
	if err != nil {
		return nil, err
	}

	if err = waitFirstFrame(ctx, stream, startTimeout); err != nil {
		_ = stream.Close()
		return nil, err
	}

	n := &Negotiated{Stream: stream, Caps: stream.Capabilities()}
	switch {
	case n.Caps.HasFocus(FocusContinuous):
		n.ContinuousFocus = true
		n.FocusMode = FocusContinuous
	case n.Caps.HasFocus(FocusSingleShot):
		n.FocusMode = FocusSingleShot
	}
	if n.FocusMode != "" {
		applyQuietly(ctx, stream, FocusTo(n.FocusMode))
	}
	if n.Caps.HasExposure(ExposureContinuous) {
		applyQuietly(ctx, stream, Constraint{ExposureMode: ExposureContinuous})
	}
	if n.Caps.HasWhiteBalance(WhiteBalanceContinuous) {
		applyQuietly(ctx, stream, Constraint{WhiteBalanceMode: WhiteBalanceContinuous})
	}
	logger.Infof("camera negotiated: zoom=%v exposure=%v torch=%v focus=%v continuousFocus=%v",
		n.Caps.Zoom, n.Caps.Exposure, n.Caps.Torch, n.Caps.FocusModes, n.ContinuousFocus)

	return n, nil
}

func applyQuietly(ctx context.Context, s Stream, c Constraint) {
	if err := s.Apply(ctx, c); err != nil {
		logger.Warnf("apply %s: %s", c, err)
	}
}

func waitFirstFrame(ctx context.Context, s Stream, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()
	for {
		if _, ok := s.Frame(); ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrPlaybackFailed, ctx.Err())
		case <-deadline.C:
			return fmt.Errorf("%w: no frame within %s", ErrPlaybackFailed, timeout)
		case <-poll.C:
		}
	}
}
