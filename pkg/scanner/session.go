package scanner

import (
	"context"
	"time"

	"product-scanner/pkg/camera"
	"product-scanner/pkg/capture"
	"product-scanner/pkg/detect"
	"product-scanner/pkg/exposure"
	"product-scanner/pkg/focus"
	"product-scanner/pkg/metrics"
)

// session is everything that lives between opening a stream and tearing it
// down. Only the loop touches it.
type session struct {
	gen    uint64
	ctx    context.Context
	cancel context.CancelFunc
	opened time.Time

	stream     camera.Stream
	caps       camera.Capabilities
	continuous bool

	zoom      *float64
	exposure  *float64
	flashOn   bool
	autoFlash bool

	detect    *detect.Loop
	focus     *focus.Controller
	pilot     *exposure.Autopilot
	luminance float64
	shutter   bool

	rec       *capture.Recording
	recCancel context.CancelFunc
}

// open negotiates a stream and starts the periodic work of a live session.
func (s *Scanner) open(ctx context.Context) error {
	if !s.machine.Can(evOpen) {
		return s.transition(evOpen)
	}
	neg, err := camera.Negotiate(ctx, s.dev, s.cfg.Stream, s.cfg.StartTimeout)
	if err != nil {
		s.notice(err)
		return err
	}

	s.gen++
	sctx, cancel := context.WithCancel(context.Background())
	sess := &session{
		gen:        s.gen,
		ctx:        sctx,
		cancel:     cancel,
		opened:     time.Now(),
		stream:     neg.Stream,
		caps:       neg.Caps,
		continuous: neg.ContinuousFocus,
		detect:     detect.NewLoop(s.detector, s.cfg.Region, detect.NewDebouncer(s.cfg.MinFrames, s.cfg.MinStable)),
		focus:      focus.New(s.cfg.Focus, neg.Caps, neg.ContinuousFocus),
		pilot:      exposure.NewAutopilot(s.cfg.Exposure),
	}
	if r := neg.Caps.Zoom; r != nil {
		z := r.Min
		sess.zoom = &z
	}
	if r := neg.Caps.Exposure; r != nil {
		e := r.Clamp(0)
		sess.exposure = &e
	}
	s.sess = sess
	s.setStream(neg.Stream)
	s.artifact = nil
	s.lastErr = nil

	s.every(sctx, sess.gen, s.cfg.DetectInterval, s.detectTick)
	s.every(sctx, sess.gen, s.cfg.ExposureInterval, s.brightnessTick)

	logger.Infof("session %d open", sess.gen)
	return s.transition(evOpen)
}

// teardown stops every ticker and timer of the session, drops a running
// recording without finalizing it, cancels in-flight workers and releases
// the stream. It is safe to call at any time, any number of times.
func (s *Scanner) teardown() {
	sess := s.sess
	if sess == nil {
		return
	}
	s.sess = nil
	if sess.rec != nil {
		sess.recCancel()
		sess.rec.Discard()
		sess.rec = nil
		metrics.Recordings.WithLabelValues("aborted").Inc()
	}
	sess.cancel()
	s.setStream(nil)
	if err := sess.stream.Close(); err != nil {
		logger.Warnf("close stream: %s", err)
	}
	s.settle(outcome{err: ErrSessionClosed})
	logger.Infof("session %d closed after %s", sess.gen, time.Since(sess.opened).Round(time.Millisecond))
}

// shutdown returns to idle from any state, discarding a reviewed artifact.
func (s *Scanner) shutdown() {
	s.teardown()
	s.artifact = nil
	if !s.is(StateIdle) {
		_ = s.transition(evClose)
	}
}

func (s *Scanner) apply(c camera.Constraint) error {
	sess := s.sess
	err := sess.stream.Apply(sess.ctx, c)
	if err != nil {
		logger.Warnf("apply %s: %s", c, err)
	}
	return err
}

func (s *Scanner) setTorch(on bool, cause string) {
	if err := s.apply(camera.TorchTo(on)); err != nil {
		return
	}
	s.sess.flashOn = on
	metrics.FlashToggles.WithLabelValues(cause).Inc()
}
