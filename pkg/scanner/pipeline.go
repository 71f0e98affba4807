package scanner

import (
	"context"
	"fmt"
	"time"

	"product-scanner/pkg/camera"
	"product-scanner/pkg/capture"
	"product-scanner/pkg/exposure"
	"product-scanner/pkg/focus"
	"product-scanner/pkg/metrics"
	"product-scanner/pkg/types"
)

func (s *Scanner) detectTick() {
	if !s.is(StateLive) || s.mode != ModePhoto {
		return
	}
	sess := s.sess
	now := time.Now()
	if sess.focus.Due(now) {
		s.focusPass(now, nil)
	}

	f, ok := sess.stream.Frame()
	if !ok {
		return
	}
	img, err := f.Image()
	if err != nil {
		logger.Debugf("frame %d: %s", f.Seq, err)
		return
	}
	code, ok := sess.detect.Cycle(img, now)
	if !ok {
		return
	}
	metrics.CodesConfirmed.Inc()
	if s.hooks.OnCode != nil {
		s.hooks.OnCode(code)
	}
	s.startResolve(code)
}

func (s *Scanner) brightnessTick() {
	sess := s.sess
	f, ok := sess.stream.Frame()
	if !ok {
		return
	}
	img, err := f.Image()
	if err != nil {
		return
	}
	lum := exposure.Luminance(img, s.cfg.Exposure.Grid)
	sess.luminance = lum
	metrics.Luminance.Set(lum)

	d := sess.pilot.Observe(exposure.Input{
		Luminance:  lum,
		FlashOn:    sess.flashOn,
		AutoFlash:  sess.autoFlash,
		CanRefocus: !sess.continuous && !s.is(StateCapturing),
	})
	if d.Flash != nil && sess.caps.Torch {
		logger.Debugf("auto flash %v at luminance %.1f", *d.Flash, lum)
		s.setTorch(*d.Flash, "auto")
	}
	if d.Refocus {
		s.focusPass(time.Now(), nil)
	}
}

// focusPass runs a throttled focus pass, at p for a tap or untargeted.
func (s *Scanner) focusPass(now time.Time, p *focus.Point) bool {
	a, ok := s.sess.focus.Trigger(now, p)
	if !ok {
		return false
	}
	trigger := "auto"
	if p != nil {
		trigger = "manual"
	}
	metrics.FocusTriggers.WithLabelValues(trigger).Inc()
	s.runFocus(a)

	return true
}

func (s *Scanner) runFocus(a focus.Action) {
	sess := s.sess
	if a.Mode != "" {
		_ = s.apply(camera.FocusTo(a.Mode))
	}
	s.after(sess.ctx, sess.gen, a.SettleAfter, func() {
		s.sess.focus.Settled(a.Epoch)
	})
	s.after(sess.ctx, sess.gen, a.ExpireAfter, func() {
		s.sess.focus.Expired(a.Epoch)
	})
	if a.RevertAfter > 0 {
		s.after(sess.ctx, sess.gen, a.RevertAfter, func() {
			if !s.is(StateCapturing) {
				_ = s.apply(camera.FocusTo(camera.FocusContinuous))
			}
		})
	}
}

func (s *Scanner) startResolve(code string) {
	if err := s.transition(evResolve); err != nil {
		logger.Warnf("resolve %q: %s", code, err)
		return
	}
	sess := s.sess
	stream, quality := sess.stream, s.cfg.Quality
	logger.Infof("resolving %q", code)
	s.worker(func() {
		a, err := s.resolver.Resolve(sess.ctx, code, func() (types.Artifact, error) {
			return capture.Sample(stream, quality)
		})
		s.post(sess.ctx, sess.gen, func() {
			s.resolved(a, err)
		})
	})
}

func (s *Scanner) resolved(a types.Artifact, err error) {
	if !s.is(StateResolving) {
		return
	}
	if err != nil {
		metrics.Resolutions.WithLabelValues("failed").Inc()
		_ = s.transition(evResolveFailed)
		s.sess.detect.Reset()
		s.notice(err)
		return
	}
	metrics.Resolutions.WithLabelValues(string(a.Source)).Inc()
	_ = s.transition(evResolved)
	s.deliver(a)
}

// startCapture begins a still capture. A running recording is discarded
// first and never produces a video.
func (s *Scanner) startCapture() (chan outcome, error) {
	sess := s.sess
	if sess == nil {
		return nil, ErrNoSession
	}
	if s.is(StateRecording) {
		logger.Info("capture requested while recording, discarding recording")
		s.disarmRecording("aborted")
	}
	if err := s.transition(evCapture); err != nil {
		return nil, err
	}

	a, focused, wait := sess.focus.PreCapture(time.Now())
	if focused {
		metrics.FocusTriggers.WithLabelValues("auto").Inc()
		s.runFocus(a)
	}
	w := s.addWaiter()
	s.after(sess.ctx, sess.gen, wait, s.shutter)

	return w, nil
}

func (s *Scanner) shutter() {
	if !s.is(StateCapturing) {
		return
	}
	sess := s.sess
	sess.shutter = true
	s.after(sess.ctx, sess.gen, s.cfg.ShutterCue, func() {
		s.sess.shutter = false
	})
	stream, quality := sess.stream, s.cfg.Quality
	s.worker(func() {
		a, err := capture.Sample(stream, quality)
		s.post(sess.ctx, sess.gen, func() {
			s.captured(a, err)
		})
	})
}

func (s *Scanner) captured(a types.Artifact, err error) {
	if !s.is(StateCapturing) {
		return
	}
	if err != nil {
		metrics.Captures.WithLabelValues("failed").Inc()
		_ = s.transition(evCaptureFailed)
		s.notice(err)
		s.settle(outcome{err: err})
		return
	}
	metrics.Captures.WithLabelValues("ok").Inc()
	_ = s.transition(evCaptured)
	s.deliver(a)
}

func (s *Scanner) startRecording() error {
	sess := s.sess
	if sess == nil {
		return ErrNoSession
	}
	if !s.is(StateLive) || s.mode != ModeVideo {
		return s.transitionErr(evRecord, "recording needs live video mode")
	}
	if _, ok := sess.stream.Frame(); !ok {
		s.notice(ErrStreamNotReady)
		return ErrStreamNotReady
	}
	format, err := capture.SelectFormat(s.cfg.RecordFormats)
	if err != nil {
		s.notice(err)
		return err
	}
	rec, err := capture.NewRecording(capture.RecordingConfig{
		Format:     format,
		MaxSeconds: s.cfg.RecordMaxSeconds,
		FPS:        s.cfg.RecordFPS,
		Quality:    s.cfg.Quality,
		TempDir:    s.cfg.RecordTempDir,
	})
	if err != nil {
		s.notice(err)
		return err
	}
	if err = s.transition(evRecord); err != nil {
		return err
	}

	rctx, cancel := context.WithCancel(sess.ctx)
	sess.rec, sess.recCancel = rec, cancel
	s.recordFrame(rec)
	s.every(rctx, sess.gen, time.Second/time.Duration(s.cfg.RecordFPS), func() {
		s.recordFrame(rec)
	})
	s.every(rctx, sess.gen, s.cfg.RecordTick, func() {
		s.recordTick(rec)
	})
	logger.Infof("recording %s, at most %ds", format, s.cfg.RecordMaxSeconds)

	return nil
}

func (s *Scanner) recordFrame(rec *capture.Recording) {
	sess := s.sess
	if sess.rec != rec {
		return
	}
	f, ok := sess.stream.Frame()
	if !ok {
		return
	}
	if err := rec.AddFrame(f); err != nil {
		s.disarmRecording("failed")
		_ = s.transition(evAbort)
		s.notice(err)
		s.settle(outcome{err: err})
	}
}

// recordTick enforces the ceiling with its own wall-clock tick.
func (s *Scanner) recordTick(rec *capture.Recording) {
	if s.sess.rec != rec {
		return
	}
	if rec.Tick() {
		logger.Infof("recording reached %ds, stopping", rec.Elapsed())
		s.stopRecording()
	}
}

// stopRecording hands the recording to a worker for finalizing.
func (s *Scanner) stopRecording() {
	sess := s.sess
	rec := sess.rec
	if rec == nil || s.transition(evStop) != nil {
		return
	}
	sess.recCancel()
	sess.rec, sess.recCancel = nil, nil
	s.worker(func() {
		a, ok, err := rec.Finalize(sess.ctx)
		s.post(sess.ctx, sess.gen, func() {
			s.finalized(a, ok, err)
		})
	})
}

func (s *Scanner) finalized(a types.Artifact, ok bool, err error) {
	if !s.is(StateFinalizing) {
		return
	}
	switch {
	case err != nil:
		metrics.Recordings.WithLabelValues("failed").Inc()
		_ = s.transition(evFinalizeFailed)
		s.notice(err)
		s.settle(outcome{err: err})
	case !ok:
		metrics.Recordings.WithLabelValues("empty").Inc()
		logger.Info("recording produced no data")
		_ = s.transition(evFinalizeEmpty)
		s.settle(outcome{})
	default:
		metrics.Recordings.WithLabelValues("finalized").Inc()
		_ = s.transition(evFinalized)
		s.deliver(a)
	}
}

// disarmRecording drops the running recording without finalizing it. The
// state is left for the caller to move.
func (s *Scanner) disarmRecording(result string) {
	sess := s.sess
	if sess == nil || sess.rec == nil {
		return
	}
	sess.recCancel()
	sess.rec.Discard()
	sess.rec, sess.recCancel = nil, nil
	metrics.Recordings.WithLabelValues(result).Inc()
}

func (s *Scanner) transitionErr(ev, msg string) error {
	return fmt.Errorf("%w: %s while %s (%s)", ErrInvalidState, ev, s.current(), msg)
}
