package scanner

import (
	"context"
	"time"

	"product-scanner/pkg/camera"
	"product-scanner/pkg/focus"
	"product-scanner/pkg/types"
)

type DetectState struct {
	Code  string `json:"code,omitempty"`
	Count int    `json:"count"`
}

type RecordingState struct {
	Format     string `json:"format"`
	Elapsed    int    `json:"elapsed"`
	MaxSeconds int    `json:"maxSeconds"`
	Chunks     int    `json:"chunks"`
	Bytes      int    `json:"bytes"`
}

// Snapshot is a copy of the scanner state at one point in time.
type Snapshot struct {
	State           State                `json:"state"`
	Mode            Mode                 `json:"mode"`
	Open            bool                 `json:"open"`
	OpenedAt        time.Time            `json:"openedAt,omitempty"`
	Caps            *camera.Capabilities `json:"capabilities,omitempty"`
	ContinuousFocus bool                 `json:"continuousFocus"`
	Zoom            *float64             `json:"zoom,omitempty"`
	Exposure        *float64             `json:"exposure,omitempty"`
	FlashOn         bool                 `json:"flashOn"`
	AutoFlash       bool                 `json:"autoFlash"`
	Luminance       float64              `json:"luminance"`
	Shutter         bool                 `json:"shutter"`
	Focus           *focus.State         `json:"focus,omitempty"`
	Detect          *DetectState         `json:"detect,omitempty"`
	Recording       *RecordingState      `json:"recording,omitempty"`
	Artifact        *types.Artifact      `json:"artifact,omitempty"`
	LastError       string               `json:"lastError,omitempty"`
}

func (s *Scanner) State(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.call(ctx, func() error {
		snap = s.snapshot()
		return nil
	})

	return snap, err
}

func (s *Scanner) snapshot() Snapshot {
	snap := Snapshot{State: s.current(), Mode: s.mode}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	if s.artifact != nil {
		a := *s.artifact
		snap.Artifact = &a
	}
	sess := s.sess
	if sess == nil {
		return snap
	}

	caps := sess.caps
	fs := sess.focus.State()
	code, count := sess.detect.State()
	snap.Open = true
	snap.OpenedAt = sess.opened
	snap.Caps = &caps
	snap.ContinuousFocus = sess.continuous
	snap.Zoom = copyFloat(sess.zoom)
	snap.Exposure = copyFloat(sess.exposure)
	snap.FlashOn = sess.flashOn
	snap.AutoFlash = sess.autoFlash
	snap.Luminance = sess.luminance
	snap.Shutter = sess.shutter
	snap.Focus = &fs
	snap.Detect = &DetectState{Code: code, Count: count}
	if rec := sess.rec; rec != nil {
		snap.Recording = &RecordingState{
			Format:     rec.Format(),
			Elapsed:    rec.Elapsed(),
			MaxSeconds: s.cfg.RecordMaxSeconds,
			Chunks:     rec.Chunks(),
			Bytes:      rec.Size(),
		}
	}

	return snap
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
