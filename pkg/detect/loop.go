package detect

import (
	"image"
	"time"
)

// Loop is one detection cycle: detector, central-region filter and
// debouncer. The caller schedules it and owns the reentrancy guard.
type Loop struct {
	detector Detector
	region   Region
	debounce *Debouncer
}

func NewLoop(d Detector, r Region, db *Debouncer) *Loop {
	return &Loop{detector: d, region: r, debounce: db}
}

// Cycle runs the detector once against img. It returns a code only when the
// code has just been confirmed. A nil img means there is no frame yet and
// leaves the state untouched, as does a detector failure.
func (l *Loop) Cycle(img image.Image, now time.Time) (string, bool) {
	if img == nil {
		return "", false
	}
	dets, err := l.detector.Detect(img)
	if err != nil {
		logger.Debugf("detector failed, skipping frame: %s", err)
		return "", false
	}
	det, ok := l.region.Select(dets, img.Bounds())
	if !ok || det.Value == "" {
		l.debounce.Reset()
		return "", false
	}
	if l.debounce.Observe(det.Value, now) {
		logger.Infof("code confirmed: %q (%s)", det.Value, det.Format)
		return det.Value, true
	}

	return "", false
}

func (l *Loop) Reset() {
	l.debounce.Reset()
}

func (l *Loop) State() (string, int) {
	code, _ := l.debounce.Last()
	return code, l.debounce.Count()
}
