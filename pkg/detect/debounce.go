package detect

import "time"

const (
	DefaultMinFrames = 5
	DefaultMinStable = 300 * time.Millisecond
)

// Debouncer confirms a code once it was observed in MinFrames consecutive
// frames spanning at least MinStable. Both are needed: frame count alone lets
// a burst of fast frames through, elapsed time alone a single lucky frame.
type Debouncer struct {
	MinFrames int
	MinStable time.Duration

	last  string
	count int
	start time.Time
}

func NewDebouncer(minFrames int, minStable time.Duration) *Debouncer {
	return &Debouncer{MinFrames: minFrames, MinStable: minStable}
}

// Observe records one frame in which code was seen and reports whether the
// run is now confirmed. Confirmation resets the state.
func (d *Debouncer) Observe(code string, now time.Time) bool {
	if d.count > 0 && code == d.last {
		d.count++
	} else {
		d.last = code
		d.count = 1
		d.start = now
	}
	if d.count >= d.MinFrames && now.Sub(d.start) >= d.MinStable {
		d.Reset()
		return true
	}

	return false
}

// Reset forgets the current run; used for frames with no usable code.
func (d *Debouncer) Reset() {
	d.last = ""
	d.count = 0
	d.start = time.Time{}
}

func (d *Debouncer) Count() int {
	return d.count
}

// Last returns the code of the current run, if any.
func (d *Debouncer) Last() (string, bool) {
	return d.last, d.count > 0
}
