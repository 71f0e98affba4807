package camera

import (
	"context"
	"sync"
	"time"
)

// framePump keeps only the newest frame of a driver output channel. Readers
// never block the driver and always see the most recent picture.
type framePump struct {
	lock    sync.Mutex
	format  PixelFormat
	width   int
	height  int
	seq     uint64
	last    []byte
	at      time.Time
	stopped bool
}

func newFramePump(format PixelFormat, width, height int) *framePump {
	return &framePump{format: format, width: width, height: height}
}

func (p *framePump) run(ctx context.Context, src <-chan []byte) {
	for {
		select {
		case <-ctx.Done():
			p.stop()
			return
		case frame, ok := <-src:
			if !ok {
				// source ended, the stream is gone
				p.stop()
				return
			}
			if len(frame) == 0 {
				continue
			}
			p.push(frame, time.Now())
		}
	}
}

func (p *framePump) push(frame []byte, at time.Time) {
	// go4vl reuses its buffers
	buf := append([]byte(nil), frame...)
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.stopped {
		return
	}
	p.seq++
	p.last = buf
	p.at = at
}

func (p *framePump) latest() (Frame, bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.stopped || p.last == nil {
		return Frame{}, false
	}

	return Frame{
		Seq:    p.seq,
		Data:   p.last,
		Format: p.format,
		Width:  p.width,
		Height: p.height,
		Time:   p.at,
	}, true
}

func (p *framePump) stop() {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.stopped = true
	p.last = nil
}
