// Package video packs JPEG frames into an MJPEG AVI container.
package video

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/icza/mjpeg"
)

const (
	MIMEType = "video/x-msvideo"
	Ext      = ".avi"
)

var (
	ErrNoFrames    = errors.New("no frames to encode")
	ErrBadGeometry = errors.New("invalid video geometry")
)

type Builder struct {
	path   string
	width  int
	height int
	fps    int

	cnt int
	aw  mjpeg.AviWriter
}

func NewBuilder(path string, width, height, fps int) (*Builder, error) {
	if width <= 0 || height <= 0 || fps <= 0 {
		return nil, fmt.Errorf("%w: %dx%d@%d", ErrBadGeometry, width, height, fps)
	}
	aw, err := mjpeg.New(path, int32(width), int32(height), int32(fps))
	if err != nil {
		return nil, err
	}

	return &Builder{
		path:   path,
		width:  width,
		height: height,
		fps:    fps,
		aw:     aw,
	}, nil
}

func (b *Builder) Add(frame []byte) error {
	err := b.aw.AddFrame(frame)
	if err != nil {
		return err
	}
	b.cnt++

	return nil
}

func (b *Builder) Close() error {
	return b.aw.Close()
}

func (b *Builder) Count() int {
	return b.cnt
}

// Encode writes frames into a temporary AVI inside dir (os.TempDir when
// empty) and returns the finished file's bytes. The temporary file is always
// removed.
func Encode(ctx context.Context, dir string, frames [][]byte, width, height, fps int) ([]byte, error) {
	if len(frames) == 0 {
		return nil, ErrNoFrames
	}
	f, err := os.CreateTemp(dir, "recording-*"+Ext)
	if err != nil {
		return nil, err
	}
	path := f.Name()
	_ = f.Close()
	defer os.Remove(path)

	b, err := NewBuilder(path, width, height, fps)
	if err != nil {
		return nil, err
	}
	for _, frame := range frames {
		if err = ctx.Err(); err != nil {
			_ = b.Close()
			return nil, err
		}
		if len(frame) == 0 {
			continue
		}
		if err = b.Add(frame); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("add frame %d: %w", b.Count(), err)
		}
	}
	if b.Count() == 0 {
		_ = b.Close()
		return nil, ErrNoFrames
	}
	if err = b.Close(); err != nil {
		return nil, err
	}

	return os.ReadFile(path)
}
