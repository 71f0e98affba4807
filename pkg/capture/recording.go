package capture

import (
	"context"
	"errors"
	"fmt"
	"os"

	"product-scanner/pkg/camera"
	"product-scanner/pkg/types"
	imageutil "product-scanner/pkg/utils/image"
	"product-scanner/pkg/video"
)

const RecordingName = "scanned-product" + video.Ext

var (
	ErrRecordingUnsupported = errors.New("recording is not supported on this device")
	ErrEncoderInit          = errors.New("recording encoder could not start")
	ErrEncoderFault         = errors.New("recording encoder failed")
	ErrRecordingState       = errors.New("recording is not active")
)

// encoders lists the containers this build can produce.
var encoders = map[string]bool{
	video.MIMEType: true,
}

// SelectFormat returns the first entry of prefs that can be encoded.
func SelectFormat(prefs []string) (string, error) {
	for _, p := range prefs {
		if encoders[p] {
			return p, nil
		}
	}

	return "", fmt.Errorf("%w: none of %v", ErrRecordingUnsupported, prefs)
}

type RecordingConfig struct {
	Format     string
	MaxSeconds int
	FPS        int
	Quality    int
	TempDir    string
}

// Recording buffers one JPEG chunk per recorded frame and counts elapsed
// seconds. It is driven by a single owner; once Finalize is called the owner
// must stop touching it.
type Recording struct {
	cfg     RecordingConfig
	chunks  [][]byte
	size    int
	width   int
	height  int
	lastSeq uint64
	elapsed int
	stopped bool
}

func NewRecording(cfg RecordingConfig) (*Recording, error) {
	if !encoders[cfg.Format] {
		return nil, fmt.Errorf("%w: %q", ErrRecordingUnsupported, cfg.Format)
	}
	if cfg.MaxSeconds <= 0 || cfg.FPS <= 0 {
		return nil, fmt.Errorf("%w: %ds at %d fps", ErrEncoderInit, cfg.MaxSeconds, cfg.FPS)
	}
	if cfg.Quality <= 0 {
		cfg.Quality = imageutil.DefaultQuality
	}
	if cfg.TempDir != "" {
		if err := os.MkdirAll(cfg.TempDir, os.ModePerm); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEncoderInit, err)
		}
	}

	return &Recording{cfg: cfg}, nil
}

// AddFrame appends a chunk. A frame already recorded (same sequence number)
// is skipped, so sampling faster than the sensor does not duplicate frames.
func (r *Recording) AddFrame(f camera.Frame) error {
	if r.stopped {
		return ErrRecordingState
	}
	if f.Seq != 0 && f.Seq == r.lastSeq {
		return nil
	}
	data, err := EncodeFrame(f, r.cfg.Quality)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrEncoderFault, err)
	}
	if r.width == 0 {
		r.width, r.height = f.Width, f.Height
	}
	r.lastSeq = f.Seq
	r.chunks = append(r.chunks, data)
	r.size += len(data)

	return nil
}

// Tick advances the elapsed counter by one second and reports whether the
// ceiling has been reached.
func (r *Recording) Tick() bool {
	if r.stopped {
		return false
	}
	r.elapsed++
	return r.elapsed >= r.cfg.MaxSeconds
}

func (r *Recording) Elapsed() int {
	return r.elapsed
}

func (r *Recording) Chunks() int {
	return len(r.chunks)
}

func (r *Recording) Size() int {
	return r.size
}

func (r *Recording) Format() string {
	return r.cfg.Format
}

// Discard drops the buffered chunks. The recording can not be finalized afterwards.
func (r *Recording) Discard() {
	r.stopped = true
	r.chunks = nil
	r.size = 0
}

// Finalize concatenates the chunks into one container. ok is false when
// nothing was recorded, which is not an error.
func (r *Recording) Finalize(ctx context.Context) (types.Artifact, bool, error) {
	if r.stopped {
		return types.Artifact{}, false, ErrRecordingState
	}
	r.stopped = true
	if r.size == 0 {
		return types.Artifact{}, false, nil
	}
	frames := len(r.chunks)
	data, err := video.Encode(ctx, r.cfg.TempDir, r.chunks, r.width, r.height, r.cfg.FPS)
	r.chunks = nil
	switch {
	case errors.Is(err, video.ErrNoFrames):
		return types.Artifact{}, false, nil
	case errors.Is(err, video.ErrBadGeometry):
		return types.Artifact{}, false, fmt.Errorf("%w: %v", ErrEncoderInit, err)
	case err != nil:
		return types.Artifact{}, false, fmt.Errorf("%w: %v", ErrEncoderFault, err)
	case len(data) == 0:
		return types.Artifact{}, false, nil
	}
	logger.Infof("recording finalized, %d frames over %ds, %d bytes", frames, r.elapsed, len(data))

	return types.NewArtifact(RecordingName, r.cfg.Format, types.SourceRecording, data), true, nil
}
