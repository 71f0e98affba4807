// Package capture turns live frames into artifacts: single stills and
// bounded recordings.
package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"

	"product-scanner/pkg/camera"
	"product-scanner/pkg/types"
	"product-scanner/pkg/utils"
	imageutil "product-scanner/pkg/utils/image"
)

const (
	StillName = "scanned-product.jpg"
	StillMIME = "image/jpeg"
)

var ErrNoFrame = errors.New("no frame available")

var logger = utils.GetLogger().Named("capture")

// FrameSource is the part of a camera stream the samplers read from.
type FrameSource interface {
	Frame() (camera.Frame, bool)
}

// EncodeFrame returns the frame as JPEG bytes owned by the caller. JPEG
// frames are copied as delivered once their header checks out; anything else
// is decoded and re-encoded at quality.
func EncodeFrame(f camera.Frame, quality int) ([]byte, error) {
	if len(f.Data) == 0 {
		return nil, imageutil.ErrEmptyFrame
	}
	if f.Format == camera.FormatJPEG {
		if _, err := jpeg.DecodeConfig(bytes.NewReader(f.Data)); err != nil {
			return nil, fmt.Errorf("frame %d: %w", f.Seq, err)
		}
		return bytes.Clone(f.Data), nil
	}
	img, err := f.Image()
	if err != nil {
		return nil, err
	}

	return imageutil.EncodeJPEGBytes(img, quality)
}

// Sample encodes the newest frame of src into a still image artifact.
func Sample(src FrameSource, quality int) (types.Artifact, error) {
	f, ok := src.Frame()
	if !ok {
		return types.Artifact{}, ErrNoFrame
	}
	data, err := EncodeFrame(f, quality)
	if err != nil {
		return types.Artifact{}, fmt.Errorf("sample frame: %w", err)
	}
	logger.Debugf("sampled frame %d, %dx%d, %d bytes", f.Seq, f.Width, f.Height, len(data))

	return types.NewArtifact(StillName, StillMIME, types.SourceFrame, data), nil
}
