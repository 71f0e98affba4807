// Package detect finds barcodes and QR codes in live frames and decides when
// a code has been seen steadily enough to act on.
package detect

import (
	"image"

	"go.uber.org/zap"

	"product-scanner/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger().Named("detect")
}

// Detection is one code found in a frame. Box is nil when the detector
// could not locate the code.
type Detection struct {
	Value  string
	Format string
	Box    *image.Rectangle
}

type Detector interface {
	Detect(img image.Image) ([]Detection, error)
}

// DetectorFunc adapts a function to Detector.
type DetectorFunc func(img image.Image) ([]Detection, error)

func (f DetectorFunc) Detect(img image.Image) ([]Detection, error) {
	return f(img)
}
