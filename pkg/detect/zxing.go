package detect

import (
	"fmt"
	"image"
	"math"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

const (
	FormatQRCode = "qr_code"
	FormatEAN13  = "ean_13"
	FormatEAN8   = "ean_8"
	FormatUPCA   = "upc_a"
	FormatUPCE   = "upc_e"
)

var DefaultFormats = []string{FormatQRCode, FormatEAN13, FormatEAN8, FormatUPCA, FormatUPCE}

type namedReader struct {
	format string
	reader gozxing.Reader
	hints  map[gozxing.DecodeHintType]interface{}
}

// ZXing runs one gozxing reader per enabled format over each frame. It is
// not safe for concurrent use.
type ZXing struct {
	readers []namedReader
}

func NewZXing(formats ...string) (*ZXing, error) {
	if len(formats) == 0 {
		formats = DefaultFormats
	}
	tryHarder := map[gozxing.DecodeHintType]interface{}{gozxing.DecodeHintType_TRY_HARDER: true}
	z := &ZXing{}
	for _, f := range formats {
		var r gozxing.Reader
		switch f {
		case FormatQRCode:
			r = qrcode.NewQRCodeReader()
		case FormatEAN13:
			r = oned.NewEAN13Reader()
		case FormatEAN8:
			r = oned.NewEAN8Reader()
		case FormatUPCA:
			r = oned.NewUPCAReader()
		case FormatUPCE:
			r = oned.NewUPCEReader()
		default:
			return nil, fmt.Errorf("unknown barcode format %q", f)
		}
		nr := namedReader{format: f, reader: r}
		if f != FormatQRCode {
			nr.hints = tryHarder
		}
		z.readers = append(z.readers, nr)
	}

	return z, nil
}

// Detect returns every code any reader found. A reader that finds nothing is
// not an error; only an unusable image is.
func (z *ZXing) Detect(img image.Image) ([]Detection, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return nil, fmt.Errorf("binarize frame: %w", err)
	}

	var res []Detection
	seen := make(map[string]bool)
	for _, nr := range z.readers {
		result, err := nr.reader.Decode(bmp, nr.hints)
		nr.reader.Reset()
		if err != nil || result == nil {
			continue
		}
		text := result.GetText()
		key := text
		if nr.format == FormatUPCA && len(text) == 12 {
			// UPC-A is EAN-13 with a leading zero, both readers report it
			key = "0" + text
		}
		if text == "" || seen[key] {
			continue
		}
		seen[key] = true
		res = append(res, Detection{
			Value:  text,
			Format: nr.format,
			Box:    boundsOf(result.GetResultPoints(), img.Bounds()),
		})
	}

	return res, nil
}

// boundsOf returns the rectangle spanned by the result points, relative to
// the image origin.
func boundsOf(points []gozxing.ResultPoint, b image.Rectangle) *image.Rectangle {
	if len(points) == 0 {
		return nil
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range points {
		if p == nil {
			continue
		}
		minX, maxX = math.Min(minX, p.GetX()), math.Max(maxX, p.GetX())
		minY, maxY = math.Min(minY, p.GetY()), math.Max(maxY, p.GetY())
	}
	if math.IsInf(minX, 1) {
		return nil
	}
	r := image.Rect(int(minX), int(minY), int(math.Ceil(maxX)), int(math.Ceil(maxY))).Add(b.Min)
	return &r
}
