package detect

import "image"

// Region is the central band, as fractions of the frame size, in which a
// code's centre must lie on both axes. Codes near the edges usually belong
// to neighbouring products.
type Region struct {
	Min float64
	Max float64
}

var DefaultRegion = Region{Min: 0.30, Max: 0.70}

func (r Region) Contains(box image.Rectangle, width, height int) bool {
	cx := float64(box.Min.X) + float64(box.Dx())/2
	cy := float64(box.Min.Y) + float64(box.Dy())/2
	w, h := float64(width), float64(height)

	return cx > w*r.Min && cx < w*r.Max && cy > h*r.Min && cy < h*r.Max
}

// Select returns the first detection inside the region. Detections without
// a box are accepted as they are.
func (r Region) Select(dets []Detection, bounds image.Rectangle) (Detection, bool) {
	for _, d := range dets {
		if d.Box == nil {
			return d, true
		}
		if r.Contains(d.Box.Sub(bounds.Min), bounds.Dx(), bounds.Dy()) {
			return d, true
		}
	}

	return Detection{}, false
}
