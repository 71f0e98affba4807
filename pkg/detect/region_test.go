package detect

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func box(x0, y0, x1, y1 int) *image.Rectangle {
	r := image.Rect(x0, y0, x1, y1)
	return &r
}

func TestRegionContains(t *testing.T) {
	frame := image.Rect(0, 0, 1000, 1000)
	cases := []struct {
		name string
		box  *image.Rectangle
		want bool
	}{
		{"centre", box(450, 450, 550, 550), true},
		{"left edge", box(0, 450, 100, 550), false},
		{"bottom edge", box(450, 900, 550, 1000), false},
		{"on the 30% line", box(250, 450, 350, 550), false},
		{"just inside", box(252, 452, 352, 552), true},
		{"right band", box(700, 450, 800, 550), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, ok := DefaultRegion.Select([]Detection{{Value: "x", Box: c.box}}, frame)
			assert.Equal(t, c.want, ok)
		})
	}
}

func TestRegionSelectSkipsEdgeCodes(t *testing.T) {
	frame := image.Rect(0, 0, 640, 480)
	dets := []Detection{
		{Value: "edge", Box: box(0, 0, 60, 60)},
		{Value: "middle", Box: box(300, 220, 340, 260)},
	}
	d, ok := DefaultRegion.Select(dets, frame)
	assert.True(t, ok)
	assert.Equal(t, "middle", d.Value)

	_, ok = DefaultRegion.Select(dets[:1], frame)
	assert.False(t, ok, "an edge code is never selected, even alone")
}

func TestRegionSelectAcceptsUnboxed(t *testing.T) {
	d, ok := DefaultRegion.Select([]Detection{{Value: "nobox"}}, image.Rect(0, 0, 10, 10))
	assert.True(t, ok)
	assert.Equal(t, "nobox", d.Value)
}

func TestRegionOffsetBounds(t *testing.T) {
	frame := image.Rect(100, 100, 200, 200)
	_, ok := DefaultRegion.Select([]Detection{{Value: "x", Box: box(145, 145, 155, 155)}}, frame)
	assert.True(t, ok)
}
