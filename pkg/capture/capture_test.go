package capture

import (
	"context"
	"image/color"
	"testing"

	"github.com/gabriel-vasile/mimetype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-scanner/pkg/camera"
	"product-scanner/pkg/camera/camerafake"
	"product-scanner/pkg/types"
	imageutil "product-scanner/pkg/utils/image"
	"product-scanner/pkg/video"
)

func openStream(t *testing.T) *camerafake.Stream {
	t.Helper()
	dev := camerafake.NewDevice(camera.Capabilities{})
	s, err := dev.Open(context.Background(), camera.StreamRequest{})
	require.NoError(t, err)
	return s.(*camerafake.Stream)
}

func TestSampleJPEG(t *testing.T) {
	s := openStream(t)
	f, ok := s.Frame()
	require.True(t, ok)

	a, err := Sample(s, imageutil.DefaultQuality)
	require.NoError(t, err)
	assert.Equal(t, StillName, a.Name)
	assert.Equal(t, StillMIME, a.MIME)
	assert.Equal(t, types.KindImage, a.Kind)
	assert.Equal(t, types.SourceFrame, a.Source)
	assert.Equal(t, f.Data, a.Data)
	assert.Equal(t, len(a.Data), a.Size)

	a.Data[0] = 0
	f2, _ := s.Frame()
	assert.NotEqual(t, a.Data[0], f2.Data[0], "artifact owns its bytes")
}

func TestSampleRGB(t *testing.T) {
	s := openStream(t)
	w, h := 8, 4
	data := make([]byte, w*h*3)
	for i := range data {
		data[i] = 200
	}
	s.SetFrame(&camera.Frame{Data: data, Format: camera.FormatRGB24, Width: w, Height: h})

	a, err := Sample(s, imageutil.DefaultQuality)
	require.NoError(t, err)
	assert.True(t, mimetype.Detect(a.Data).Is("image/jpeg"))
}

func TestSampleFailures(t *testing.T) {
	s := openStream(t)
	s.SetFrame(nil)
	_, err := Sample(s, 90)
	assert.ErrorIs(t, err, ErrNoFrame)

	s.SetFrame(&camera.Frame{Format: camera.FormatJPEG})
	_, err = Sample(s, 90)
	assert.ErrorIs(t, err, imageutil.ErrEmptyFrame)

	s.SetFrame(&camera.Frame{Data: []byte("not a jpeg"), Format: camera.FormatJPEG})
	_, err = Sample(s, 90)
	assert.Error(t, err)
}

func TestSelectFormat(t *testing.T) {
	f, err := SelectFormat([]string{"video/webm", video.MIMEType, "video/mp4"})
	require.NoError(t, err)
	assert.Equal(t, video.MIMEType, f)

	_, err = SelectFormat([]string{"video/webm"})
	assert.ErrorIs(t, err, ErrRecordingUnsupported)
	_, err = SelectFormat(nil)
	assert.ErrorIs(t, err, ErrRecordingUnsupported)
}

func newRecording(t *testing.T) *Recording {
	t.Helper()
	r, err := NewRecording(RecordingConfig{Format: video.MIMEType, MaxSeconds: 3, FPS: 5, TempDir: t.TempDir()})
	require.NoError(t, err)
	return r
}

func TestRecordingFinalize(t *testing.T) {
	s := openStream(t)
	r := newRecording(t)
	for i := 0; i < 4; i++ {
		s.SetImage(camerafake.Solid(32, 24, color.RGBA{R: uint8(i * 60), A: 255}))
		f, _ := s.Frame()
		require.NoError(t, r.AddFrame(f))
		require.NoError(t, r.AddFrame(f), "repeated frames are skipped")
	}
	assert.Equal(t, 4, r.Chunks())
	assert.Positive(t, r.Size())

	a, ok, err := r.Finalize(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, RecordingName, a.Name)
	assert.Equal(t, types.KindVideo, a.Kind)
	assert.Equal(t, types.SourceRecording, a.Source)
	assert.True(t, mimetype.Detect(a.Data).Is(video.MIMEType))

	_, _, err = r.Finalize(context.Background())
	assert.ErrorIs(t, err, ErrRecordingState)
}

func TestRecordingEmpty(t *testing.T) {
	r := newRecording(t)
	a, ok, err := r.Finalize(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, a.Data)
}

func TestRecordingCeiling(t *testing.T) {
	r := newRecording(t)
	assert.False(t, r.Tick())
	assert.False(t, r.Tick())
	assert.True(t, r.Tick())
	assert.Equal(t, 3, r.Elapsed())
}

func TestRecordingDiscard(t *testing.T) {
	s := openStream(t)
	r := newRecording(t)
	f, _ := s.Frame()
	require.NoError(t, r.AddFrame(f))

	r.Discard()
	assert.Zero(t, r.Chunks())
	assert.False(t, r.Tick())
	assert.ErrorIs(t, r.AddFrame(f), ErrRecordingState)
	_, ok, err := r.Finalize(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrRecordingState)
}

func TestRecordingBadFrame(t *testing.T) {
	r := newRecording(t)
	err := r.AddFrame(camera.Frame{Seq: 9, Data: []byte{1, 2, 3}, Format: camera.FormatJPEG})
	assert.ErrorIs(t, err, ErrEncoderFault)
}

func TestNewRecordingUnsupported(t *testing.T) {
	_, err := NewRecording(RecordingConfig{Format: "video/webm", MaxSeconds: 10, FPS: 10})
	assert.ErrorIs(t, err, ErrRecordingUnsupported)
	_, err = NewRecording(RecordingConfig{Format: video.MIMEType, FPS: 10})
	assert.ErrorIs(t, err, ErrEncoderInit)
}
