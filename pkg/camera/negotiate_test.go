package camera_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"product-scanner/pkg/camera"
	"product-scanner/pkg/camera/camerafake"
)

func TestNegotiatePrefersContinuousFocus(t *testing.T) {
	dev := camerafake.NewDevice(camera.Capabilities{
		FocusModes:        []camera.FocusMode{camera.FocusContinuous, camera.FocusSingleShot},
		ExposureModes:     []camera.ExposureMode{camera.ExposureContinuous},
		WhiteBalanceModes: []camera.WhiteBalanceMode{camera.WhiteBalanceContinuous},
	})

	n, err := camera.Negotiate(context.Background(), dev, camera.StreamRequest{}, time.Second)
	require.NoError(t, err)
	assert.True(t, n.ContinuousFocus)
	assert.Equal(t, camera.FocusContinuous, n.FocusMode)

	applied := dev.Last().Applied()
	require.Len(t, applied, 3)
	assert.Equal(t, camera.FocusContinuous, applied[0].FocusMode)
	assert.Equal(t, camera.ExposureContinuous, applied[1].ExposureMode)
	assert.Equal(t, camera.WhiteBalanceContinuous, applied[2].WhiteBalanceMode)
}

func TestNegotiateFallsBackToSingleShot(t *testing.T) {
	dev := camerafake.NewDevice(camera.Capabilities{
		FocusModes: []camera.FocusMode{camera.FocusSingleShot},
	})

	n, err := camera.Negotiate(context.Background(), dev, camera.StreamRequest{}, time.Second)
	require.NoError(t, err)
	assert.False(t, n.ContinuousFocus)
	assert.Equal(t, []camera.FocusMode{camera.FocusSingleShot}, dev.Last().FocusModes())
}

func TestNegotiateSwallowsApplyErrors(t *testing.T) {
	dev := camerafake.NewDevice(camera.Capabilities{
		FocusModes:    []camera.FocusMode{camera.FocusContinuous},
		ExposureModes: []camera.ExposureMode{camera.ExposureContinuous},
	})
	n, err := camera.Negotiate(context.Background(), &failingApply{dev}, camera.StreamRequest{}, time.Second)
	require.NoError(t, err)
	assert.True(t, n.ContinuousFocus)
}

func TestNegotiateErrors(t *testing.T) {
	_, err := camera.Negotiate(context.Background(), nil, camera.StreamRequest{}, time.Second)
	assert.ErrorIs(t, err, camera.ErrCameraUnavailable)

	dev := camerafake.NewDevice(camera.Capabilities{})
	dev.OpenErr = camera.ErrPermissionDenied
	_, err = camera.Negotiate(context.Background(), dev, camera.StreamRequest{}, time.Second)
	assert.ErrorIs(t, err, camera.ErrPermissionDenied)
}

func TestNegotiatePlaybackFailed(t *testing.T) {
	dev := camerafake.NewDevice(camera.Capabilities{})
	dev.Blank = true

	_, err := camera.Negotiate(context.Background(), dev, camera.StreamRequest{}, 50*time.Millisecond)
	assert.ErrorIs(t, err, camera.ErrPlaybackFailed)
	assert.True(t, dev.Last().Closed(), "a stream that never played must be released")
}

func TestRangeClamp(t *testing.T) {
	r := camera.Range{Min: 1, Max: 5, Step: 0.5}
	assert.Equal(t, 1.0, r.Clamp(-3))
	assert.Equal(t, 5.0, r.Clamp(9))
	assert.Equal(t, 2.5, r.Clamp(2.4))
	assert.Equal(t, 3.0, r.Clamp(2.8))
}

type failingApply struct{ *camerafake.Device }

func (f *failingApply) Open(ctx context.Context, req camera.StreamRequest) (camera.Stream, error) {
	s, err := f.Device.Open(ctx, req)
	if err != nil {
		return nil, err
	}
	s.(*camerafake.Stream).ApplyErr = errors.New("VIDIOC_S_CTRL: invalid argument")
	return s, nil
}
