package scanner

import (
	"time"

	"product-scanner/pkg/camera"
	"product-scanner/pkg/config"
	"product-scanner/pkg/detect"
	"product-scanner/pkg/exposure"
	"product-scanner/pkg/focus"
	imageutil "product-scanner/pkg/utils/image"
)

type Config struct {
	Stream       camera.StreamRequest
	StartTimeout time.Duration

	DetectInterval time.Duration
	Region         detect.Region
	MinFrames      int
	MinStable      time.Duration

	Focus            focus.Config
	Exposure         exposure.Config
	ExposureInterval time.Duration

	RecordFormats    []string
	RecordMaxSeconds int
	RecordTick       time.Duration
	RecordFPS        int
	RecordTempDir    string

	Quality    int
	ShutterCue time.Duration
}

// FromConfig maps the daemon configuration onto the scanner's.
func FromConfig(c config.Config) Config {
	return Config{
		Stream: camera.StreamRequest{
			Facing:     "environment",
			Width:      c.Device.Width,
			Height:     c.Device.Height,
			FPS:        c.Device.FPS,
			BufferSize: c.Device.BufferSize,
		},
		StartTimeout:   c.Device.StartTimeout,
		DetectInterval: c.Detect.Interval,
		Region:         detect.Region{Min: c.Detect.CenterMin, Max: c.Detect.CenterMax},
		MinFrames:      c.Detect.MinFrames,
		MinStable:      c.Detect.MinStable,
		Focus: focus.Config{
			ManualThrottle:   c.Focus.ManualThrottle,
			AutoThrottle:     c.Focus.AutoThrottle,
			Periodic:         c.Focus.Periodic,
			RevertDelay:      c.Focus.RevertDelay,
			SettleManual:     c.Focus.SettleManual,
			SettleContinuous: c.Focus.SettleContinuous,
			BlurDuration:     c.Focus.BlurDuration,
			ReticleDuration:  c.Focus.ReticleDuration,
		},
		Exposure: exposure.Config{
			Grid:          c.Exposure.Grid,
			FlashOnBelow:  c.Exposure.FlashOnBelow,
			FlashOffAbove: c.Exposure.FlashOffAbove,
			RefocusDelta:  c.Exposure.RefocusDelta,
		},
		ExposureInterval: c.Exposure.Interval,
		RecordFormats:    c.Record.Formats,
		RecordMaxSeconds: c.Record.MaxSeconds,
		RecordTick:       c.Record.Tick,
		RecordFPS:        c.Record.FPS,
		RecordTempDir:    c.Record.TempDir,
		Quality:          imageutil.DefaultQuality,
		ShutterCue:       200 * time.Millisecond,
	}
}

func DefaultConfig() Config {
	return FromConfig(config.Default())
}
