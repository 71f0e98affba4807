// Package config holds every tunable of the scanner daemon. Values come from
// Default(), optionally overlaid by a YAML file, and finally by command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   Server   `yaml:"server"`
	Device   Device   `yaml:"device"`
	Detect   Detect   `yaml:"detect"`
	Focus    Focus    `yaml:"focus"`
	Exposure Exposure `yaml:"exposure"`
	Record   Record   `yaml:"record"`
	Resolve  Resolve  `yaml:"resolve"`
	Analysis Analysis `yaml:"analysis"`
}

type Server struct {
	Port       int    `yaml:"port"`
	WebdavPort int    `yaml:"webdavPort"`
	Dir        string `yaml:"dir"`
	Statics    string `yaml:"statics"`
	LogLevel   string `yaml:"logLevel"`
	NTPServer  string `yaml:"ntpServer"`
	// MaxUpload bounds the size of a file accepted by the upload fallback.
	MaxUpload int64 `yaml:"maxUpload"`
}

type Device struct {
	Path       string `yaml:"path"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	FPS        int    `yaml:"fps"`
	BufferSize int    `yaml:"bufferSize"`
	// StartTimeout bounds the wait for the first frame after opening.
	StartTimeout time.Duration `yaml:"startTimeout"`
}

type Detect struct {
	Interval time.Duration `yaml:"interval"`
	// CenterMin and CenterMax bound the band, as a fraction of the frame,
	// that a code's centre must fall in on both axes.
	CenterMin float64       `yaml:"centerMin"`
	CenterMax float64       `yaml:"centerMax"`
	MinFrames int           `yaml:"minFrames"`
	MinStable time.Duration `yaml:"minStable"`
	// Formats restricts the detector. Known: qr_code, ean_13, ean_8, upc_a, upc_e.
	Formats []string `yaml:"formats"`
}

type Focus struct {
	ManualThrottle time.Duration `yaml:"manualThrottle"`
	AutoThrottle   time.Duration `yaml:"autoThrottle"`
	// Periodic is the idle interval after which the detection loop refocuses
	// hardware that has no continuous autofocus.
	Periodic         time.Duration `yaml:"periodic"`
	RevertDelay      time.Duration `yaml:"revertDelay"`
	SettleManual     time.Duration `yaml:"settleManual"`
	SettleContinuous time.Duration `yaml:"settleContinuous"`
	BlurDuration     time.Duration `yaml:"blurDuration"`
	ReticleDuration  time.Duration `yaml:"reticleDuration"`
}

type Exposure struct {
	Interval      time.Duration `yaml:"interval"`
	Grid          int           `yaml:"grid"`
	FlashOnBelow  float64       `yaml:"flashOnBelow"`
	FlashOffAbove float64       `yaml:"flashOffAbove"`
	RefocusDelta  float64       `yaml:"refocusDelta"`
}

type Record struct {
	MaxSeconds int           `yaml:"maxSeconds"`
	Tick       time.Duration `yaml:"tick"`
	FPS        int           `yaml:"fps"`
	// Formats is the preference order of container MIME types.
	Formats []string `yaml:"formats"`
	TempDir string   `yaml:"tempDir"`
}

type Resolve struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxImageBytes int64         `yaml:"maxImageBytes"`
	// Endpoints are product lookup URL templates, %s is replaced by the barcode.
	Endpoints []string `yaml:"endpoints"`
	UserAgent string   `yaml:"userAgent"`
}

type Analysis struct {
	Endpoint string        `yaml:"endpoint"`
	Model    string        `yaml:"model"`
	APIKey   string        `yaml:"apiKey"`
	Timeout  time.Duration `yaml:"timeout"`
}

func Default() Config {
	return Config{
		Server: Server{
			Port:       9999,
			WebdavPort: 9998,
			Dir:        "./product-scanner",
			Statics:    "./statics",
			LogLevel:   "info",
			NTPServer:  "pool.ntp.org",
			MaxUpload:  64 << 20,
		},
		Device: Device{
			Path:         "/dev/video0",
			Width:        1920,
			Height:       1080,
			FPS:          30,
			BufferSize:   2,
			StartTimeout: 3 * time.Second,
		},
		Detect: Detect{
			Interval:  33 * time.Millisecond,
			CenterMin: 0.30,
			CenterMax: 0.70,
			MinFrames: 5,
			MinStable: 300 * time.Millisecond,
			Formats:   []string{"qr_code", "ean_13", "ean_8", "upc_a", "upc_e"},
		},
		Focus: Focus{
			ManualThrottle:   500 * time.Millisecond,
			AutoThrottle:     2 * time.Second,
			Periodic:         4 * time.Second,
			RevertDelay:      1200 * time.Millisecond,
			SettleManual:     600 * time.Millisecond,
			SettleContinuous: 150 * time.Millisecond,
			BlurDuration:     800 * time.Millisecond,
			ReticleDuration:  2 * time.Second,
		},
		Exposure: Exposure{
			Interval:      500 * time.Millisecond,
			Grid:          64,
			FlashOnBelow:  50,
			FlashOffAbove: 180,
			RefocusDelta:  8,
		},
		Record: Record{
			MaxSeconds: 10,
			Tick:       time.Second,
			FPS:        10,
			Formats:    []string{"video/x-msvideo"},
		},
		Resolve: Resolve{
			Timeout:       10 * time.Second,
			MaxImageBytes: 16 << 20,
			Endpoints: []string{
				"https://world.openfoodfacts.org/api/v0/product/%s.json",
				"https://world.openbeautyfacts.org/api/v0/product/%s.json",
			},
			UserAgent: "product-scanner/1.0",
		},
		Analysis: Analysis{
			Endpoint: "https://generativelanguage.googleapis.com/v1beta",
			Model:    "gemini-2.5-flash",
			Timeout:  60 * time.Second,
		},
	}
}

// Load returns Default() overlaid with the YAML file at path. An empty path
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if key := os.Getenv("SCANNER_ANALYSIS_API_KEY"); key != "" {
		cfg.Analysis.APIKey = key
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.Dir == "" {
		errs = append(errs, errors.New("server.dir can not be empty"))
	}
	if c.Device.Width <= 0 || c.Device.Height <= 0 {
		errs = append(errs, fmt.Errorf("device size %dx%d is invalid", c.Device.Width, c.Device.Height))
	}
	if c.Device.StartTimeout <= 0 {
		errs = append(errs, errors.New("device.startTimeout must be positive"))
	}
	if c.Detect.Interval <= 0 {
		errs = append(errs, errors.New("detect.interval must be positive"))
	}
	if c.Detect.CenterMin < 0 || c.Detect.CenterMax > 1 || c.Detect.CenterMin >= c.Detect.CenterMax {
		errs = append(errs, fmt.Errorf("detect center band [%v, %v] is invalid", c.Detect.CenterMin, c.Detect.CenterMax))
	}
	if c.Detect.MinFrames < 1 {
		errs = append(errs, errors.New("detect.minFrames must be at least 1"))
	}
	if c.Exposure.Interval <= 0 || c.Exposure.Grid <= 0 {
		errs = append(errs, errors.New("exposure.interval and exposure.grid must be positive"))
	}
	if c.Exposure.FlashOnBelow >= c.Exposure.FlashOffAbove {
		errs = append(errs, fmt.Errorf("flash thresholds %v/%v leave no hysteresis band", c.Exposure.FlashOnBelow, c.Exposure.FlashOffAbove))
	}
	if c.Record.MaxSeconds <= 0 || c.Record.Tick <= 0 || c.Record.FPS <= 0 {
		errs = append(errs, errors.New("record.maxSeconds, record.tick and record.fps must be positive"))
	}
	if c.Resolve.Timeout <= 0 {
		errs = append(errs, errors.New("resolve.timeout must be positive"))
	}

	return errors.Join(errs...)
}
