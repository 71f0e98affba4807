// Command scan runs one headless scanning session: it waits for a code to be
// confirmed and resolved, or captures a still when none shows up in time.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"product-scanner/pkg/camera"
	"product-scanner/pkg/config"
	"product-scanner/pkg/detect"
	"product-scanner/pkg/resolve"
	"product-scanner/pkg/scanner"
	"product-scanner/pkg/types"
	"product-scanner/pkg/utils"
)

func main() {
	cfgFile := flag.String("config", "", "yaml config file")
	dev := flag.String("dev", "", "video device path, overrides the config")
	wait := flag.Duration("wait", 10*time.Second, "how long to look for a code before capturing")
	out := flag.String("o", ".", "output directory")
	flag.Parse()

	logger := utils.GetLogger().Named("scan")
	defer logger.Sync()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		logger.Fatal(err)
	}
	if *dev != "" {
		cfg.Device.Path = *dev
	}
	det, err := detect.NewZXing(cfg.Detect.Formats...)
	if err != nil {
		logger.Fatal(err)
	}

	artifacts := make(chan types.Artifact, 1)
	sc := scanner.New(
		scanner.FromConfig(cfg),
		camera.NewV4L2(cfg.Device.Path),
		det,
		resolve.New(resolve.Config{
			Timeout:       cfg.Resolve.Timeout,
			MaxImageBytes: cfg.Resolve.MaxImageBytes,
			Endpoints:     cfg.Resolve.Endpoints,
			UserAgent:     cfg.Resolve.UserAgent,
		}, nil),
		scanner.Hooks{
			OnArtifact: func(a types.Artifact) {
				select {
				case artifacts <- a:
				default:
				}
			},
			OnCode: func(code string) {
				fmt.Printf("code: %s\n", code)
			},
			OnNotice: func(err error) {
				logger.Warn(err)
			},
		},
	)
	a, err := scan(context.Background(), sc, artifacts, *wait)
	_ = sc.Close()
	if err != nil {
		logger.Fatal(err)
	}

	p := filepath.Join(*out, a.Name)
	if err = os.WriteFile(p, a.Data, 0o644); err != nil {
		logger.Fatalf("save %s: %s", p, err)
	}
	fmt.Printf("saved %s (%s, %d bytes, from %s)\n", p, a.MIME, a.Size, a.Source)
}

type session interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Capture(ctx context.Context) (types.Artifact, error)
}

// scan starts a session and returns the first artifact: a resolved code
// within wait, else a captured still. A code still being resolved when wait
// runs out gets one more wait to finish.
func scan(ctx context.Context, sc session, artifacts <-chan types.Artifact, wait time.Duration) (types.Artifact, error) {
	if err := sc.Start(ctx); err != nil {
		return types.Artifact{}, fmt.Errorf("start: %w", err)
	}
	defer func() {
		_ = sc.Stop(ctx)
	}()

	select {
	case a := <-artifacts:
		return a, nil
	case <-time.After(wait):
	}

	a, err := sc.Capture(ctx)
	if !errors.Is(err, scanner.ErrInvalidState) {
		if err != nil {
			return types.Artifact{}, fmt.Errorf("capture: %w", err)
		}
		return a, nil
	}
	select {
	case a = <-artifacts:
		return a, nil
	case <-time.After(wait):
		return types.Artifact{}, fmt.Errorf("capture: %w", err)
	}
}
