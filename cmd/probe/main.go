package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/goccy/go-json"

	"product-scanner/pkg/camera"
	"product-scanner/pkg/ov"
)

func main() {
	devName := "/dev/video0"
	flag.StringVar(&devName, "d", devName, "device name (path)")
	width := flag.Int("w", 1920, "requested width")
	height := flag.Int("h", 1080, "requested height")
	timeout := flag.Duration("timeout", 3*time.Second, "wait for the first frame")
	text := flag.Bool("text", false, "print the controls as text instead of the json report")
	flag.Parse()

	dev := camera.NewV4L2(devName)
	report := ov.Probe{Device: devName}

	// controls are read before streaming, some drivers refuse a second open
	_, ctrls, err := dev.Settings()
	if err != nil {
		log.Fatalf("failed to read controls: %s", err)
	}
	for _, ctrl := range ctrls {
		if *text {
			fmt.Print(camera.CtrlToString(ctrl))
		}
		report.Controls = append(report.Controls, ov.ControlOf(ctrl))
	}
	if *text {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout+5*time.Second)
	defer cancel()
	neg, err := camera.Negotiate(ctx, dev, camera.StreamRequest{
		Facing:     "environment",
		Width:      *width,
		Height:     *height,
		BufferSize: 2,
	}, *timeout)
	if err != nil {
		log.Fatalf("failed to open device: %s", err)
	}
	defer neg.Stream.Close()

	report.Capabilities = neg.Caps
	report.ContinuousFocus = neg.ContinuousFocus
	report.FocusMode = neg.FocusMode
	if f, ok := neg.Stream.Frame(); ok {
		report.Width, report.Height, report.Format = f.Width, f.Height, f.Format
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "    ")
	if err := enc.Encode(report); err != nil {
		log.Fatal(err)
	}
}
