// Package ov holds the request and response bodies of the HTTP API and the
// probe command.
package ov

import (
	"github.com/vladimirvivien/go4vl/v4l2"

	"product-scanner/pkg/camera"
)

type Mode struct {
	Mode string `json:"mode" binding:"required,oneof=photo video"`
}

// Point is a tap on the preview, in percent of its width and height.
type Point struct {
	X *float64 `json:"x" binding:"required,min=0,max=100"`
	Y *float64 `json:"y" binding:"required,min=0,max=100"`
}

type Value struct {
	Value *float64 `json:"value" binding:"required"`
}

type Switch struct {
	On *bool `json:"on" binding:"required"`
}

type Analyze struct {
	// Name selects a stored artifact, empty means the one under review.
	Name    string `json:"name"`
	Context string `json:"context"`
	// Code adds the standard scan context for a code when Context is empty.
	Code string `json:"code"`
}

type Focus struct {
	Accepted bool `json:"accepted"`
}

type Applied struct {
	Value float64 `json:"value"`
}

type Control struct {
	ID    v4l2.CtrlID
	Value v4l2.CtrlValue
	Name  string

	IsMenu bool

	MenuItems []string

	Minimum int32
	Maximum int32
	Step    int32
}

func ControlOf(ctrl v4l2.Control) Control {
	c := Control{
		ID:      ctrl.ID,
		Value:   ctrl.Value,
		Name:    ctrl.Name,
		IsMenu:  ctrl.IsMenu(),
		Minimum: ctrl.Minimum,
		Maximum: ctrl.Maximum,
		Step:    ctrl.Step,
	}
	if c.IsMenu {
		if items, err := ctrl.GetMenuItems(); err == nil {
			for _, m := range items {
				c.MenuItems = append(c.MenuItems, m.Name)
			}
		}
	}

	return c
}

// Probe is the report printed by the probe command.
type Probe struct {
	Device          string              `json:"device"`
	Width           int                 `json:"width"`
	Height          int                 `json:"height"`
	Format          camera.PixelFormat  `json:"format"`
	Capabilities    camera.Capabilities `json:"capabilities"`
	ContinuousFocus bool                `json:"continuousFocus"`
	FocusMode       camera.FocusMode    `json:"focusMode"`
	Controls        []Control           `json:"controls"`
}
