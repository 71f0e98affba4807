package camera

import (
	"fmt"

	"github.com/vladimirvivien/go4vl/v4l2"
	"go.uber.org/zap"

	"product-scanner/pkg/utils"
)

var logger *zap.SugaredLogger

func init() {
	logger = utils.GetLogger().Named("camera")
}

// V4L2 control ids, see linux/v4l2-controls.h.
const (
	cameraClassBase v4l2.CtrlID = 0x009a0900
	flashClassBase  v4l2.CtrlID = 0x009c0900
	userClassBase   v4l2.CtrlID = 0x00980900

	ctrlAutoWhiteBalance  = userClassBase + 12
	ctrlExposureAuto      = cameraClassBase + 1
	ctrlExposureAbsolute  = cameraClassBase + 2
	ctrlFocusAuto         = cameraClassBase + 12
	ctrlZoomAbsolute      = cameraClassBase + 13
	ctrlAutoExposureBias  = cameraClassBase + 19
	ctrlAutoFocusStart    = cameraClassBase + 28
	ctrlFlashLEDMode      = flashClassBase + 1
	ctrlFlashTorchIntense = flashClassBase + 8
)

// V4L2_CID_EXPOSURE_AUTO menu values.
const (
	exposureAuto             v4l2.CtrlValue = 0
	exposureManual           v4l2.CtrlValue = 1
	exposureAperturePriority v4l2.CtrlValue = 3
)

// V4L2_CID_FLASH_LED_MODE menu values.
const (
	flashLEDNone  v4l2.CtrlValue = 0
	flashLEDTorch v4l2.CtrlValue = 2
)

var knownCtrlID = []v4l2.CtrlID{
	ctrlAutoWhiteBalance,
	ctrlExposureAuto,
	ctrlExposureAbsolute,
	ctrlFocusAuto,
	ctrlZoomAbsolute,
	ctrlAutoExposureBias,
	ctrlAutoFocusStart,
	ctrlFlashLEDMode,
	ctrlFlashTorchIntense,
}

// controlQuerier reads a single control; v4l2.GetControl bound to a device fd
// in production.
type controlQuerier func(id v4l2.CtrlID) (v4l2.Control, error)

// queryCapabilities maps the V4L2 controls a device exposes onto the
// hardware-neutral capability report.
func queryCapabilities(get controlQuerier) (Capabilities, v4l2.CtrlValue) {
	var (
		caps          Capabilities
		exposureValue = exposureAuto
	)
	if ctrl, err := get(ctrlZoomAbsolute); err == nil {
		caps.Zoom = ctrlRange(ctrl)
	}
	if ctrl, err := get(ctrlAutoExposureBias); err == nil {
		caps.Exposure = ctrlRange(ctrl)
	}
	if _, err := get(ctrlFlashLEDMode); err == nil {
		caps.Torch = true
	}
	if _, err := get(ctrlFocusAuto); err == nil {
		caps.FocusModes = append(caps.FocusModes, FocusContinuous, FocusManual)
	}
	if _, err := get(ctrlAutoFocusStart); err == nil {
		caps.FocusModes = append(caps.FocusModes, FocusSingleShot)
	}
	if ctrl, err := get(ctrlExposureAuto); err == nil {
		caps.ExposureModes = append(caps.ExposureModes, ExposureManual)
		if v, ok := continuousExposureValue(ctrl); ok {
			caps.ExposureModes = append(caps.ExposureModes, ExposureContinuous)
			exposureValue = v
		}
	}
	if _, err := get(ctrlAutoWhiteBalance); err == nil {
		caps.WhiteBalanceModes = []WhiteBalanceMode{WhiteBalanceContinuous, WhiteBalanceManual}
	}

	return caps, exposureValue
}

func ctrlRange(ctrl v4l2.Control) *Range {
	step := float64(ctrl.Step)
	if step <= 0 {
		step = 1
	}
	return &Range{Min: float64(ctrl.Minimum), Max: float64(ctrl.Maximum), Step: step}
}

// continuousExposureValue picks the menu entry that keeps exposure adjusting
// by itself. UVC cameras usually only offer manual and aperture priority.
func continuousExposureValue(ctrl v4l2.Control) (v4l2.CtrlValue, bool) {
	if !ctrl.IsMenu() {
		return exposureAuto, true
	}
	items, err := ctrl.GetMenuItems()
	if err != nil {
		return 0, false
	}
	var aperture bool
	for _, item := range items {
		switch v4l2.CtrlValue(item.Index) {
		case exposureAuto:
			return exposureAuto, true
		case exposureAperturePriority:
			aperture = true
		}
	}

	return exposureAperturePriority, aperture
}

func CtrlToString(ctrl v4l2.Control) string {
	return fmt.Sprintf("Control id (%d) name: %s\t[min: %d; max: %d; step: %d; default: %d current_val: %d]\n",
		ctrl.ID, ctrl.Name, ctrl.Minimum, ctrl.Maximum, ctrl.Step, ctrl.Default, ctrl.Value)
}
