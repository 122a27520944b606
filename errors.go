package dw3000

import "errors"

var (
	errInvalidMaskWidth  = errors.New("dw3000: invalid masked-write width")
	errCalibrationFailed = errors.New("dw3000: RX calibration failed")
)
