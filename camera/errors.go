package camera

import "errors"

// ErrCameraUnavailable is returned when the requested lens is busy or
// the hardware reports an error on open (§7, CameraUnavailable).
var ErrCameraUnavailable = errors.New("camera: device unavailable")

// ErrLensMissing is returned by SwitchLens when the device only exposes
// one lens; the switch is aborted without unbinding the current one
// (§7, CameraLensMissing; §8 boundary behavior).
var ErrLensMissing = errors.New("camera: requested lens not available")

// ErrCameraInitFailed is the terminal error surfaced to the pipeline
// controller after the retry budget in Open is exhausted (§4.1).
var ErrCameraInitFailed = errors.New("camera: initialization failed")

// ErrClosed is returned by operations attempted after Close.
var ErrClosed = errors.New("camera: source is closed")
