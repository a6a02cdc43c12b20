package camera

import (
	"fmt"
	"time"

	"github.com/tomeksn/fitnessmirror/media"
	"gocv.io/x/gocv"
)

// Capture is the seam between the camera state machine and the actual
// hardware binding. The gocv-backed implementation below is this
// module's equivalent of the camera2/CameraX binding the original
// Android source held — a single opened device that yields frames and
// can be torn down. Tests substitute a fake Capture so they never touch
// real hardware.
type Capture interface {
	// ReadFrame blocks for the next frame. ok is false once the device
	// has been closed or has failed permanently.
	ReadFrame() (*media.RawFrame, bool)
	Close() error
}

// OpenFunc opens a Capture bound to a lens index. Production code uses
// openGoCV; tests inject a fake.
type OpenFunc func(lensIndex int, width, height int) (Capture, error)

// openGoCV opens a V4L2-style device index via gocv, this platform's
// analogue of "open the Back or Front camera" (there being no universal
// front/back distinction for a USB/UVC webcam, lens selection maps onto
// device index — see Config.LensDeviceIndex).
func openGoCV(lensIndex int, width, height int) (Capture, error) {
	vc, err := gocv.OpenVideoCapture(lensIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCameraUnavailable, err)
	}
	vc.Set(gocv.VideoCaptureFrameWidth, float64(width))
	vc.Set(gocv.VideoCaptureFrameHeight, float64(height))
	return &gocvCapture{vc: vc, width: width, height: height}, nil
}

type gocvCapture struct {
	vc            *gocv.VideoCapture
	width, height int
	bgr           gocv.Mat
	yuv           gocv.Mat
	closed        bool
}

func (c *gocvCapture) ReadFrame() (*media.RawFrame, bool) {
	if c.closed {
		return nil, false
	}
	if c.bgr.Empty() {
		c.bgr = gocv.NewMat()
	}
	if c.yuv.Empty() {
		c.yuv = gocv.NewMat()
	}
	if ok := c.vc.Read(&c.bgr); !ok || c.bgr.Empty() {
		return nil, false
	}

	// ColorBGRToYUV_I420 packs Y, then U, then V, each with no row
	// padding — the "bulk copy" case of the three-case plane algorithm
	// every consumer downstream is already written to handle.
	gocv.CvtColor(c.bgr, &c.yuv, gocv.ColorBGRToYUV_I420)
	raw := c.yuv.ToBytes()

	w, h := c.width, c.height
	chromaW, chromaH := w/2, h/2
	ySize := w * h
	chromaSize := chromaW * chromaH

	frame := &media.RawFrame{
		Width:        w,
		Height:       h,
		CaptureNanos: time.Now().UnixNano(),
		Y:            media.Plane{Data: raw[:ySize], RowStride: w, PixelStride: 1},
		U:            media.Plane{Data: raw[ySize : ySize+chromaSize], RowStride: chromaW, PixelStride: 1},
		V:            media.Plane{Data: raw[ySize+chromaSize : ySize+2*chromaSize], RowStride: chromaW, PixelStride: 1},
	}
	return frame, true
}

func (c *gocvCapture) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	if !c.bgr.Empty() {
		c.bgr.Close()
	}
	if !c.yuv.Empty() {
		c.yuv.Close()
	}
	return c.vc.Close()
}
