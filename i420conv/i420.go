// Package i420conv implements the I420 Converter (C4): RawFrame ->
// I420Frame, scaled to the WebRTC encode resolution and timestamped,
// for the WebRTC publishing path (§4.4). No cropping is done.
package i420conv

import (
	"fmt"

	"github.com/tomeksn/fitnessmirror/media"
)

// TargetWidth and TargetHeight are the encode-track resolution. §4.4
// leaves the exact figure to the embedder; 320x240 matches the
// analysis resolution already flowing out of C1, avoiding a second
// capture-side resize.
const (
	TargetWidth  = 320
	TargetHeight = 240
)

// Converter produces I420Frame values at a fixed target resolution.
type Converter struct {
	width, height int
}

// New creates a Converter for the given target dimensions. Zero values
// fall back to TargetWidth/TargetHeight.
func New(width, height int) *Converter {
	if width <= 0 {
		width = TargetWidth
	}
	if height <= 0 {
		height = TargetHeight
	}
	return &Converter{width: width, height: height}
}

// Convert copies frame's planes into a freshly allocated, packed
// I420Frame at the converter's target resolution, stamping nowNanos as
// the frame's capture time (§4.4: rotation is left at 0 here — any
// device rotation is applied by the embedder before WebRTC encode,
// per §9's open question on rotation ownership).
//
// When frame's dimensions differ from the target, Convert performs a
// nearest-neighbor resample of the whole source frame. It does not
// crop, so a source whose aspect ratio differs from the target's is
// stretched. The resample is cheap, allocation-free beyond the
// destination buffers, and adequate for the 320x240 analysis-grade
// feed WebRTC actually encodes (§4.4 does not call for a
// quality-grade resampler here; jpegenc's CatmullRom pass is what
// carries visual fidelity for the fallback path).
func (c *Converter) Convert(frame *media.RawFrame, nowNanos int64) (*media.I420Frame, error) {
	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("i420conv: invalid frame: %w", err)
	}

	out := media.NewI420Frame(c.width, c.height)
	out.RotationDeg = 0
	out.TimestampNs = nowNanos

	if frame.Width == c.width && frame.Height == c.height {
		media.CopyPlanar(out.Y, c.width, c.height, frame.Y)
		cw, ch := c.width/2, c.height/2
		media.CopyPlanar(out.U, cw, ch, frame.U)
		media.CopyPlanar(out.V, cw, ch, frame.V)
		return out, nil
	}

	resamplePlane(out.Y, c.width, c.height, frame.Y, frame.Width, frame.Height)
	srcCW, srcCH := frame.Width/2, frame.Height/2
	dstCW, dstCH := c.width/2, c.height/2
	resamplePlane(out.U, dstCW, dstCH, frame.U, srcCW, srcCH)
	resamplePlane(out.V, dstCW, dstCH, frame.V, srcCW, srcCH)

	return out, nil
}

// resamplePlane nearest-neighbor resamples src (dstW x dstH is the
// wanted packed output) into dst, honoring src's row/pixel strides.
func resamplePlane(dst []byte, dstW, dstH int, src media.Plane, srcW, srcH int) {
	if srcW <= 0 || srcH <= 0 {
		return
	}
	pixStride := src.PixelStride
	if pixStride <= 0 {
		pixStride = 1
	}
	for y := 0; y < dstH; y++ {
		srcY := y * srcH / dstH
		if srcY >= srcH {
			srcY = srcH - 1
		}
		rowOff := srcY * src.RowStride
		for x := 0; x < dstW; x++ {
			srcX := x * srcW / dstW
			if srcX >= srcW {
				srcX = srcW - 1
			}
			dst[y*dstW+x] = src.Data[rowOff+srcX*pixStride]
		}
	}
}
