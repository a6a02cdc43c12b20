// Package jpegenc implements the JPEG Encoder (C3): RawFrame -> a
// scaled EncodedJpeg no larger than 320x240, for the WebSocket/SSE
// fallback path (§4.3).
package jpegenc

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"log"

	"golang.org/x/image/draw"

	"github.com/tomeksn/fitnessmirror/media"
)

// MaxWidth and MaxHeight bound the fallback JPEG resolution. §9's open
// questions leave it ambiguous whether this is a wire contract or a
// tunable; this module treats it as a wire constant, per that section's
// resolution.
const (
	MaxWidth  = 320
	MaxHeight = 240
)

// DefaultQuality is the JPEG quality used unless Config overrides it.
const DefaultQuality = 45

// Config configures the encoder.
type Config struct {
	Quality int
}

// DefaultConfig returns the §4.3 default quality.
func DefaultConfig() Config {
	return Config{Quality: DefaultQuality}
}

// Encoder converts RawFrames to EncodedJpeg values.
type Encoder struct {
	cfg Config
}

// New creates an Encoder.
func New(cfg Config) *Encoder {
	if cfg.Quality <= 0 {
		cfg.Quality = DefaultQuality
	}
	return &Encoder{cfg: cfg}
}

// EncodeInto adapts Encoder to router.FrameConsumer-shaped usage: it
// encodes the frame and calls sink with the result, swallowing and
// logging encode errors rather than propagating them — per §4.3 and §7,
// FrameProcessingError just drops the frame.
func (e *Encoder) EncodeInto(frame *media.RawFrame, sink func(*media.EncodedJpeg)) {
	out, err := e.Encode(frame)
	if err != nil {
		log.Printf("[jpegenc] dropping frame: %v", err)
		return
	}
	sink(out)
}

// Encode runs the §4.3 algorithm: build an NV21-compatible interleaved
// chroma buffer from the RawFrame's planes (handling the three stride
// cases), encode at source resolution, and if that already fits within
// MaxWidth x MaxHeight, return it unchanged (the fast path — one
// encode). Otherwise decode the intermediate JPEG, scale uniformly, and
// re-encode at the configured quality (two encodes total).
func (e *Encoder) Encode(frame *media.RawFrame) (*media.EncodedJpeg, error) {
	if err := frame.Validate(); err != nil {
		return nil, fmt.Errorf("jpegenc: invalid frame: %w", err)
	}

	img := nv21Image(frame)

	var first bytes.Buffer
	if err := jpeg.Encode(&first, img, &jpeg.Options{Quality: e.cfg.Quality}); err != nil {
		return nil, fmt.Errorf("jpegenc: encode at source resolution: %w", err)
	}

	if frame.Width <= MaxWidth && frame.Height <= MaxHeight {
		return &media.EncodedJpeg{
			Bytes:   first.Bytes(),
			Width:   frame.Width,
			Height:  frame.Height,
			Quality: e.cfg.Quality,
		}, nil
	}

	decoded, err := jpeg.Decode(bytes.NewReader(first.Bytes()))
	if err != nil {
		return nil, fmt.Errorf("jpegenc: decode intermediate: %w", err)
	}

	scale := float64(MaxWidth) / float64(frame.Width)
	if hScale := float64(MaxHeight) / float64(frame.Height); hScale < scale {
		scale = hScale
	}
	dstW := int(float64(frame.Width) * scale)
	dstH := int(float64(frame.Height) * scale)
	if dstW < 1 {
		dstW = 1
	}
	if dstH < 1 {
		dstH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	draw.CatmullRom.Scale(dst, dst.Bounds(), decoded, decoded.Bounds(), draw.Over, nil)

	var final bytes.Buffer
	if err := jpeg.Encode(&final, dst, &jpeg.Options{Quality: e.cfg.Quality}); err != nil {
		return nil, fmt.Errorf("jpegenc: re-encode at target resolution: %w", err)
	}

	return &media.EncodedJpeg{
		Bytes:   final.Bytes(),
		Width:   dstW,
		Height:  dstH,
		Quality: e.cfg.Quality,
	}, nil
}

// nv21Image builds the NV21 interleaved buffer (§4.3 step 1) and wraps
// it as an image.Image the stdlib JPEG encoder can consume. Go's
// image/jpeg works over planar image.YCbCr, not NV21 directly, so the
// interleaved buffer is de-interleaved back into discrete Cb/Cr slices
// here — the interleave step itself is kept because it is where the
// three stride cases are actually exercised, matching §4.3 verbatim.
func nv21Image(frame *media.RawFrame) *image.YCbCr {
	w, h := frame.Width, frame.Height
	chromaW, chromaH := w/2, h/2

	nv21 := make([]byte, chromaW*chromaH*2)
	media.InterleaveChroma(nv21, chromaW, chromaH, frame.U, frame.V)

	img := image.NewYCbCr(image.Rect(0, 0, w, h), image.YCbCrSubsampleRatio420)
	media.CopyPlanar(img.Y, w, h, frame.Y)

	for i := 0; i < chromaW*chromaH; i++ {
		img.Cr[i] = nv21[i*2]
		img.Cb[i] = nv21[i*2+1]
	}
	return img
}
