package jpegenc

import (
	"bytes"
	"image/jpeg"
	"testing"

	"github.com/tomeksn/fitnessmirror/media"
)

func solidFrame(w, h int) *media.RawFrame {
	y := make([]byte, w*h)
	for i := range y {
		y[i] = 120
	}
	cw, ch := w/2, h/2
	u := make([]byte, cw*ch)
	v := make([]byte, cw*ch)
	for i := range u {
		u[i] = 90
		v[i] = 160
	}
	return &media.RawFrame{
		Width: w, Height: h,
		Y: media.Plane{Data: y, RowStride: w, PixelStride: 1},
		U: media.Plane{Data: u, RowStride: cw, PixelStride: 1},
		V: media.Plane{Data: v, RowStride: cw, PixelStride: 1},
	}
}

func TestEncodeFastPathNoScale(t *testing.T) {
	enc := New(DefaultConfig())
	out, err := enc.Encode(solidFrame(160, 120))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if out.Width != 160 || out.Height != 120 {
		t.Fatalf("expected unchanged dims 160x120, got %dx%d", out.Width, out.Height)
	}
	if _, err := jpeg.Decode(bytes.NewReader(out.Bytes)); err != nil {
		t.Fatalf("expected valid jpeg: %v", err)
	}
}

func TestEncodeScalesDownOversizedFrame(t *testing.T) {
	enc := New(DefaultConfig())
	out, err := enc.Encode(solidFrame(1280, 720))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if out.Width > MaxWidth || out.Height > MaxHeight {
		t.Fatalf("expected dims within %dx%d, got %dx%d", MaxWidth, MaxHeight, out.Width, out.Height)
	}
	if out.Width != MaxWidth && out.Height != MaxHeight {
		t.Fatalf("expected one dimension to hit the bound exactly, got %dx%d", out.Width, out.Height)
	}
	img, err := jpeg.Decode(bytes.NewReader(out.Bytes))
	if err != nil {
		t.Fatalf("expected valid jpeg: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != out.Width || b.Dy() != out.Height {
		t.Fatalf("decoded dims %dx%d do not match reported %dx%d", b.Dx(), b.Dy(), out.Width, out.Height)
	}
}

func TestEncodeRejectsInvalidFrame(t *testing.T) {
	enc := New(DefaultConfig())
	bad := solidFrame(4, 2)
	bad.Width = 3 // odd width fails Validate
	if _, err := enc.Encode(bad); err == nil {
		t.Fatal("expected validation error for odd width")
	}
}

func TestDefaultConfigAppliesQualityFloor(t *testing.T) {
	enc := New(Config{})
	if enc.cfg.Quality != DefaultQuality {
		t.Fatalf("expected quality to default to %d, got %d", DefaultQuality, enc.cfg.Quality)
	}
}
