package media

import "testing"

func TestCopyPlanarBulk(t *testing.T) {
	src := Plane{Data: []byte{1, 2, 3, 4, 5, 6}, RowStride: 3, PixelStride: 1}
	dst := make([]byte, 6)
	CopyPlanar(dst, 3, 2, src)
	want := []byte{1, 2, 3, 4, 5, 6}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("bulk copy mismatch at %d: got %d want %d", i, dst[i], want[i])
		}
	}
}

func TestCopyPlanarRowPadded(t *testing.T) {
	// width=2, height=2, row stride=3 (one padding byte per row).
	src := Plane{Data: []byte{1, 2, 0xAA, 3, 4, 0xBB}, RowStride: 3, PixelStride: 1}
	dst := make([]byte, 4)
	CopyPlanar(dst, 2, 2, src)
	want := []byte{1, 2, 3, 4}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("row-padded copy mismatch at %d: got %d want %d", i, dst[i], want[i])
		}
	}
}

func TestCopyPlanarSemiPlanar(t *testing.T) {
	// pixel stride 2 (e.g. every other byte belongs to this plane).
	src := Plane{Data: []byte{1, 0xFF, 2, 0xFF, 3, 0xFF, 4, 0xFF}, RowStride: 4, PixelStride: 2}
	dst := make([]byte, 4)
	CopyPlanar(dst, 2, 2, src)
	want := []byte{1, 2, 3, 4}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("semi-planar copy mismatch at %d: got %d want %d", i, dst[i], want[i])
		}
	}
}

func TestInterleaveChroma(t *testing.T) {
	u := Plane{Data: []byte{0x10, 0x20}, RowStride: 2, PixelStride: 1}
	v := Plane{Data: []byte{0x30, 0x40}, RowStride: 2, PixelStride: 1}
	dst := make([]byte, 4)
	InterleaveChroma(dst, 2, 1, u, v)
	want := []byte{0x30, 0x10, 0x40, 0x20}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("interleave mismatch at %d: got %#x want %#x", i, dst[i], want[i])
		}
	}
}

func TestRawFrameValidate(t *testing.T) {
	f := &RawFrame{
		Width: 4, Height: 2,
		Y: Plane{Data: make([]byte, 8), RowStride: 4, PixelStride: 1},
		U: Plane{Data: make([]byte, 2), RowStride: 2, PixelStride: 1},
		V: Plane{Data: make([]byte, 2), RowStride: 2, PixelStride: 1},
	}
	if err := f.Validate(); err != nil {
		t.Fatalf("expected valid frame, got %v", err)
	}

	bad := &RawFrame{Width: 3, Height: 2}
	if err := bad.Validate(); err == nil {
		t.Fatalf("expected error for odd width")
	}
}
