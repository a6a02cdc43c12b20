package media

// CopyPlanar copies a width x height plane from src (with its own
// row/pixel stride) into dst, which is assumed packed (row-stride ==
// width, pixel-stride == 1). This is the three-case algorithm described
// in §4.3 and §4.4: a bulk copy when the source is already packed, a
// per-row copy when only the row-stride is padded, and a per-pixel copy
// when the source is semi-planar/interleaved (pixel-stride > 1).
func CopyPlanar(dst []byte, width, height int, src Plane) {
	pixelStride := src.pixelStrideOrOne()
	rowStride := src.RowStride
	if rowStride <= 0 {
		rowStride = width * pixelStride
	}

	switch {
	case pixelStride == 1 && rowStride == width:
		// Case 1: planar, no padding at all — one bulk copy.
		copy(dst, src.Data[:width*height])

	case pixelStride == 1:
		// Case 2: planar with row padding — copy row by row.
		for row := 0; row < height; row++ {
			srcStart := row * rowStride
			dstStart := row * width
			copy(dst[dstStart:dstStart+width], src.Data[srcStart:srcStart+width])
		}

	default:
		// Case 3: semi-planar/interleaved — copy sample by sample.
		for row := 0; row < height; row++ {
			rowBase := row * rowStride
			dstBase := row * width
			for col := 0; col < width; col++ {
				dst[dstBase+col] = src.Data[rowBase+col*pixelStride]
			}
		}
	}
}

// InterleaveChroma builds an NV21-style interleaved V/U buffer (§4.3
// step 1, §GLOSSARY NV21) from two chroma planes of size chromaW x
// chromaH, using the same three-case copy rules per source plane.
func InterleaveChroma(dst []byte, chromaW, chromaH int, u, v Plane) {
	copyChromaInto := func(dst []byte, offset int, chromaW, chromaH int, p Plane) {
		pixelStride := p.pixelStrideOrOne()
		rowStride := p.RowStride
		if rowStride <= 0 {
			rowStride = chromaW * pixelStride
		}
		for row := 0; row < chromaH; row++ {
			rowBase := row * rowStride
			dstRow := row*chromaW*2 + offset
			for col := 0; col < chromaW; col++ {
				dst[dstRow+col*2] = p.Data[rowBase+col*pixelStride]
			}
		}
	}
	// NV21 byte order is V then U, interleaved.
	copyChromaInto(dst, 0, chromaW, chromaH, v)
	copyChromaInto(dst, 1, chromaW, chromaH, u)
}
