// Package pixel converts the decode engine's native pixel layouts into the
// canonical 3-byte-per-pixel interleaved RGB stream the bridge writes on its
// primary channel. The transforms are stateless and never allocate per frame;
// callers hand in pre-sized buffers that stay invariant across a session.
package pixel

import (
	"errors"
	"fmt"
)

// Layout identifies a native engine pixel layout.
type Layout int

const (
	// LayoutRGB is already the canonical interleaved 8-bit RGB order.
	LayoutRGB Layout = iota
	// LayoutRGBA is 4-component interleaved with a trailing alpha byte that
	// is dropped.
	LayoutRGBA
	// LayoutBGR is 3-component interleaved with channels 0 and 2 swapped.
	LayoutBGR
)

func (l Layout) String() string {
	switch l {
	case LayoutRGB:
		return "rgb"
	case LayoutRGBA:
		return "rgba"
	case LayoutBGR:
		return "bgr"
	default:
		return "unknown"
	}
}

// BytesPerPixel returns the native source stride per pixel for the layout.
func (l Layout) BytesPerPixel() int {
	if l == LayoutRGBA {
		return 4
	}
	return 3
}

// ErrBufferSize indicates a source or destination buffer whose length does
// not match width*height at the layout's stride.
var ErrBufferSize = errors.New("pixel: buffer length does not match dimensions")

// Normalize rewrites src into canonical RGB. For LayoutBGR and LayoutRGB the
// transform is in place and dst is ignored (may be nil). For LayoutRGBA the
// packed RGB output is written to dst, which must hold width*height*3 bytes.
// It returns the slice holding the normalized pixels.
func Normalize(layout Layout, src, dst []byte, width, height int) ([]byte, error) {
	pixels := width * height
	if len(src) != pixels*layout.BytesPerPixel() {
		return nil, fmt.Errorf("%w: src len %d for %dx%d %s", ErrBufferSize, len(src), width, height, layout)
	}

	switch layout {
	case LayoutRGB:
		return src, nil

	case LayoutBGR:
		swapBGR(src)
		return src, nil

	case LayoutRGBA:
		if len(dst) != pixels*3 {
			return nil, fmt.Errorf("%w: dst len %d for %dx%d rgb", ErrBufferSize, len(dst), width, height)
		}
		dropAlpha(src, dst)
		return dst, nil

	default:
		return nil, fmt.Errorf("pixel: unsupported layout %d", layout)
	}
}

// swapBGR exchanges channels 0 and 2 of every 3-byte pixel in place.
func swapBGR(p []byte) {
	for i := 0; i+2 < len(p); i += 3 {
		p[i], p[i+2] = p[i+2], p[i]
	}
}

// dropAlpha packs 4-byte RGBA pixels into 3-byte RGB, discarding alpha.
func dropAlpha(src, dst []byte) {
	si, di := 0, 0
	for si+3 < len(src) {
		dst[di] = src[si]
		dst[di+1] = src[si+1]
		dst[di+2] = src[si+2]
		si += 4
		di += 3
	}
}
