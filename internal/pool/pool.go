// Package pool keeps scratch buffers for canvas regions that are saved
// and restored while compositing frames. Buffers are grouped by the pixel
// area they can hold so that a small frame does not pin a canvas sized
// buffer.
package pool

import "sync"

// Area classes, in RGBA pixels.
const (
	Area64x64   = 64 * 64
	Area256x256 = 256 * 256
	Area1Kx1K   = 1024 * 1024
)

var areas = [...]int{Area64x64, Area256x256, Area1Kx1K}

var pools [len(areas) + 1]sync.Pool

// class returns the pool holding buffers for n bytes. The last class takes
// everything larger than the biggest area and keeps whatever it is given.
func class(n int) int {
	for i, a := range areas {
		if n <= 4*a {
			return i
		}
	}
	return len(areas)
}

// Get returns a buffer with len n for an RGBA region of n/4 pixels. The
// content is unspecified. Release it with Put.
func Get(n int) []byte {
	c := class(n)
	if bp, ok := pools[c].Get().(*[]byte); ok && cap(*bp) >= n {
		return (*bp)[:n]
	}
	size := n
	if c < len(areas) {
		size = 4 * areas[c]
	}
	return make([]byte, n, size)
}

// Put returns b to its pool.
func Put(b []byte) {
	if cap(b) == 0 {
		return
	}
	b = b[:cap(b)]
	c := class(cap(b))
	if c < len(areas) && cap(b) != 4*areas[c] {
		// Not allocated by Get.
		return
	}
	pools[c].Put(&b)
}
