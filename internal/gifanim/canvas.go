package gifanim

import (
	"image"

	gif "github.com/NathanBaulch/gifx"
	"golang.org/x/image/draw"

	"github.com/deepteams/animage/internal/pool"
)

// canvas accumulates GIF frames into a full RGBA image, applying each
// frame's disposal method once its snapshot has been taken.
type canvas struct {
	img *image.NRGBA
}

func newCanvas(w, h int) *canvas {
	return &canvas{img: image.NewNRGBA(image.Rect(0, 0, w, h))}
}

// clear makes the whole canvas transparent.
func (c *canvas) clear() {
	clear(c.img.Pix)
}

// render draws f over the canvas and returns a copy of the result. The
// canvas is then left in the state the next frame is drawn on.
func (c *canvas) render(f *gif.Frame) *image.NRGBA {
	b := f.Image.Bounds().Intersect(c.img.Bounds())

	var saved []byte
	if f.DisposalMethod == gif.DisposalPrevious {
		saved = c.save(b)
		defer pool.Put(saved)
	}

	// Transparent palette entries are zero colours, so Over keeps the
	// canvas pixel underneath them.
	draw.Draw(c.img, b, f.Image, b.Min, draw.Over)

	snap := image.NewNRGBA(c.img.Bounds())
	copy(snap.Pix, c.img.Pix)

	switch f.DisposalMethod {
	case gif.DisposalBackground:
		c.clearRect(b)
	case gif.DisposalPrevious:
		c.restore(b, saved)
	}
	return snap
}

// save copies the pixels under r into a pooled buffer.
func (c *canvas) save(r image.Rectangle) []byte {
	if r.Empty() {
		return nil
	}
	w := r.Dx() * 4
	saved := pool.Get(r.Dy() * w)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := c.img.PixOffset(r.Min.X, y)
		copy(saved[(y-r.Min.Y)*w:], c.img.Pix[off:off+w])
	}
	return saved
}

func (c *canvas) restore(r image.Rectangle, saved []byte) {
	if r.Empty() || saved == nil {
		return
	}
	w := r.Dx() * 4
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := c.img.PixOffset(r.Min.X, y)
		copy(c.img.Pix[off:off+w], saved[(y-r.Min.Y)*w:])
	}
}

// clearRect restores r to the background, which is transparent.
func (c *canvas) clearRect(r image.Rectangle) {
	if r.Empty() {
		return
	}
	w := r.Dx() * 4
	for y := r.Min.Y; y < r.Max.Y; y++ {
		off := c.img.PixOffset(r.Min.X, y)
		clear(c.img.Pix[off : off+w])
	}
}
