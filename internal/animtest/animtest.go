// Package animtest builds small encoded animations for tests.
package animtest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"time"

	gif "github.com/NathanBaulch/gifx"
	_ "github.com/deepteams/webp" // registers the VP8/VP8L frame codecs
	"github.com/deepteams/webp/animation"
)

// GIFFrame is one frame of a GIF fixture. The frame fills Rect with Color;
// a zero Rect covers the canvas and a zero alpha makes it transparent.
type GIFFrame struct {
	Rect     image.Rectangle
	Color    color.NRGBA
	Delay    int // centiseconds
	Disposal byte
}

// GIF describes a GIF fixture.
type GIF struct {
	Width, Height int
	LoopCount     int // negative omits the NETSCAPE2.0 extension
	Frames        []GIFFrame
}

// Encode returns the fixture as GIF89a bytes.
func (g GIF) Encode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gif.NewEncoder(&buf)
	if err := enc.WriteHeader(image.Config{Width: g.Width, Height: g.Height}, 0); err != nil {
		return nil, err
	}
	if g.LoopCount >= 0 {
		if err := enc.WriteApplicationNetscape(&gif.ApplicationNetscape{LoopCount: g.LoopCount}); err != nil {
			return nil, err
		}
	}
	for _, f := range g.Frames {
		r := f.Rect
		if r.Empty() {
			r = image.Rect(0, 0, g.Width, g.Height)
		}
		c := color.RGBA{R: f.Color.R, G: f.Color.G, B: f.Color.B, A: 0xff}
		pm := image.NewPaletted(r, color.Palette{c, color.RGBA{}})
		if f.Color.A == 0 {
			for i := range pm.Pix {
				pm.Pix[i] = 1
			}
		}
		err := enc.WriteFrame(&gif.Frame{
			Image:          pm,
			DelayTime:      time.Duration(f.Delay) * 10 * time.Millisecond,
			DisposalMethod: f.Disposal,
		})
		if err != nil {
			return nil, err
		}
	}
	if err := enc.WriteTrailer(); err != nil {
		return nil, err
	}
	if err := enc.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WebPFrame is one full canvas frame of a WebP fixture.
type WebPFrame struct {
	Color    color.NRGBA
	Duration int // milliseconds
}

// WebP describes an animated WebP fixture. Consecutive frames must differ
// in colour, otherwise the encoder merges them.
type WebP struct {
	Width, Height int
	LoopCount     int
	Frames        []WebPFrame
}

// Encode returns the fixture as lossless animated WebP bytes. A fixture
// without frames is written as a bare animation header.
func (w WebP) Encode() ([]byte, error) {
	if len(w.Frames) == 0 {
		return emptyWebP(w.Width, w.Height, w.LoopCount), nil
	}
	var buf bytes.Buffer
	enc := animation.NewEncoder(&buf, w.Width, w.Height, &animation.EncodeOptions{
		LoopCount: w.LoopCount,
		Lossless:  true,
		Quality:   75,
	})
	if enc == nil {
		return nil, errors.New("animtest: invalid webp canvas")
	}
	for _, f := range w.Frames {
		img := Solid(w.Width, w.Height, f.Color)
		if err := enc.AddFrame(img, time.Duration(f.Duration)*time.Millisecond); err != nil {
			return nil, err
		}
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// emptyWebP returns a RIFF container with VP8X and ANIM chunks and no
// ANMF frames.
func emptyWebP(w, h, loop int) []byte {
	le := binary.LittleEndian
	b := make([]byte, 0, 44)
	b = append(b, "RIFF"...)
	b = le.AppendUint32(b, 4+8+10+8+6)
	b = append(b, "WEBP"...)

	b = append(b, "VP8X"...)
	b = le.AppendUint32(b, 10)
	b = append(b, 0x02, 0, 0, 0) // animation flag
	b = append(b, byte(w-1), byte((w-1)>>8), byte((w-1)>>16))
	b = append(b, byte(h-1), byte((h-1)>>8), byte((h-1)>>16))

	b = append(b, "ANIM"...)
	b = le.AppendUint32(b, 6)
	b = le.AppendUint32(b, 0) // background
	b = le.AppendUint16(b, uint16(loop))
	return b
}

// Solid returns a w×h image filled with c.
func Solid(w, h int, c color.NRGBA) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// Palette returns n distinct opaque colours.
func Palette(n int) []color.NRGBA {
	p := make([]color.NRGBA, n)
	for i := range p {
		p[i] = color.NRGBA{R: uint8(40 * (i + 1)), G: uint8(255 - 30*i), B: uint8(17 * i), A: 0xff}
	}
	return p
}
