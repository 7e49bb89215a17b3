// Package webpanim is the animated WebP frame source. The container is
// demuxed once; each frame bitstream is decoded only when the sequence
// reaches it and is released after compositing.
package webpanim

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	_ "github.com/deepteams/webp" // registers the VP8/VP8L frame decoder
	"github.com/deepteams/webp/animation"
	"github.com/deepteams/webp/mux"

	"github.com/deepteams/animage/internal/sequence"
)

// Decoder reads frames from animated WebP data.
type Decoder struct {
	anim *animation.Animation
	dec  *animation.AnimDecoder
	info sequence.Info

	// Cumulative presentation times in milliseconds of the current and
	// previous frame. Both restart at 0 with the sequence.
	current  int
	previous int
}

// New demuxes data and returns a Decoder positioned before the first
// frame. The Decoder keeps data; the caller must not modify it afterwards.
func New(data []byte, cfg sequence.Config) (*Decoder, error) {
	if animation.FrameDecoderFunc == nil {
		return nil, fmt.Errorf("%w: %w", sequence.ErrLibraryInit, animation.ErrNoDecoder)
	}
	anim, err := demux(data)
	if err != nil {
		if errors.Is(err, mux.ErrNoImage) {
			return nil, fmt.Errorf("%w: %w", sequence.ErrNoFrame, err)
		}
		return nil, fmt.Errorf("%w: %w", sequence.ErrLibraryInit, err)
	}
	if len(anim.Frames) == 0 {
		return nil, sequence.ErrNoFrame
	}
	if err := cfg.CheckCanvas(anim.CanvasWidth, anim.CanvasHeight); err != nil {
		return nil, err
	}
	dec, err := animation.NewAnimDecoder(anim)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sequence.ErrInfoQuery, err)
	}

	d := &Decoder{
		anim: anim,
		dec:  dec,
		info: sequence.Info{
			Width:      anim.CanvasWidth,
			Height:     anim.CanvasHeight,
			FrameCount: len(anim.Frames),
			LoopCount:  anim.LoopCount,
		},
	}
	cfg.Log().LogAttrs(context.Background(), slog.LevelDebug, "webp demuxed",
		slog.Int("width", d.info.Width), slog.Int("height", d.info.Height),
		slog.Int("frames", d.info.FrameCount), slog.Int("loop", d.info.LoopCount))
	return d, nil
}

// demux parses the container. The demuxer panics on some malformed
// headers; those come back as errors.
func demux(data []byte) (anim *animation.Animation, err error) {
	defer func() {
		if p := recover(); p != nil {
			anim, err = nil, fmt.Errorf("webp: demux: %v", p)
		}
	}()
	return animation.DecodeBytes(data)
}

// Info implements sequence.Backend.
func (d *Decoder) Info() sequence.Info { return d.info }

// Reset clears the canvas and both timestamps.
func (d *Decoder) Reset() error {
	d.dec.Reset()
	d.current = 0
	d.previous = 0
	return nil
}

// timestamp returns the end time of the current frame in milliseconds.
func (d *Decoder) timestamp() int { return d.current }

// DecodeFrame decodes and composites the next frame. The returned duration
// is the difference between the current and previous timestamps, so it is
// 0 when decoding fails. Once a frame fails, the frames after it fail
// too until the next Reset. A panic in the codec is returned as an error.
func (d *Decoder) DecodeFrame(index int) (img *image.NRGBA, ms int, err error) {
	d.previous = d.current
	if index < 0 || index >= len(d.anim.Frames) {
		return nil, 0, fmt.Errorf("frame %d out of range [0, %d)", index, len(d.anim.Frames))
	}
	f := &d.anim.Frames[index]
	defer func() {
		if p := recover(); p != nil {
			f.Image = nil
			img, ms, err = nil, 0, fmt.Errorf("webp: frame %d: %v", index, p)
		}
	}()
	if f.Image == nil {
		bitmap, err := animation.FrameDecoderFunc(f.BitstreamData, f.AlphaData)
		if err != nil {
			return nil, 0, err
		}
		f.Image = bitmap
	}
	snap, dur, err := d.dec.NextFrame()
	f.Image = nil
	if err != nil {
		return nil, 0, err
	}
	d.current += int(dur / time.Millisecond)
	return snap, d.current - d.previous, nil
}

// Close drops the demuxed animation.
func (d *Decoder) Close() error {
	d.anim = nil
	d.dec = nil
	return nil
}
