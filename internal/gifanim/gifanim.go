// Package gifanim is the GIF frame source. The stream is scanned once at
// construction to count frames and collect their delays; frames are then
// decoded on demand by replaying the block stream.
package gifanim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"math"
	"time"

	gif "github.com/NathanBaulch/gifx"

	"github.com/deepteams/animage/internal/sequence"
)

// Decoder reads frames from GIF data.
type Decoder struct {
	data   []byte
	info   sequence.Info
	delays []int // centiseconds
	log    *slog.Logger

	dec    *gif.Decoder
	canvas *canvas
}

// New scans data and returns a Decoder positioned before the first frame.
// The Decoder keeps data; the caller must not modify it afterwards.
func New(data []byte, cfg sequence.Config) (*Decoder, error) {
	log := cfg.Log()

	r := bytes.NewReader(data)
	dec := gif.NewDecoder(r)
	hdr, err := dec.ReadHeader()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", sequence.ErrLibraryInit, err)
	}
	w, h := hdr.Config.Width, hdr.Config.Height
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("%w: empty logical screen %dx%d", sequence.ErrStreamScan, w, h)
	}
	if err := cfg.CheckCanvas(w, h); err != nil {
		return nil, err
	}

	d := &Decoder{
		data: data,
		info: sequence.Info{Width: w, Height: h, LoopCount: 1},
		log:  log,
	}
	if err := d.scan(dec, r); err != nil {
		return nil, err
	}
	if len(d.delays) == 0 {
		return nil, sequence.ErrNoFrame
	}
	d.info.FrameCount = len(d.delays)
	d.canvas = newCanvas(w, h)
	if err := d.Reset(); err != nil {
		return nil, fmt.Errorf("%w: %w", sequence.ErrLibraryInit, err)
	}

	log.LogAttrs(context.Background(), slog.LevelDebug, "gif scanned",
		slog.Int("width", w), slog.Int("height", h),
		slog.Int("frames", d.info.FrameCount), slog.Int("loop", d.info.LoopCount))
	return d, nil
}

// scan reads every block up to the trailer. Data that ends early is
// accepted with the frames read so far.
func (d *Decoder) scan(dec *gif.Decoder, r *bytes.Reader) error {
	for {
		b, err := dec.ReadBlock()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			if r.Len() == 0 {
				d.log.LogAttrs(context.Background(), slog.LevelWarn, "gif truncated",
					slog.Int("frames", len(d.delays)), slog.Any("error", err))
				return nil
			}
			return fmt.Errorf("%w: %w", sequence.ErrStreamScan, err)
		}
		switch b := b.(type) {
		case *gif.Frame:
			d.delays = append(d.delays, int(b.DelayTime/(10*time.Millisecond)))
		case *gif.ApplicationNetscape:
			d.info.LoopCount = b.LoopCount
		}
	}
}

// Info implements sequence.Backend.
func (d *Decoder) Info() sequence.Info { return d.info }

// Reset restarts the block stream after the header and clears the canvas.
func (d *Decoder) Reset() error {
	d.dec = gif.NewDecoder(bytes.NewReader(d.data))
	if _, err := d.dec.ReadHeader(); err != nil {
		return err
	}
	d.canvas.clear()
	return nil
}

// DecodeFrame composites the next frame in the stream.
func (d *Decoder) DecodeFrame(index int) (*image.NRGBA, int, error) {
	if index < 0 || index >= len(d.delays) {
		return nil, 0, fmt.Errorf("frame %d out of range [0, %d)", index, len(d.delays))
	}
	for {
		b, err := d.dec.ReadBlock()
		if err == io.EOF {
			return nil, 0, errors.New("gif: trailer before frame")
		}
		if err != nil {
			return nil, 0, err
		}
		if f, ok := b.(*gif.Frame); ok {
			return d.canvas.render(f), Duration(d.delays[index]), nil
		}
	}
}

// Close drops the stream and canvas.
func (d *Decoder) Close() error {
	d.dec = nil
	d.canvas = nil
	d.data = nil
	return nil
}

// Duration converts a delay in centiseconds to milliseconds, saturating
// at math.MaxInt32.
func Duration(cs int) int {
	if cs <= 0 {
		return 0
	}
	if cs > math.MaxInt32/10 {
		return math.MaxInt32
	}
	return cs * 10
}
