package animage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"slices"

	"github.com/deepteams/animage/internal/gifanim"
	"github.com/deepteams/animage/internal/sequence"
	"github.com/deepteams/animage/internal/webpanim"
)

// Errors returned by the package. Returned errors wrap one of these and
// carry the decoder's own message.
var (
	ErrAllocation  = sequence.ErrAllocation  // input or canvas exceeds the configured limits
	ErrLibraryInit = sequence.ErrLibraryInit // the decoder could not be set up for the data
	ErrStreamScan  = sequence.ErrStreamScan  // the GIF block stream is malformed
	ErrNoFrame     = sequence.ErrNoFrame     // the image contains no frame
	ErrInfoQuery   = sequence.ErrInfoQuery   // the WebP animation properties are unusable
	ErrDecode      = sequence.ErrDecode      // a frame could not be decoded or the sequence restarted
	ErrClosed      = sequence.ErrClosed      // the Reader has been closed
	ErrUnsupported = errors.New("animage: unsupported format")
)

const (
	// DefaultMaxInputSize is the default limit on encoded input (256 MB).
	DefaultMaxInputSize = 256 << 20

	// DefaultMaxCanvasArea is the default limit on canvas pixels.
	DefaultMaxCanvasArea = 1 << 28
)

// Options configures Reader construction. A nil *Options uses the defaults.
type Options struct {
	// Formats restricts the accepted formats. An empty list, nil or not,
	// accepts every format returned by SupportedFormats.
	Formats []Format

	// MaxInputSize limits the encoded input size in bytes.
	// Zero means DefaultMaxInputSize; negative means no limit.
	MaxInputSize int

	// MaxCanvasArea limits the canvas width*height.
	// Zero means DefaultMaxCanvasArea; negative means no limit.
	MaxCanvasArea int

	// Logger receives debug records for sequence events and warnings for
	// tolerated damage. Nil discards them.
	Logger *slog.Logger
}

func (o *Options) maxInputSize() int {
	switch {
	case o == nil || o.MaxInputSize == 0:
		return DefaultMaxInputSize
	case o.MaxInputSize < 0:
		return 0
	}
	return o.MaxInputSize
}

func (o *Options) config() sequence.Config {
	cfg := sequence.Config{MaxCanvasArea: DefaultMaxCanvasArea}
	if o == nil {
		return cfg
	}
	switch {
	case o.MaxCanvasArea < 0:
		cfg.MaxCanvasArea = 0
	case o.MaxCanvasArea > 0:
		cfg.MaxCanvasArea = o.MaxCanvasArea
	}
	cfg.Logger = o.Logger
	return cfg
}

// Enabled reports whether readers built with o accept f.
func (o *Options) Enabled(f Format) bool {
	if !slices.Contains(supported, f) {
		return false
	}
	return o == nil || len(o.Formats) == 0 || slices.Contains(o.Formats, f)
}

// Reader decodes the frames of an animated image in order.
//
// A new Reader is positioned before the first frame: FrameIndex returns -1
// and FrameRGBA returns nil. Each successful DecodeNextFrame moves to the
// next frame, returning to frame 0 after the last one. A Reader is not safe
// for concurrent use.
type Reader interface {
	// Format reports the container format.
	Format() Format

	// CanvasWidth and CanvasHeight report the canvas size in pixels.
	CanvasWidth() int
	CanvasHeight() int

	// FrameCount reports the number of frames, at least 1.
	FrameCount() int

	// LoopCount reports how many times the animation should play,
	// 0 meaning forever. It does not limit DecodeNextFrame.
	LoopCount() int

	// Rewind positions the Reader before the first frame.
	Rewind() error

	// DecodeNextFrame decodes the next frame. On error the current frame
	// is unset and its duration is 0.
	DecodeNextFrame() error

	// FrameIndex reports the current frame index, or -1.
	FrameIndex() int

	// FrameDuration reports the current frame display time in milliseconds.
	FrameDuration() int

	// FrameRGBA returns the current frame as non-premultiplied RGBA,
	// 4*CanvasWidth bytes per row, or nil when no frame is decoded.
	// The returned slice is never modified by the Reader.
	FrameRGBA() []byte

	// Frame returns the current frame as an image sharing FrameRGBA's
	// pixels, or nil.
	Frame() *image.NRGBA

	// Close releases the decoder. Later Rewind and DecodeNextFrame calls
	// return ErrClosed.
	Close() error
}

// reader adds the format to the shared sequencer.
type reader struct {
	*sequence.Sequencer
	format Format
}

func (r *reader) Format() Format { return r.format }

// NewReader detects the format of data and returns a Reader for it.
// The data is copied; the caller may reuse it.
func NewReader(data []byte, opts *Options) (Reader, error) {
	return newReader(Probe(data), data, opts, true)
}

// NewGIFReader returns a Reader for GIF data. The data is copied.
func NewGIFReader(data []byte, opts *Options) (Reader, error) {
	return newReader(FormatGIF, data, opts, true)
}

// NewWebPReader returns a Reader for animated WebP data. The data is copied.
func NewWebPReader(data []byte, opts *Options) (Reader, error) {
	return newReader(FormatWebP, data, opts, true)
}

// Open reads r to the end and returns a Reader for its content.
func Open(r io.Reader, opts *Options) (Reader, error) {
	if limit := opts.maxInputSize(); limit > 0 {
		r = io.LimitReader(r, int64(limit)+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("animage: read: %w", err)
	}
	return newReader(Probe(data), data, opts, false)
}

func newReader(f Format, data []byte, opts *Options, copyData bool) (Reader, error) {
	switch {
	case f == FormatUnknown:
		return nil, fmt.Errorf("%w: unrecognized signature", ErrUnsupported)
	case !opts.Enabled(f):
		return nil, fmt.Errorf("%w: %s is disabled", ErrUnsupported, f)
	}
	if limit := opts.maxInputSize(); limit > 0 && len(data) > limit {
		return nil, fmt.Errorf("%w: input exceeds %d bytes", ErrAllocation, limit)
	}
	cfg := opts.config()

	// The backend keeps the bytes for the Reader's lifetime.
	if copyData {
		data = bytes.Clone(data)
	}

	var (
		b   sequence.Backend
		err error
	)
	switch f {
	case FormatGIF:
		b, err = gifanim.New(data, cfg)
	case FormatWebP:
		b, err = webpanim.New(data, cfg)
	}
	if err != nil {
		return nil, err
	}

	log := cfg.Log().With(slog.String("format", f.String()))
	log.LogAttrs(context.Background(), slog.LevelDebug, "reader created", slog.Int("bytes", len(data)))
	return &reader{Sequencer: sequence.New(b, log), format: f}, nil
}

// Stat returns the properties of r.
func Stat(r Reader) Info {
	return Info{
		Format:       r.Format(),
		CanvasWidth:  r.CanvasWidth(),
		CanvasHeight: r.CanvasHeight(),
		FrameCount:   r.FrameCount(),
		LoopCount:    r.LoopCount(),
	}
}

// Info summarises an animated image.
type Info struct {
	Format       Format
	CanvasWidth  int
	CanvasHeight int
	FrameCount   int
	LoopCount    int
}
