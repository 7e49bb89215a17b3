// Package sequence implements the frame sequencer shared by every
// animated image format. A Sequencer owns a format Backend and tracks the
// current frame index, the most recently decoded frame and its display
// duration. Decoding past the last frame rewinds the backend and continues
// from frame 0, so a sequence never ends.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
)

// Errors reported while creating or driving a sequence. Backends wrap one
// of these with the underlying library error.
var (
	ErrAllocation  = errors.New("animage: allocation failed")
	ErrLibraryInit = errors.New("animage: decoder initialization failed")
	ErrStreamScan  = errors.New("animage: malformed stream")
	ErrNoFrame     = errors.New("animage: image has no frame")
	ErrInfoQuery   = errors.New("animage: animation info unavailable")
	ErrDecode      = errors.New("animage: frame decode failed")
	ErrClosed      = errors.New("animage: reader closed")
)

// Info holds the immutable properties of an animation.
type Info struct {
	Width      int
	Height     int
	FrameCount int
	LoopCount  int // 0 means loop forever.
}

// Backend is a format specific frame source. Frames are requested strictly
// in order, starting at 0 after construction or Reset.
type Backend interface {
	// Info returns the animation properties found at construction.
	Info() Info

	// Reset restarts the backend at the first frame with a clear canvas.
	Reset() error

	// DecodeFrame decodes frame index and returns a canvas snapshot that
	// the backend will not write to again, together with the frame display
	// duration in milliseconds.
	DecodeFrame(index int) (*image.NRGBA, int, error)

	// Close releases the backend resources.
	Close() error
}

// Config holds the limits and logger handed to backends.
type Config struct {
	// MaxCanvasArea is the largest accepted canvas, in pixels.
	MaxCanvasArea int

	// Logger receives debug and warning records. Nil discards them.
	Logger *slog.Logger
}

// Log returns the configured logger or a discarding logger.
func (c Config) Log() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// CheckCanvas reports an ErrAllocation when a w×h canvas exceeds the limit.
func (c Config) CheckCanvas(w, h int) error {
	if c.MaxCanvasArea <= 0 {
		return nil
	}
	if area := uint64(w) * uint64(h); area > uint64(c.MaxCanvasArea) {
		return fmt.Errorf("%w: canvas %dx%d exceeds %d pixels", ErrAllocation, w, h, c.MaxCanvasArea)
	}
	return nil
}

// Sequencer drives a Backend through the frame sequence.
//
// A new Sequencer is positioned before the first frame: FrameIndex
// returns -1 and FrameRGBA returns nil until DecodeNextFrame succeeds.
type Sequencer struct {
	backend Backend
	info    Info
	log     *slog.Logger

	index    int
	frame    *image.NRGBA
	duration int
	closed   bool
}

// New returns a Sequencer positioned before the first frame of b.
func New(b Backend, log *slog.Logger) *Sequencer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Sequencer{
		backend: b,
		info:    b.Info(),
		log:     log,
		index:   -1,
	}
}

// Info returns the animation properties.
func (s *Sequencer) Info() Info { return s.info }

func (s *Sequencer) CanvasWidth() int  { return s.info.Width }
func (s *Sequencer) CanvasHeight() int { return s.info.Height }
func (s *Sequencer) FrameCount() int   { return s.info.FrameCount }
func (s *Sequencer) LoopCount() int    { return s.info.LoopCount }

// FrameIndex returns the index of the current frame, or -1 before the
// first decode and after a rewind.
func (s *Sequencer) FrameIndex() int { return s.index }

// FrameDuration returns the display duration of the current frame in
// milliseconds. It is 0 when no frame is decoded.
func (s *Sequencer) FrameDuration() int { return s.duration }

// FrameRGBA returns the current frame as non-premultiplied RGBA bytes,
// 4*CanvasWidth per row, or nil when no frame is decoded. The slice is not
// modified by later calls.
func (s *Sequencer) FrameRGBA() []byte {
	if s.frame == nil {
		return nil
	}
	return s.frame.Pix
}

// Frame returns the current frame as an image, or nil.
func (s *Sequencer) Frame() *image.NRGBA { return s.frame }

// Rewind positions the sequence before the first frame.
func (s *Sequencer) Rewind() error {
	if s.closed {
		return ErrClosed
	}
	s.unset()
	if err := s.backend.Reset(); err != nil {
		return fmt.Errorf("%w: rewind: %w", ErrDecode, err)
	}
	s.log.LogAttrs(context.Background(), slog.LevelDebug, "rewind")
	return nil
}

// DecodeNextFrame advances to the next frame and decodes it. After the
// last frame the backend is reset and decoding continues at frame 0,
// whatever the loop count says.
//
// On failure the current frame is unset and its duration is 0. The index
// keeps the position of the failed frame.
func (s *Sequencer) DecodeNextFrame() error {
	if s.closed {
		return ErrClosed
	}
	next := s.index + 1
	if next >= s.info.FrameCount {
		s.log.LogAttrs(context.Background(), slog.LevelDebug, "loop",
			slog.Int("frames", s.info.FrameCount))
		if err := s.backend.Reset(); err != nil {
			s.unset()
			return fmt.Errorf("%w: loop rewind: %w", ErrDecode, err)
		}
		next = 0
	}
	s.index = next
	img, d, err := s.backend.DecodeFrame(next)
	if err != nil {
		s.frame = nil
		s.duration = 0
		return fmt.Errorf("%w: frame %d: %w", ErrDecode, next, err)
	}
	s.frame = img
	s.duration = d
	return nil
}

// Close releases the backend. Further Rewind and DecodeNextFrame calls
// fail with ErrClosed. Close may be called more than once.
func (s *Sequencer) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.unset()
	return s.backend.Close()
}

func (s *Sequencer) unset() {
	s.index = -1
	s.frame = nil
	s.duration = 0
}
