package animage

import (
	"bytes"
	"errors"
	"image/color"
	"log/slog"
	"net/url"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/deepteams/animage/internal/animtest"
)

func gifFixture(t testing.TB, delays ...int) []byte {
	t.Helper()
	p := animtest.Palette(len(delays))
	g := animtest.GIF{Width: 3, Height: 2, LoopCount: 0}
	for i, d := range delays {
		g.Frames = append(g.Frames, animtest.GIFFrame{Color: p[i], Delay: d})
	}
	data, err := g.Encode()
	if err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	return data
}

func webpFixture(t testing.TB, durations ...int) []byte {
	t.Helper()
	p := animtest.Palette(len(durations))
	w := animtest.WebP{Width: 3, Height: 2, LoopCount: 2}
	for i, d := range durations {
		w.Frames = append(w.Frames, animtest.WebPFrame{Color: p[i], Duration: d})
	}
	data, err := w.Encode()
	if err != nil {
		t.Fatalf("encode webp: %v", err)
	}
	return data
}

type step struct {
	Index    int
	Duration int
}

func play(t *testing.T, r Reader, n int) []step {
	t.Helper()
	var got []step
	for range n {
		if err := r.DecodeNextFrame(); err != nil {
			t.Fatalf("DecodeNextFrame: %v", err)
		}
		got = append(got, step{r.FrameIndex(), r.FrameDuration()})
	}
	return got
}

// --- sequencing ---

func TestReader_Sequence(t *testing.T) {
	tests := []struct {
		name   string
		data   []byte
		format Format
	}{
		{"gif", gifFixture(t, 10, 20, 5), FormatGIF},
		{"webp", webpFixture(t, 100, 200, 50), FormatWebP},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(tt.data, nil)
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}
			defer r.Close()
			if r.Format() != tt.format {
				t.Errorf("Format = %v, want %v", r.Format(), tt.format)
			}
			if r.FrameIndex() != -1 || r.FrameRGBA() != nil {
				t.Errorf("new reader: index = %d, rgba nil = %v", r.FrameIndex(), r.FrameRGBA() == nil)
			}
			want := []step{{0, 100}, {1, 200}, {2, 50}, {0, 100}}
			if diff := cmp.Diff(want, play(t, r, 4)); diff != "" {
				t.Errorf("sequence mismatch (-want +got):\n%s", diff)
			}
			if got := len(r.FrameRGBA()); got != 4*3*2 {
				t.Errorf("len(FrameRGBA) = %d, want %d", got, 4*3*2)
			}
		})
	}
}

func TestReader_LoopInvariant(t *testing.T) {
	for _, data := range [][]byte{gifFixture(t, 1, 2), webpFixture(t, 10, 20)} {
		r, err := NewReader(data, nil)
		if err != nil {
			t.Fatalf("NewReader: %v", err)
		}
		n := r.FrameCount()
		for k := 1; k <= 3*n+1; k++ {
			if err := r.DecodeNextFrame(); err != nil {
				t.Fatalf("%v: decode %d: %v", r.Format(), k, err)
			}
			if got, want := r.FrameIndex(), (k-1)%n; got != want {
				t.Errorf("%v: after %d decodes index = %d, want %d", r.Format(), k, got, want)
			}
		}
		r.Close()
	}
}

func TestReader_RewindEquivalence(t *testing.T) {
	for _, data := range [][]byte{gifFixture(t, 3, 4, 5), webpFixture(t, 30, 40, 50)} {
		r, err := NewReader(data, nil)
		if err != nil {
			t.Fatalf("NewReader: %v", err)
		}
		var first [][]byte
		var firstSteps []step
		for range 3 {
			if err := r.DecodeNextFrame(); err != nil {
				t.Fatal(err)
			}
			first = append(first, r.FrameRGBA())
			firstSteps = append(firstSteps, step{r.FrameIndex(), r.FrameDuration()})
		}

		// Move somewhere in the middle, then rewind.
		r.DecodeNextFrame()
		if err := r.Rewind(); err != nil {
			t.Fatalf("Rewind: %v", err)
		}
		if r.FrameIndex() != -1 || r.FrameRGBA() != nil {
			t.Errorf("%v: after Rewind index = %d", r.Format(), r.FrameIndex())
		}
		for i := range 3 {
			if err := r.DecodeNextFrame(); err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(firstSteps[i], step{r.FrameIndex(), r.FrameDuration()}); diff != "" {
				t.Errorf("%v frame %d step mismatch (-first +again):\n%s", r.Format(), i, diff)
			}
			if !bytes.Equal(first[i], r.FrameRGBA()) {
				t.Errorf("%v frame %d pixels differ after Rewind", r.Format(), i)
			}
		}
		r.Close()
	}
}

func TestReader_WebPDurationSum(t *testing.T) {
	durations := []int{70, 10, 250, 40}
	r, err := NewWebPReader(webpFixture(t, durations...), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	sum, want := 0, 0
	for _, d := range durations {
		want += d
	}
	for range r.FrameCount() {
		if err := r.DecodeNextFrame(); err != nil {
			t.Fatal(err)
		}
		sum += r.FrameDuration()
	}
	if sum != want {
		t.Errorf("sum of durations = %d, want %d", sum, want)
	}
}

func TestReader_FramePixels(t *testing.T) {
	p := animtest.Palette(2)
	for _, data := range [][]byte{gifFixture(t, 1, 1), webpFixture(t, 10, 10)} {
		r, err := NewReader(data, nil)
		if err != nil {
			t.Fatal(err)
		}
		for i := range 2 {
			if err := r.DecodeNextFrame(); err != nil {
				t.Fatal(err)
			}
			rgba := r.FrameRGBA()
			got := color.NRGBA{R: rgba[0], G: rgba[1], B: rgba[2], A: rgba[3]}
			if got != p[i] {
				t.Errorf("%v frame %d: first pixel = %v, want %v", r.Format(), i, got, p[i])
			}
			if r.Frame().NRGBAAt(2, 1) != p[i] {
				t.Errorf("%v frame %d: last pixel = %v, want %v", r.Format(), i, r.Frame().NRGBAAt(2, 1), p[i])
			}
		}
		r.Close()
	}
}

// --- construction ---

func TestNewReader_NoFrame(t *testing.T) {
	g, err := animtest.GIF{Width: 2, Height: 2}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	w, err := animtest.WebP{Width: 2, Height: 2}.Encode()
	if err != nil {
		t.Fatal(err)
	}
	for _, data := range [][]byte{g, w} {
		if _, err := NewReader(data, nil); !errors.Is(err, ErrNoFrame) {
			t.Errorf("%v: err = %v, want ErrNoFrame", Probe(data), err)
		}
	}
}

func TestNewReader_Unsupported(t *testing.T) {
	_, err := NewReader([]byte("\x89PNG\r\n\x1a\n"), nil)
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("err = %v, want ErrUnsupported", err)
	}
	_, err = NewReader(gifFixture(t, 1), &Options{Formats: []Format{FormatWebP}})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("disabled GIF: err = %v, want ErrUnsupported", err)
	}
}

func TestNewReader_FormatFilter(t *testing.T) {
	tests := []struct {
		name    string
		formats []Format
		want    bool
	}{
		{"nil", nil, true},
		{"empty", []Format{}, true},
		{"gif", []Format{FormatGIF}, true},
		{"webp only", []Format{FormatWebP}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := &Options{Formats: tt.formats}
			if got := opts.Enabled(FormatGIF); got != tt.want {
				t.Errorf("Enabled(GIF) = %v, want %v", got, tt.want)
			}
			r, err := NewReader(gifFixture(t, 1), opts)
			if (err == nil) != tt.want {
				t.Fatalf("NewReader err = %v, want accepted %v", err, tt.want)
			}
			if r != nil {
				r.Close()
			}
		})
	}
	var nilOpts *Options
	if !nilOpts.Enabled(FormatWebP) || nilOpts.Enabled(FormatUnknown) {
		t.Error("nil Options: want every supported format and nothing else")
	}
}

func TestNewReader_TruncatedWebPHeader(t *testing.T) {
	_, err := NewReader([]byte("RIFF\x00\x00\x00\x00WEBP"), nil)
	if !errors.Is(err, ErrLibraryInit) {
		t.Errorf("err = %v, want ErrLibraryInit", err)
	}
}

func TestNewReader_WrongConstructor(t *testing.T) {
	_, err := NewWebPReader(gifFixture(t, 1), nil)
	if !errors.Is(err, ErrLibraryInit) {
		t.Errorf("GIF data to WebP reader: err = %v, want ErrLibraryInit", err)
	}
	_, err = NewGIFReader(webpFixture(t, 10), nil)
	if !errors.Is(err, ErrLibraryInit) {
		t.Errorf("WebP data to GIF reader: err = %v, want ErrLibraryInit", err)
	}
}

func TestNewReader_CopiesInput(t *testing.T) {
	data := gifFixture(t, 1, 2)
	want := bytes.Clone(data)
	r, err := NewReader(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	clear(data)
	play(t, r, 3)

	ref, err := NewReader(want, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer ref.Close()
	play(t, ref, 3)
	if !bytes.Equal(r.FrameRGBA(), ref.FrameRGBA()) {
		t.Error("reader depends on the caller's buffer")
	}
}

func TestNewReader_Limits(t *testing.T) {
	data := gifFixture(t, 1)
	if _, err := NewReader(data, &Options{MaxInputSize: len(data) - 1}); !errors.Is(err, ErrAllocation) {
		t.Errorf("input limit: err = %v, want ErrAllocation", err)
	}
	if _, err := NewReader(data, &Options{MaxCanvasArea: 5}); !errors.Is(err, ErrAllocation) {
		t.Errorf("canvas limit: err = %v, want ErrAllocation", err)
	}
	if _, err := NewReader(data, &Options{MaxInputSize: -1, MaxCanvasArea: -1}); err != nil {
		t.Errorf("no limits: %v", err)
	}
}

func TestOpen(t *testing.T) {
	data := webpFixture(t, 10, 20)
	r, err := Open(bytes.NewReader(data), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	want := Info{Format: FormatWebP, CanvasWidth: 3, CanvasHeight: 2, FrameCount: 2, LoopCount: 2}
	if diff := cmp.Diff(want, Stat(r)); diff != "" {
		t.Errorf("Stat mismatch (-want +got):\n%s", diff)
	}

	_, err = Open(bytes.NewReader(data), &Options{MaxInputSize: 16})
	if !errors.Is(err, ErrAllocation) {
		t.Errorf("limited Open: err = %v, want ErrAllocation", err)
	}
}

func TestReader_Close(t *testing.T) {
	r, err := NewReader(gifFixture(t, 1), nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := r.DecodeNextFrame(); !errors.Is(err, ErrClosed) {
		t.Errorf("DecodeNextFrame after Close: err = %v, want ErrClosed", err)
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestReader_Logging(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	r, err := NewReader(gifFixture(t, 1), &Options{Logger: log})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	play(t, r, 2)
	for _, msg := range []string{"msg=\"gif scanned\"", "msg=\"reader created\"", "msg=loop", "format=GIF"} {
		if !strings.Contains(buf.String(), msg) {
			t.Errorf("log missing %s:\n%s", msg, buf.String())
		}
	}
}

// --- probing ---

func TestProbe(t *testing.T) {
	tests := []struct {
		name string
		data string
		want Format
	}{
		{"gif87a", "GIF87a......", FormatGIF},
		{"gif89a", "GIF89a", FormatGIF},
		{"gif88a", "GIF88a", FormatUnknown},
		{"webp", "RIFF\x00\x00\x00\x00WEBPVP8X", FormatWebP},
		{"riff wave", "RIFF\x00\x00\x00\x00WAVE", FormatUnknown},
		{"short riff", "RIFF\x00\x00\x00\x00WEB", FormatUnknown},
		{"empty", "", FormatUnknown},
	}
	for _, tt := range tests {
		if got := Probe([]byte(tt.data)); got != tt.want {
			t.Errorf("%s: Probe = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestProbeURL(t *testing.T) {
	tests := []struct {
		url  string
		want Format
	}{
		{"https://example.com/cat.gif", FormatGIF},
		{"https://example.com/cat.GIFV?x=1", FormatGIF},
		{"https://example.com/a/b/cat.webp#t", FormatWebP},
		{"https://example.com/cat.png", FormatUnknown},
		{"https://example.com/cat", FormatUnknown},
		{"https://example.com/dir.gif/", FormatUnknown},
		{"data:image/gif;base64,R0lGODlh", FormatGIF},
		{"data:image/webp;base64,UklGRg==", FormatWebP},
		{"data:image/png;base64,iVBOR", FormatUnknown},
		{"data:image/gif,GIF89a", FormatGIF},
		{"data:image/gif", FormatUnknown},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.url)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.url, err)
		}
		if got := ProbeURL(u); got != tt.want {
			t.Errorf("ProbeURL(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}

func TestSupportedFormats(t *testing.T) {
	got := SupportedFormats()
	if diff := cmp.Diff([]Format{FormatGIF, FormatWebP}, got); diff != "" {
		t.Errorf("SupportedFormats mismatch (-want +got):\n%s", diff)
	}
	got[0] = FormatUnknown
	if SupportedFormats()[0] != FormatGIF {
		t.Error("SupportedFormats exposes internal state")
	}
	for _, f := range SupportedFormats() {
		if p, ok := ParseFormat(strings.ToLower(f.String())); !ok || p != f {
			t.Errorf("ParseFormat(%q) = %v, %v", f, p, ok)
		}
	}
}
