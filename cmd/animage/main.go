// Command animage inspects and extracts the frames of animated GIF and
// WebP images.
//
// Usage:
//
//	animage [global flags] info <input>                Display animation properties
//	animage [global flags] frames [-n N] <input>       List frame indices and durations
//	animage [global flags] extract [-o dir] <input>    Write frames as PNG files
//	animage [global flags] probe <input|url>           Detect the format
//
// Use "-" as input to read from stdin.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"github.com/deepteams/animage"
	"github.com/deepteams/animage/internal/version"
)

func main() {
	os.Exit(Main())
}

// errUsage marks invocation errors, reported with exit status 2.
var errUsage = errors.New("usage")

// Main runs the command and returns its exit status.
func Main() int {
	flags := flag.NewFlagSet("animage", flag.ContinueOnError)
	logging := flags.String("log", "", "logging level (debug, info, warn or error)")
	lines := flags.Bool("lines", false, "display source line details in logs")
	cfgPath := flags.String("config", "", "TOML configuration file")
	v := flags.Bool("version", false, "print version and exit")
	flags.Usage = func() { printUsage(flags) }
	if err := flags.Parse(os.Args[1:]); err != nil {
		return 2
	}
	if *v {
		if err := version.Print(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "animage: %v\n", err)
		return 2
	}
	if *logging == "" {
		*logging = cfg.Log
	}
	if *logging == "" {
		*logging = "info"
	}
	var level slog.LevelVar
	if err := level.UnmarshalText([]byte(*logging)); err != nil {
		fmt.Fprintf(os.Stderr, "animage: invalid log level %q\n", *logging)
		return 2
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     &level,
		AddSource: *lines,
	})).With(slog.String("component", "animage"))

	opts, err := cfg.options(log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "animage: %v\n", err)
		return 2
	}

	args := flags.Args()
	if len(args) == 0 {
		printUsage(flags)
		return 2
	}
	switch args[0] {
	case "info":
		err = runInfo(opts, args[1:])
	case "frames":
		err = runFrames(opts, args[1:])
	case "extract":
		err = runExtract(opts, args[1:])
	case "probe":
		err = runProbe(opts, args[1:])
	case "help":
		printUsage(flags)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "animage: unknown command %q\n\n", args[0])
		printUsage(flags)
		return 2
	}
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return 2
	default:
		fmt.Fprintf(os.Stderr, "animage: %v\n", err)
		return 1
	}
}

func printUsage(flags *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `Usage:
  animage [flags] info <input>                 Display animation properties
  animage [flags] frames [-n N] <input>        List frame indices and durations
  animage [flags] extract [-o dir] <input>     Write frames as PNG files
  animage [flags] probe <input|url>            Detect the format

Use "-" as input to read from stdin.

Flags:
`)
	flags.SetOutput(os.Stderr)
	flags.PrintDefaults()
}

// openReader decodes the animation named by path, "-" meaning stdin.
func openReader(path string, opts *animage.Options) (animage.Reader, error) {
	if path == "-" {
		return animage.Open(os.Stdin, opts)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return animage.Open(f, opts)
}

// subcommand parses the flags of a subcommand that takes a single input.
func subcommand(fs *flag.FlagSet, args []string) (string, error) {
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: animage %s [options] <input>\n", fs.Name())
		fs.PrintDefaults()
		return "", errUsage
	}
	return fs.Arg(0), nil
}

// --- info ---

func runInfo(opts *animage.Options, args []string) error {
	fs := flag.NewFlagSet("info", flag.ContinueOnError)
	input, err := subcommand(fs, args)
	if err != nil {
		return err
	}
	r, err := openReader(input, opts)
	if err != nil {
		return fmt.Errorf("info: %w", err)
	}
	defer r.Close()

	// Frame durations are only known once decoded.
	total := 0
	for range r.FrameCount() {
		if err := r.DecodeNextFrame(); err != nil {
			return fmt.Errorf("info: %w", err)
		}
		total += r.FrameDuration()
	}

	name := input
	if input == "-" {
		name = "<stdin>"
	}
	info := animage.Stat(r)
	fmt.Printf("File:       %s\n", name)
	fmt.Printf("Format:     %s\n", info.Format)
	fmt.Printf("Dimensions: %d x %d\n", info.CanvasWidth, info.CanvasHeight)
	fmt.Printf("Frames:     %d\n", info.FrameCount)
	loop := "infinite"
	if info.LoopCount > 0 {
		loop = fmt.Sprintf("%d", info.LoopCount)
	}
	fmt.Printf("Loop count: %s\n", loop)
	fmt.Printf("Duration:   %d ms\n", total)
	return nil
}

// --- frames ---

func runFrames(opts *animage.Options, args []string) error {
	fs := flag.NewFlagSet("frames", flag.ContinueOnError)
	n := fs.Int("n", 0, "number of frames to decode (default one cycle)")
	input, err := subcommand(fs, args)
	if err != nil {
		return err
	}
	r, err := openReader(input, opts)
	if err != nil {
		return fmt.Errorf("frames: %w", err)
	}
	defer r.Close()

	count := *n
	if count <= 0 {
		count = r.FrameCount()
	}
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for range count {
		if err := r.DecodeNextFrame(); err != nil {
			return fmt.Errorf("frames: %w", err)
		}
		fmt.Fprintf(w, "%d %d\n", r.FrameIndex(), r.FrameDuration())
	}
	return nil
}

// --- extract ---

func runExtract(opts *animage.Options, args []string) error {
	fs := flag.NewFlagSet("extract", flag.ContinueOnError)
	dir := fs.String("o", ".", "output directory")
	n := fs.Int("n", 0, "number of frames to write (default one cycle)")
	scale := fs.Float64("scale", 1, "scale factor applied with nearest neighbour sampling")
	input, err := subcommand(fs, args)
	if err != nil {
		return err
	}
	if *scale <= 0 {
		return fmt.Errorf("extract: invalid scale %v", *scale)
	}
	r, err := openReader(input, opts)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	defer r.Close()

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		return err
	}
	count := *n
	if count <= 0 {
		count = r.FrameCount()
	}
	for i := range count {
		if err := r.DecodeNextFrame(); err != nil {
			return fmt.Errorf("extract: %w", err)
		}
		var img image.Image = r.Frame()
		if *scale != 1 {
			img = resize(r.Frame(), *scale)
		}
		path := filepath.Join(*dir, fmt.Sprintf("frame_%04d.png", i))
		if err := writePNG(path, img); err != nil {
			return fmt.Errorf("extract: %w", err)
		}
	}
	fmt.Fprintf(os.Stderr, "extracted %d frames to %s\n", count, *dir)
	return nil
}

func resize(src *image.NRGBA, scale float64) *image.NRGBA {
	b := src.Bounds()
	w := max(1, int(float64(b.Dx())*scale))
	h := max(1, int(float64(b.Dy())*scale))
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

func writePNG(path string, img image.Image) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(out, img); err != nil {
		out.Close()
		os.Remove(path)
		return err
	}
	return out.Close()
}

// --- probe ---

func runProbe(opts *animage.Options, args []string) error {
	fs := flag.NewFlagSet("probe", flag.ContinueOnError)
	input, err := subcommand(fs, args)
	if err != nil {
		return err
	}

	var f animage.Format
	if strings.HasPrefix(input, "data:") || strings.Contains(input, "://") {
		u, err := url.Parse(input)
		if err != nil {
			return fmt.Errorf("probe: %w", err)
		}
		f = animage.ProbeURL(u)
	} else {
		head, err := readHead(input, 12)
		if err != nil {
			return fmt.Errorf("probe: %w", err)
		}
		f = animage.Probe(head)
	}
	fmt.Println(f)
	if !opts.Enabled(f) {
		return fmt.Errorf("probe: %w", animage.ErrUnsupported)
	}
	return nil
}

// readHead returns up to n leading bytes of the named file or stdin.
func readHead(path string, n int) ([]byte, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	buf := make([]byte, n)
	m, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:m], nil
}
