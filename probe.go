package animage

import (
	"bytes"
	"net/url"
	"path"
	"slices"
	"strings"
)

// Format identifies an animated image container.
type Format int

const (
	FormatUnknown Format = iota
	FormatGIF
	FormatWebP
)

func (f Format) String() string {
	switch f {
	case FormatGIF:
		return "GIF"
	case FormatWebP:
		return "WebP"
	default:
		return "unknown"
	}
}

// ParseFormat returns the format named s, ignoring case.
func ParseFormat(s string) (Format, bool) {
	for _, f := range supported {
		if strings.EqualFold(s, f.String()) {
			return f, true
		}
	}
	return FormatUnknown, false
}

// supported lists the formats in probe order.
var supported = []Format{FormatGIF, FormatWebP}

// SupportedFormats returns the formats this package can decode.
func SupportedFormats() []Format {
	return slices.Clone(supported)
}

// Probe identifies the format of data from its signature.
func Probe(data []byte) Format {
	switch {
	case bytes.HasPrefix(data, []byte("GIF87a")), bytes.HasPrefix(data, []byte("GIF89a")):
		return FormatGIF
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return FormatWebP
	}
	return FormatUnknown
}

// ProbeURL guesses the format of the image at u. A data URL is identified
// by its media type and any other URL by the extension of its path.
func ProbeURL(u *url.URL) Format {
	if u.Scheme == "data" {
		body := u.Opaque
		if body == "" {
			body = u.Path
		}
		mime, _, ok := strings.Cut(body, ",")
		if !ok {
			return FormatUnknown
		}
		mime, _, _ = strings.Cut(mime, ";")
		switch strings.ToLower(strings.TrimSpace(mime)) {
		case "image/gif":
			return FormatGIF
		case "image/webp":
			return FormatWebP
		}
		return FormatUnknown
	}
	switch strings.ToLower(path.Ext(u.Path)) {
	case ".gif", ".gifv":
		return FormatGIF
	case ".webp":
		return FormatWebP
	}
	return FormatUnknown
}
