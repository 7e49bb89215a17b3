package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/deepteams/animage"
)

// config is the optional TOML configuration file. Command line flags take
// precedence over it.
type config struct {
	Formats       []string `toml:"formats"`
	MaxInputSize  int      `toml:"max_input_size"`
	MaxCanvasArea int      `toml:"max_canvas_area"`
	Log           string   `toml:"log"`
}

func loadConfig(path string) (config, error) {
	var c config
	if path == "" {
		return c, nil
	}
	md, err := toml.DecodeFile(path, &c)
	if err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	if undec := md.Undecoded(); len(undec) != 0 {
		keys := make([]string, len(undec))
		for i, k := range undec {
			keys[i] = k.String()
		}
		return c, fmt.Errorf("config: unknown keys: %s", strings.Join(keys, ", "))
	}
	return c, nil
}

func (c config) options(log *slog.Logger) (*animage.Options, error) {
	opts := &animage.Options{
		MaxInputSize:  c.MaxInputSize,
		MaxCanvasArea: c.MaxCanvasArea,
		Logger:        log,
	}
	for _, name := range c.Formats {
		f, ok := animage.ParseFormat(name)
		if !ok {
			return nil, fmt.Errorf("config: unknown format %q", name)
		}
		opts.Formats = append(opts.Formats, f)
	}
	return opts, nil
}
