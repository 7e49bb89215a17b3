// Package version reports the build version of a command.
package version

import (
	"errors"
	"fmt"
	"io"
	"runtime/debug"
)

// Print writes the main module version and VCS revision to w.
func Print(w io.Writer) error {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return errors.New("no build info")
	}
	var revision, modified string
	for _, bs := range bi.Settings {
		switch bs.Key {
		case "vcs.revision":
			revision = bs.Value
		case "vcs.modified":
			modified = bs.Value
		}
	}
	switch {
	case revision == "":
		_, err := fmt.Fprintln(w, bi.Main.Version)
		return err
	case modified == "true":
		_, err := fmt.Fprintln(w, bi.Main.Version, revision, "(modified)")
		return err
	default:
		_, err := fmt.Fprintln(w, bi.Main.Version, revision)
		return err
	}
}
