// Package lockfile reads explicit conda lockfiles.
package lockfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ExplicitMarker must appear on its own line in every explicit lockfile.
const ExplicitMarker = "@EXPLICIT"

// ErrMissingExplicit is returned for lockfiles without the ExplicitMarker line.
var ErrMissingExplicit = errors.New("lockfile does not include " + ExplicitMarker + " tag")

// Read returns the package references listed in an explicit lockfile, in order.
// Blank lines, comments and the marker itself are skipped.
func Read(r io.Reader) ([]string, error) {
	var (
		seenExplicit bool
		references   []string
		scanner      = bufio.NewScanner(r)
	)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "#"):
			continue
		case line == ExplicitMarker:
			seenExplicit = true
		default:
			references = append(references, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan lockfile: %w", err)
	}

	if !seenExplicit {
		return nil, ErrMissingExplicit
	}

	return references, nil
}

// ReadFile opens path and reads it with Read.
func ReadFile(path string) ([]string, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("open lockfile: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	references, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return references, nil
}
