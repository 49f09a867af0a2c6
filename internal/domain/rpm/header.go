package rpm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	nameTag    = "Name:"
	versionTag = "Version:"
	releaseTag = "Release:"
)

// ErrIncompleteHeader is returned when a spec lacks one of Name, Version or Release.
var ErrIncompleteHeader = errors.New("spec header is incomplete")

// ReadNVR scans spec text line by line and returns the first Name, Version and
// Release values found. Later occurrences, e.g. in subpackages, are ignored.
func ReadNVR(r io.Reader) (NVR, error) {
	var (
		nvr                 NVR
		hasName, hasVersion bool
		hasRelease          bool
		scanner             = bufio.NewScanner(r)
	)

	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case !hasName && strings.HasPrefix(line, nameTag):
			nvr.Name = strings.TrimSpace(line[len(nameTag):])
			hasName = true
		case !hasVersion && strings.HasPrefix(line, versionTag):
			nvr.Version = strings.TrimSpace(line[len(versionTag):])
			hasVersion = true
		case !hasRelease && strings.HasPrefix(line, releaseTag):
			nvr.Release = strings.TrimSpace(line[len(releaseTag):])
			hasRelease = true
		}
	}

	if err := scanner.Err(); err != nil {
		return NVR{}, fmt.Errorf("scan spec: %w", err)
	}

	var missing []string

	if !hasName {
		missing = append(missing, "Name")
	}

	if !hasVersion {
		missing = append(missing, "Version")
	}

	if !hasRelease {
		missing = append(missing, "Release")
	}

	if len(missing) > 0 {
		return nvr, fmt.Errorf("%w: missing %s", ErrIncompleteHeader, strings.Join(missing, ", "))
	}

	return nvr, nil
}
