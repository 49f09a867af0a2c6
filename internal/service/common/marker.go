//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/conda-rpms/internal/logger"
)

const (
	// MarkerFilename marks a directory as being driven by a running process.
	MarkerFilename = ".conda-rpms.pid"

	// markerFileMode lets other users see who holds the directory.
	markerFileMode os.FileMode = 0o644

	// markerAttempts bounds stale marker recovery.
	markerAttempts = 2
)

var (
	// ErrRunInProgress is returned when a live process holds the marker.
	ErrRunInProgress = errors.New("another run is in progress")
	// errMalformedMarker is returned for markers without a PID on the first line.
	errMalformedMarker = errors.New("malformed run marker")
)

// AcquireMarker writes a marker holding this process PID into dir.
// A marker left by a process that no longer runs is removed first.
// The returned function removes the marker and must be called when the run ends.
func AcquireMarker(ctx context.Context, dir string) (func(), error) {
	path := filepath.Join(dir, MarkerFilename)

	actor := "unknown"
	if a, err := DetectActor(); err == nil {
		actor = a.String()
	}

	contents := fmt.Sprintf("%d\n%s\n", os.Getpid(), actor)

	for range markerAttempts {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, markerFileMode)
		if err == nil {
			_, err = f.WriteString(contents)
			if closeErr := f.Close(); err == nil {
				err = closeErr
			}

			if err != nil {
				_ = os.Remove(path)
				return nil, fmt.Errorf("write run marker: %w", err)
			}

			logger.DebugKV(ctx, "Run marker acquired", "path", path)

			return func() { releaseMarker(ctx, path, contents) }, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create run marker: %w", err)
		}

		pid, owner, err := readMarker(path)
		if err != nil && !errors.Is(err, errMalformedMarker) {
			return nil, err
		}

		if err == nil && isProcessRunning(pid) {
			return nil, fmt.Errorf("%w in %s: pid %d (%s)", ErrRunInProgress, dir, pid, owner)
		}

		logger.InfoKV(ctx, "Removing stale run marker", "path", path, "pid", pid, "owner", owner)

		if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale run marker: %w", err)
		}
	}

	return nil, fmt.Errorf("%w in %s", ErrRunInProgress, dir)
}

// releaseMarker removes the marker unless another process replaced it.
func releaseMarker(ctx context.Context, path, contents string) {
	current, err := os.ReadFile(filepath.Clean(path))
	if err != nil || string(current) != contents {
		return
	}

	if err = os.Remove(path); err != nil {
		logger.WarnKV(ctx, "Unable to remove run marker", "path", path, "error", err)
	}
}

func readMarker(path string) (int, string, error) {
	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return 0, "", fmt.Errorf("read run marker: %w", err)
	}

	first, rest, _ := strings.Cut(string(contents), "\n")

	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || pid <= 0 {
		return 0, "", fmt.Errorf("%s: %w", path, errMalformedMarker)
	}

	return pid, strings.TrimSpace(rest), nil
}

// isProcessRunning reports whether the process table contains pid.
// When the table cannot be read the process is assumed alive.
func isProcessRunning(pid int) bool {
	process, err := ps.FindProcess(pid)
	if err != nil {
		return true
	}

	return process != nil
}
