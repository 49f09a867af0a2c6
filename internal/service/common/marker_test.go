//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestAcquireMarker_Lifecycle creates, blocks on and releases a marker.
func TestAcquireMarker_Lifecycle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	release, err := AcquireMarker(ctx, dir)
	require.NoError(t, err)

	path := filepath.Join(dir, MarkerFilename)
	pid, _, err := readMarker(path)
	require.NoError(t, err)
	require.Equal(t, os.Getpid(), pid)

	// This process is alive, so a second run must be refused.
	_, err = AcquireMarker(ctx, dir)
	require.ErrorIs(t, err, ErrRunInProgress)

	release()

	_, err = os.Stat(path)
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestAcquireMarker_LiveOwner refuses a marker held by another running process.
func TestAcquireMarker_LiveOwner(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, MarkerFilename)
	require.NoError(t, os.WriteFile(path, fmt.Appendf(nil, "%d\nbuilder@host\n", os.Getppid()), 0o600))

	_, err := AcquireMarker(context.Background(), dir)
	require.ErrorIs(t, err, ErrRunInProgress)
	require.Contains(t, err.Error(), "builder@host")
}

// TestAcquireMarker_Stale replaces markers of dead processes and malformed markers.
func TestAcquireMarker_Stale(t *testing.T) {
	t.Parallel()

	for _, contents := range []string{"2147483646\nghost@host\n", "not a pid\n"} {
		dir := t.TempDir()
		path := filepath.Join(dir, MarkerFilename)
		require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

		release, err := AcquireMarker(context.Background(), dir)
		require.NoError(t, err, contents)

		pid, _, err := readMarker(path)
		require.NoError(t, err)
		require.Equal(t, os.Getpid(), pid)

		release()
	}
}

// TestReleaseMarker_KeepsForeignMarker does not delete a marker another process wrote.
func TestReleaseMarker_KeepsForeignMarker(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	release, err := AcquireMarker(context.Background(), dir)
	require.NoError(t, err)

	path := filepath.Join(dir, MarkerFilename)
	require.NoError(t, os.WriteFile(path, []byte("1\nother@host\n"), 0o600))

	release()

	_, err = os.Stat(path)
	require.NoError(t, err)
}
