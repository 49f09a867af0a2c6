package builder

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/conda-rpms/internal/command/commandtest"
	"github.com/oshokin/conda-rpms/internal/config"
	"github.com/oshokin/conda-rpms/internal/domain/rpm"
	"github.com/oshokin/conda-rpms/internal/service/common"
)

func newTestBuilder(t *testing.T) (*builder, *commandtest.Recorder) {
	t.Helper()

	cfg := &config.Config{PkgsDirs: []string{t.TempDir()}}
	require.NoError(t, config.Validate(cfg))

	recorder := new(commandtest.Recorder)

	return &builder{cfg: cfg, runner: recorder}, recorder
}

func writeSpec(t *testing.T, root, filename, header string) string {
	t.Helper()

	dir := filepath.Join(root, rpm.SpecsDir)
	require.NoError(t, os.MkdirAll(dir, 0o755))

	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(header+"\n%description\nTest.\n"), 0o600))

	return path
}

// TestBuildMissing_SkipsExistingArtifacts builds only the specs without an RPM.
func TestBuildMissing_SkipsExistingArtifacts(t *testing.T) {
	t.Parallel()

	b, recorder := newTestBuilder(t)
	root := t.TempDir()
	rpmDir := t.TempDir()

	built := writeSpec(t, root, "CondaDist-pkg-six-1.16.0-py_0.spec",
		"Name: CondaDist-pkg-six-1.16.0-py_0\nVersion: 1\nRelease: 0")
	skipped := writeSpec(t, root, "CondaDist-env-base.spec",
		"Name:    CondaDist-env-base\nVersion: 1.0\nRelease: 0")

	existing := rpm.NVR{Name: "CondaDist-env-base", Version: "1.0", Release: "0"}.
		ArtifactPath(rpmDir, rpm.DefaultArch, rpm.DefaultFormat)
	require.NoError(t, os.MkdirAll(filepath.Dir(existing), 0o755))
	require.NoError(t, os.WriteFile(existing, []byte("rpm"), 0o600))

	result, err := b.buildMissing(context.Background(), root, rpmDir)
	require.NoError(t, err)
	require.Equal(t, []string{built}, result.Built)
	require.Equal(t, []string{skipped}, result.Skipped)

	calls := recorder.Named(config.DefaultBuildTool)
	require.Len(t, calls, 1)
	require.True(t, calls[0].Stream)
	require.Equal(t, []string{"-bb", "--define", "_topdir " + root, built, "--force"}, calls[0].Args)

	// The run marker is gone once the pass ends.
	_, err = os.Stat(filepath.Join(root, common.MarkerFilename))
	require.ErrorIs(t, err, os.ErrNotExist)
}

// TestBuildMissing_RelativeRoot passes an absolute topdir to the build tool.
func TestBuildMissing_RelativeRoot(t *testing.T) {
	b, recorder := newTestBuilder(t)
	root := t.TempDir()
	writeSpec(t, root, "CondaDist-installer.spec", "Name: CondaDist-installer\nVersion: 3.9.7\nRelease: 0")

	t.Chdir(filepath.Dir(root))

	_, err := b.buildMissing(context.Background(), filepath.Base(root), t.TempDir())
	require.NoError(t, err)

	calls := recorder.Named(config.DefaultBuildTool)
	require.Len(t, calls, 1)
	require.Equal(t, "_topdir "+root, calls[0].Args[2])
	require.True(t, filepath.IsAbs(calls[0].Args[3]))
}

// TestBuildMissing_Errors covers incomplete headers, failing builds and missing roots.
func TestBuildMissing_Errors(t *testing.T) {
	t.Parallel()

	t.Run("incomplete header", func(t *testing.T) {
		t.Parallel()

		b, recorder := newTestBuilder(t)
		root := t.TempDir()
		writeSpec(t, root, "broken.spec", "Name: broken\nVersion: 1")

		_, err := b.buildMissing(context.Background(), root, t.TempDir())
		require.ErrorIs(t, err, rpm.ErrIncompleteHeader)
		require.Contains(t, err.Error(), "broken.spec")
		require.Empty(t, recorder.Calls)
	})

	t.Run("build tool fails", func(t *testing.T) {
		t.Parallel()

		b, recorder := newTestBuilder(t)
		failure := errors.New("exit status 1")
		recorder.Errors = map[string]error{config.DefaultBuildTool: failure}

		root := t.TempDir()
		writeSpec(t, root, "a.spec", "Name: a\nVersion: 1\nRelease: 0")
		writeSpec(t, root, "b.spec", "Name: b\nVersion: 1\nRelease: 0")

		_, err := b.buildMissing(context.Background(), root, t.TempDir())
		require.ErrorIs(t, err, failure)
		require.Contains(t, err.Error(), "a.spec")
		require.Len(t, recorder.Calls, 1)
	})

	t.Run("no specs directory", func(t *testing.T) {
		t.Parallel()

		b, _ := newTestBuilder(t)

		_, err := b.buildMissing(context.Background(), t.TempDir(), t.TempDir())
		require.ErrorIs(t, err, errNoSpecsDir)
	})

	t.Run("run in progress", func(t *testing.T) {
		t.Parallel()

		b, recorder := newTestBuilder(t)
		root := t.TempDir()
		writeSpec(t, root, "a.spec", "Name: a\nVersion: 1\nRelease: 0")

		release, err := common.AcquireMarker(context.Background(), root)
		require.NoError(t, err)
		t.Cleanup(release)

		_, err = b.buildMissing(context.Background(), root, t.TempDir())
		require.ErrorIs(t, err, common.ErrRunInProgress)
		require.Empty(t, recorder.Calls)
	})
}
