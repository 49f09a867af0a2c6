package pkgcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/conda-rpms/internal/domain/conda"
	"github.com/oshokin/conda-rpms/internal/repository/pkgcache/pkgcachetest"
)

// TestFileRepository_QueryURL finds records by URL with and without checksum fragments.
func TestFileRepository_QueryURL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	six := &pkgcachetest.Package{Name: "six", Version: "1.16.0", Build: "pyh6c4a22f_0"}
	want := pkgcachetest.Write(t, dir, six)
	pkgcachetest.Write(t, dir, &pkgcachetest.Package{Name: "zlib", Version: "1.2.11", Build: "h36c2ea0_1013"})

	repo := NewFileRepository(filepath.Join(t.TempDir(), "missing"), dir)
	ctx := context.Background()

	got, err := repo.QueryURL(ctx, six.URL())
	require.NoError(t, err)
	require.Equal(t, []*conda.Package{want}, got)

	got, err = repo.QueryURL(ctx, six.URL()+"#"+want.MD5)
	require.NoError(t, err)
	require.Len(t, got, 1)

	// A different checksum means a different artifact.
	got, err = repo.QueryURL(ctx, six.URL()+"#00000000000000000000000000000000")
	require.NoError(t, err)
	require.Empty(t, got)

	got, err = repo.QueryURL(ctx, pkgcachetest.DefaultChannel+"/numpy-1.21.0-py39_0.tar.bz2")
	require.NoError(t, err)
	require.Empty(t, got)
}

// TestFileRepository_LegacyRecord resolves caches that only list URLs in urls.txt.
func TestFileRepository_LegacyRecord(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pkg := &pkgcachetest.Package{
		Name:         "libgomp",
		Version:      "9.3.0",
		Build:        "h2828fa1_19",
		Format:       conda.FormatConda,
		LegacyRecord: true,
	}
	want := pkgcachetest.Write(t, dir, pkg)

	// Directories without package metadata are ignored.
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "cache"), 0o755))

	got, err := NewFileRepository(dir).QueryURL(context.Background(), pkg.URL())
	require.NoError(t, err)
	require.Equal(t, []*conda.Package{want}, got)
	require.False(t, got[0].IsTarBz2())
}

// TestFileRepository_QuerySpec matches exact name and version across cache dirs.
func TestFileRepository_QuerySpec(t *testing.T) {
	t.Parallel()

	first, second := t.TempDir(), t.TempDir()
	want := pkgcachetest.Write(t, first, &pkgcachetest.Package{Name: "python", Version: "3.9.7", Build: "hb7a2778_3"})
	pkgcachetest.Write(t, second, &pkgcachetest.Package{Name: "python", Version: "3.9.7", Build: "h12debd9_1"})
	pkgcachetest.Write(t, second, &pkgcachetest.Package{Name: "python", Version: "3.9.70", Build: "h0_0"})

	repo := NewFileRepository(first, second)
	ctx := context.Background()

	got, err := repo.QuerySpec(ctx, "python", "3.9.7")
	require.NoError(t, err)
	require.Len(t, got, 2)

	pkg, err := ResolveSpec(ctx, repo, "python", "3.9.7")
	require.NoError(t, err)
	require.Equal(t, want, pkg)

	_, err = ResolveSpec(ctx, repo, "python", "2.7.18")
	require.ErrorIs(t, err, ErrNotCached)
	require.Contains(t, err.Error(), "python==2.7.18")
}

// TestResolveURL names the missing reference.
func TestResolveURL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	pkg := &pkgcachetest.Package{Name: "mpi", Version: "1.0", Build: "mpich"}
	want := pkgcachetest.Write(t, dir, pkg)

	repo := NewFileRepository(dir)
	ctx := context.Background()

	got, err := ResolveURL(ctx, repo, pkg.URL())
	require.NoError(t, err)
	require.Equal(t, want, got)

	missing := pkgcachetest.DefaultChannel + "/mpich-3.4.2-h846660c_100.tar.bz2"
	_, err = ResolveURL(ctx, repo, missing)
	require.ErrorIs(t, err, ErrNotCached)
	require.Contains(t, err.Error(), missing)
}

// TestVerifyChecksum accepts intact archives and rejects corrupted ones.
func TestVerifyChecksum(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	ctx := context.Background()

	pkg := pkgcachetest.Write(t, dir, &pkgcachetest.Package{Name: "six", Version: "1.16.0", Build: "pyh6c4a22f_0"})
	require.NoError(t, VerifyChecksum(ctx, pkg))

	require.NoError(t, os.WriteFile(pkg.TarballPath, []byte("corrupted"), 0o600))
	require.ErrorIs(t, VerifyChecksum(ctx, pkg), ErrChecksumMismatch)

	gone := pkgcachetest.Write(t, dir, &pkgcachetest.Package{
		Name: "zlib", Version: "1.2.11", Build: "h36c2ea0_1013", SkipArchive: true,
	})
	require.NoError(t, VerifyChecksum(ctx, gone))

	unknown := *pkg
	unknown.MD5 = ""
	require.NoError(t, VerifyChecksum(ctx, &unknown))
}
