package pkgcache

import (
	"context"
	"crypto/md5" //nolint:gosec // conda records archive checksums as md5.
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/oshokin/conda-rpms/internal/domain/conda"
	"github.com/oshokin/conda-rpms/internal/logger"
)

var (
	// ErrNotCached is returned when no cache record matches a reference.
	ErrNotCached = errors.New("no package cache record")
	// ErrChecksumMismatch is returned when a cached archive does not match its recorded md5.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// ResolveURL returns the cached package downloaded from a lockfile URL.
// When several records match, the first one is used.
func ResolveURL(ctx context.Context, repo Repository, url string) (*conda.Package, error) {
	matches, err := repo.QueryURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", url, err)
	}

	return pickFirst(ctx, url, matches)
}

// ResolveSpec returns the cached package with exactly the given name and version.
// When several records match, the first one is used.
func ResolveSpec(ctx context.Context, repo Repository, name, version string) (*conda.Package, error) {
	spec := name + "==" + version

	matches, err := repo.QuerySpec(ctx, name, version)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", spec, err)
	}

	return pickFirst(ctx, spec, matches)
}

func pickFirst(ctx context.Context, reference string, matches []*conda.Package) (*conda.Package, error) {
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w for %s", ErrNotCached, reference)
	case 1:
		return matches[0], nil
	default:
		logger.WarnKV(ctx, "Multiple cache records found, using the first",
			"reference", reference, "records", len(matches), "using", matches[0].ExtractedDir)

		return matches[0], nil
	}
}

// VerifyChecksum compares the cached archive of pkg with its recorded md5.
// Packages without a recorded md5 or without the archive on disk pass.
func VerifyChecksum(ctx context.Context, pkg *conda.Package) error {
	if pkg.MD5 == "" {
		return nil
	}

	f, err := os.Open(filepath.Clean(pkg.TarballPath))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.DebugKV(ctx, "Cached archive is gone, checksum not verified", "package", pkg.ID())
			return nil
		}

		return fmt.Errorf("open %s: %w", pkg.TarballPath, err)
	}

	defer func() {
		_ = f.Close()
	}()

	hasher := md5.New() //nolint:gosec // conda records archive checksums as md5.
	if _, err = io.Copy(hasher, f); err != nil {
		return fmt.Errorf("calculate checksum of %s: %w", pkg.TarballPath, err)
	}

	if actual := hex.EncodeToString(hasher.Sum(nil)); !strings.EqualFold(actual, pkg.MD5) {
		return fmt.Errorf("%w: %s has md5 %s, expected %s", ErrChecksumMismatch, pkg.TarballPath, actual, pkg.MD5)
	}

	return nil
}
