// Package pkgcachetest writes fake conda package caches for tests.
package pkgcachetest

import (
	"crypto/md5" //nolint:gosec // conda records archive checksums as md5.
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/conda-rpms/internal/domain/conda"
)

// DefaultChannel is used when Package.Channel is empty.
const DefaultChannel = "https://conda.anaconda.org/conda-forge/linux-64"

// Package describes one fake cached package.
type Package struct {
	Name    string
	Version string
	Build   string
	// Channel is the URL prefix of the archive, DefaultChannel when empty.
	Channel string
	// Format is conda.FormatTarBz2 when empty.
	Format string
	// License is written to index.json when set.
	License string
	// MetaYAML is written to info/recipe/meta.yaml when set.
	MetaYAML string
	// Files are extra files of the extracted package, keyed by relative path.
	Files map[string]string
	// LegacyRecord skips repodata_record.json and lists the URL in urls.txt instead.
	LegacyRecord bool
	// SkipArchive leaves the archive out of the cache.
	SkipArchive bool
}

// Dist returns the "name-version-build" directory name.
func (p *Package) Dist() string {
	return p.Name + "-" + p.Version + "-" + p.Build
}

// Filename returns the archive file name.
func (p *Package) Filename() string {
	format := p.Format
	if format == "" {
		format = conda.FormatTarBz2
	}

	return p.Dist() + format
}

// URL returns the archive URL without checksum.
func (p *Package) URL() string {
	channel := p.Channel
	if channel == "" {
		channel = DefaultChannel
	}

	return channel + "/" + p.Filename()
}

// Write creates the package inside cache dir and returns the record a lookup should yield.
func Write(t *testing.T, dir string, p *Package) *conda.Package {
	t.Helper()

	var (
		extracted = filepath.Join(dir, p.Dist())
		archive   = []byte("archive of " + p.Dist())
		sum       = md5.Sum(archive) //nolint:gosec // conda records archive checksums as md5.
		checksum  = hex.EncodeToString(sum[:])
	)

	index := map[string]any{
		"name":    p.Name,
		"version": p.Version,
		"build":   p.Build,
		"subdir":  "linux-64",
		"depends": []string{},
	}
	if p.License != "" {
		index["license"] = p.License
	}

	writeJSON(t, filepath.Join(extracted, "info", "index.json"), index)

	if p.LegacyRecord {
		f, err := os.OpenFile(filepath.Join(dir, "urls.txt"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		require.NoError(t, err)

		_, err = f.WriteString(p.URL() + "\n")
		require.NoError(t, err)
		require.NoError(t, f.Close())

		checksum = ""
	} else {
		writeJSON(t, filepath.Join(extracted, "info", "repodata_record.json"), map[string]any{
			"name":    p.Name,
			"version": p.Version,
			"build":   p.Build,
			"url":     p.URL(),
			"md5":     checksum,
			"fn":      p.Filename(),
		})
	}

	if p.MetaYAML != "" {
		writeFile(t, filepath.Join(extracted, "info", "recipe", "meta.yaml"), p.MetaYAML)
	}

	for name, contents := range p.Files {
		writeFile(t, filepath.Join(extracted, filepath.FromSlash(name)), contents)
	}

	if !p.SkipArchive {
		require.NoError(t, os.WriteFile(filepath.Join(dir, p.Filename()), archive, 0o600))
	}

	return &conda.Package{
		Name:         p.Name,
		Version:      p.Version,
		Build:        p.Build,
		URL:          p.URL(),
		MD5:          checksum,
		Filename:     p.Filename(),
		TarballPath:  filepath.Join(dir, p.Filename()),
		ExtractedDir: extracted,
	}
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()

	contents, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)

	writeFile(t, path, string(contents))
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
}
