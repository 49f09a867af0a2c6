package conda

import (
	"path/filepath"
	"strings"
)

const (
	// FormatTarBz2 is the legacy single-file archive suffix understood by the RPM tooling.
	FormatTarBz2 = ".tar.bz2"
	// FormatConda is the newer zip-based package suffix.
	FormatConda = ".conda"
)

// Package is the subset of a conda package cache record required to render an RPM.
// It is resolved once from the package cache and never modified afterwards.
type Package struct {
	// Name is the conda package name.
	Name string `json:"name"`
	// Version is the conda package version.
	Version string `json:"version"`
	// Build is the build string, e.g. "py39h06a4308_0".
	Build string `json:"build"`
	// URL is the source URL the package was downloaded from.
	URL string `json:"url"`
	// MD5 is the archive checksum recorded by conda, if known.
	MD5 string `json:"md5,omitempty"`
	// Filename is the archive file name, e.g. "six-1.16.0-pyh6c4a22f_0.tar.bz2".
	Filename string `json:"fn"`
	// TarballPath is the full path of the archive inside the package cache.
	TarballPath string `json:"-"`
	// ExtractedDir is the full path of the extracted package inside the package cache.
	ExtractedDir string `json:"-"`
}

// ID returns the "name-version-build" identity of the package.
func (p *Package) ID() string {
	return p.Name + "-" + p.Version + "-" + p.Build
}

// IsTarBz2 reports whether the cached archive already is a .tar.bz2 file.
func (p *Package) IsTarBz2() bool {
	return strings.HasSuffix(p.TarballPath, FormatTarBz2)
}

// CacheDir returns the package cache directory holding the extracted package.
func (p *Package) CacheDir() string {
	return filepath.Dir(p.ExtractedDir)
}

// TarBz2Filename returns the archive file name with a .tar.bz2 suffix.
func (p *Package) TarBz2Filename() string {
	if strings.HasSuffix(p.Filename, FormatConda) {
		return strings.TrimSuffix(p.Filename, FormatConda) + FormatTarBz2
	}

	return p.Filename
}

// Environment describes the meta-package depending on every package of a lockfile.
type Environment struct {
	// Name is the environment name, e.g. "default".
	Name string
	// Version is the environment version.
	Version string
	// Summary is an optional one-line description.
	Summary string
}

// ID returns the "name-version" identity of the environment.
func (e *Environment) ID() string {
	return e.Name + "-" + e.Version
}
