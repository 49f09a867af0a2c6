package conda

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned for references that are neither .tar.bz2 nor .conda archives.
	ErrUnsupportedFormat = errors.New("unsupported package file format")
	// ErrInvalidFilename is returned when name, version and build cannot be split from a file name.
	ErrInvalidFilename = errors.New("cannot parse name, version and build")
)

// Reference is a lockfile entry split into its parts.
type Reference struct {
	// URL is the reference without its checksum fragment.
	URL string
	// Channel is the URL up to the subdir, e.g. "https://conda.anaconda.org/conda-forge".
	Channel string
	// Subdir is the platform directory, e.g. "linux-64" or "noarch".
	Subdir string
	// Filename is the archive file name.
	Filename string
	// Name is the package name.
	Name string
	// Version is the package version.
	Version string
	// Build is the build string.
	Build string
	// Format is the archive suffix, FormatTarBz2 or FormatConda.
	Format string
	// MD5 is the checksum fragment, empty when the lockfile carries none.
	MD5 string
}

// ID returns the "name-version-build" identity of the referenced package.
func (r *Reference) ID() string {
	return r.Name + "-" + r.Version + "-" + r.Build
}

// ParseReference splits an explicit lockfile URL such as
// https://conda.anaconda.org/conda-forge/linux-64/six-1.16.0-pyh6c4a22f_0.tar.bz2#<md5>.
func ParseReference(raw string) (*Reference, error) {
	location, checksum, _ := strings.Cut(strings.TrimSpace(raw), "#")

	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse %q: %w", raw, err)
	}

	filename := path.Base(u.Path)

	var format string

	switch {
	case strings.HasSuffix(filename, FormatTarBz2):
		format = FormatTarBz2
	case strings.HasSuffix(filename, FormatConda):
		format = FormatConda
	default:
		return nil, fmt.Errorf("%q: %w", raw, ErrUnsupportedFormat)
	}

	// Names may contain dashes, versions and builds may not.
	parts := strings.Split(strings.TrimSuffix(filename, format), "-")
	if len(parts) < 3 {
		return nil, fmt.Errorf("%q: %w", raw, ErrInvalidFilename)
	}

	var (
		build   = parts[len(parts)-1]
		version = parts[len(parts)-2]
		name    = strings.Join(parts[:len(parts)-2], "-")
	)

	if name == "" || version == "" || build == "" {
		return nil, fmt.Errorf("%q: %w", raw, ErrInvalidFilename)
	}

	dir := path.Dir(u.Path)
	channel := *u
	channel.Path = path.Dir(dir)
	channel.RawQuery = ""
	channel.Fragment = ""

	return &Reference{
		URL:      location,
		Channel:  strings.TrimSuffix(channel.String(), "/"),
		Subdir:   path.Base(dir),
		Filename: filename,
		Name:     name,
		Version:  version,
		Build:    build,
		Format:   format,
		MD5:      checksum,
	}, nil
}
