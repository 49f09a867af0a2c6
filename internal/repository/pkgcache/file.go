package pkgcache

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/oshokin/conda-rpms/internal/domain/conda"
	"github.com/oshokin/conda-rpms/internal/logger"
)

const (
	infoDir            = "info"
	repodataRecordFile = "repodata_record.json"
	indexFile          = "index.json"
	urlsFile           = "urls.txt"
)

// Repository finds cached packages.
type Repository interface {
	// QueryURL returns the packages downloaded from the given lockfile URL.
	QueryURL(ctx context.Context, url string) ([]*conda.Package, error)
	// QuerySpec returns the packages with exactly the given name and version.
	QuerySpec(ctx context.Context, name, version string) ([]*conda.Package, error)
}

// FileRepository scans conda package cache directories on disk.
// The scan happens once, on the first query.
type FileRepository struct {
	// dirs are the cache directories, in lookup order.
	dirs []string
	// mu protects records and loaded.
	mu      sync.Mutex
	records []*conda.Package
	loaded  bool
}

// record mirrors the fields of repodata_record.json and index.json we use.
type record struct {
	Name     string `json:"name"`
	Version  string `json:"version"`
	Build    string `json:"build"`
	URL      string `json:"url"`
	MD5      string `json:"md5"`
	Filename string `json:"fn"`
}

// NewFileRepository creates a repository over the given cache directories.
func NewFileRepository(dirs ...string) *FileRepository {
	cleaned := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		cleaned = append(cleaned, filepath.Clean(dir))
	}

	return &FileRepository{
		dirs: cleaned,
	}
}

// QueryURL implements Repository. The URL checksum fragment, when present,
// must match the recorded md5.
func (r *FileRepository) QueryURL(ctx context.Context, url string) ([]*conda.Package, error) {
	records, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	location, checksum, _ := strings.Cut(strings.TrimSpace(url), "#")

	var matches []*conda.Package

	for _, pkg := range records {
		if stripFragment(pkg.URL) != location {
			continue
		}

		if checksum != "" && pkg.MD5 != "" && !strings.EqualFold(checksum, pkg.MD5) {
			logger.WarnKV(ctx, "Cached package checksum differs from lockfile, skipping",
				"package", pkg.ExtractedDir, "lockfile_md5", checksum, "cache_md5", pkg.MD5)

			continue
		}

		matches = append(matches, pkg)
	}

	return matches, nil
}

// QuerySpec implements Repository.
func (r *FileRepository) QuerySpec(ctx context.Context, name, version string) ([]*conda.Package, error) {
	records, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	var matches []*conda.Package

	for _, pkg := range records {
		if pkg.Name == name && pkg.Version == version {
			matches = append(matches, pkg)
		}
	}

	return matches, nil
}

func (r *FileRepository) load(ctx context.Context) ([]*conda.Package, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.loaded {
		return r.records, nil
	}

	var records []*conda.Package

	for _, dir := range r.dirs {
		found, err := scanDir(ctx, dir)
		if err != nil {
			return nil, err
		}

		records = append(records, found...)
	}

	logger.DebugKV(ctx, "Scanned conda package caches", "dirs", r.dirs, "packages", len(records))

	r.records = records
	r.loaded = true

	return records, nil
}

// scanDir reads every extracted package of one cache directory.
// A missing directory holds no packages.
func scanDir(ctx context.Context, dir string) ([]*conda.Package, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.DebugKV(ctx, "Package cache directory does not exist", "dir", dir)
			return nil, nil
		}

		return nil, fmt.Errorf("read package cache %s: %w", dir, err)
	}

	urls, err := readURLs(filepath.Join(dir, urlsFile))
	if err != nil {
		return nil, err
	}

	var packages []*conda.Package

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		extracted := filepath.Join(dir, entry.Name())

		rec, err := readRecord(extracted, entry.Name(), urls)
		if err != nil {
			return nil, err
		}

		if rec == nil {
			continue
		}

		packages = append(packages, &conda.Package{
			Name:         rec.Name,
			Version:      rec.Version,
			Build:        rec.Build,
			URL:          rec.URL,
			MD5:          rec.MD5,
			Filename:     rec.Filename,
			TarballPath:  filepath.Join(dir, rec.Filename),
			ExtractedDir: extracted,
		})
	}

	return packages, nil
}

// readRecord returns nil for directories that are not extracted packages.
func readRecord(extracted, dist string, urls map[string]string) (*record, error) {
	rec, err := readJSON(filepath.Join(extracted, infoDir, repodataRecordFile))
	if err != nil {
		return nil, err
	}

	if rec == nil {
		// Older caches only keep index.json; the URL comes from urls.txt.
		rec, err = readJSON(filepath.Join(extracted, infoDir, indexFile))
		if err != nil || rec == nil {
			return nil, err
		}

		rec.URL, rec.Filename = "", ""

		for _, suffix := range []string{conda.FormatConda, conda.FormatTarBz2} {
			if url, ok := urls[dist+suffix]; ok {
				rec.URL, rec.Filename = url, dist+suffix
				break
			}
		}
	}

	if rec.Filename == "" && rec.URL != "" {
		rec.Filename = path.Base(stripFragment(rec.URL))
	}

	if rec.Filename == "" {
		rec.Filename = dist + conda.FormatTarBz2
	}

	if rec.Name == "" || rec.Version == "" || rec.Build == "" {
		return nil, nil
	}

	return rec, nil
}

// readJSON returns nil when the file does not exist.
func readJSON(filename string) (*record, error) {
	contents, err := os.ReadFile(filepath.Clean(filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read %s: %w", filename, err)
	}

	var rec record
	if err = json.Unmarshal(contents, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", filename, err)
	}

	return &rec, nil
}

// readURLs maps archive file names to the URLs listed in urls.txt.
func readURLs(filename string) (map[string]string, error) {
	urls := make(map[string]string)

	f, err := os.Open(filepath.Clean(filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return urls, nil
		}

		return nil, fmt.Errorf("open %s: %w", filename, err)
	}

	defer func() {
		_ = f.Close()
	}()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		urls[path.Base(stripFragment(line))] = line
	}

	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan %s: %w", filename, err)
	}

	return urls, nil
}

func stripFragment(url string) string {
	location, _, _ := strings.Cut(url, "#")

	return location
}
