// Package archive materializes cached conda packages as .tar.bz2 archives,
// the only package format the RPM specs know how to unpack.
package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/dsnet/compress/bzip2"

	"github.com/oshokin/conda-rpms/internal/domain/conda"
	"github.com/oshokin/conda-rpms/internal/logger"
)

// errNotDirectory is returned when the extracted package path is not a directory.
var errNotDirectory = errors.New("not a directory")

// Materialize returns the path of a .tar.bz2 archive for pkg.
// Packages cached as .tar.bz2 are returned unchanged; .conda packages are
// re-archived from their extracted directory next to the cache entry.
func Materialize(ctx context.Context, pkg *conda.Package) (string, error) {
	if pkg.IsTarBz2() {
		return pkg.TarballPath, nil
	}

	out := filepath.Join(pkg.CacheDir(), pkg.TarBz2Filename())

	if _, err := os.Stat(out); err == nil {
		logger.DebugKV(ctx, "Reusing converted archive", "package", pkg.ID(), "archive", out)
		return out, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("stat %s: %w", out, err)
	}

	if err := CreateTarBz2(pkg.ExtractedDir, out); err != nil {
		return "", fmt.Errorf("convert %s: %w", pkg.Filename, err)
	}

	logger.InfoKV(ctx, "Created tar.bz2", "from", pkg.Filename, "archive", out)

	return out, nil
}

// CreateTarBz2 archives the contents of srcDir into a bzip2-compressed tar at out.
// Entries are sorted and carry no owner information. The archive is written
// to a temporary file and renamed into place.
func CreateTarBz2(srcDir, out string) (err error) {
	info, err := os.Stat(srcDir)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("%s: %w", srcDir, errNotDirectory)
	}

	tmp, err := os.CreateTemp(filepath.Dir(out), "."+filepath.Base(out)+".*")
	if err != nil {
		return fmt.Errorf("create temporary archive: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	if err = writeTarBz2(tmp, srcDir); err != nil {
		return err
	}

	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temporary archive: %w", err)
	}

	// CreateTemp uses 0600.
	if err = os.Chmod(tmp.Name(), 0o644); err != nil { //nolint:gosec // Archives are not secret.
		return fmt.Errorf("chmod archive: %w", err)
	}

	if err = os.Rename(tmp.Name(), out); err != nil {
		return fmt.Errorf("rename archive: %w", err)
	}

	return nil
}

func writeTarBz2(w io.Writer, srcDir string) error {
	bw, err := bzip2.NewWriter(w, &bzip2.WriterConfig{Level: bzip2.BestCompression})
	if err != nil {
		return fmt.Errorf("create bzip2 writer: %w", err)
	}

	tw := tar.NewWriter(bw)

	// WalkDir visits entries in lexical order.
	err = filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}

		if path == srcDir {
			return nil
		}

		return addEntry(tw, srcDir, path, d)
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", srcDir, err)
	}

	if err = tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}

	if err = bw.Close(); err != nil {
		return fmt.Errorf("close bzip2: %w", err)
	}

	return nil
}

func addEntry(tw *tar.Writer, srcDir, path string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		return err
	}

	rel, err := filepath.Rel(srcDir, path)
	if err != nil {
		return err
	}

	var link string

	if info.Mode()&fs.ModeSymlink != 0 {
		if link, err = os.Readlink(path); err != nil {
			return err
		}
	}

	header, err := tar.FileInfoHeader(info, link)
	if err != nil {
		return err
	}

	header.Name = filepath.ToSlash(rel)
	if info.IsDir() {
		header.Name += "/"
	}

	header.Uid, header.Gid = 0, 0
	header.Uname, header.Gname = "", ""
	header.ModTime = header.ModTime.Truncate(time.Second)
	header.AccessTime, header.ChangeTime = time.Time{}, time.Time{}
	header.Format = tar.FormatPAX

	if err = tw.WriteHeader(header); err != nil {
		return err
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return err
	}

	defer func() {
		_ = f.Close()
	}()

	_, err = io.Copy(tw, f)

	return err
}
