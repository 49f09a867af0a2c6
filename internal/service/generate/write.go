package generate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/conda-rpms/internal/logger"
)

const (
	specFileMode   os.FileMode = 0o644
	sourceFileMode os.FileMode = 0o644
	scriptFileMode os.FileMode = 0o755
)

// ErrSpecDiffers is returned when an existing spec differs and overwriting is not allowed.
var ErrSpecDiffers = errors.New("spec differs from the existing file")

// WriteSpec writes content to path unless an identical file is already there.
// A differing file is replaced only when overwrite is set.
func WriteSpec(ctx context.Context, content, path string, overwrite bool) error {
	existing, err := os.ReadFile(filepath.Clean(path))

	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return fmt.Errorf("read existing spec: %w", err)
	case string(existing) == content:
		logger.InfoKV(ctx, "Spec already exists and is identical", "spec", path)
		return nil
	case overwrite:
		logger.WarnKV(ctx, "Spec will be overwritten", "spec", path)
	default:
		logger.WarnKV(ctx, "Spec exists and is different", "spec", path)
		return fmt.Errorf("%w: %s", ErrSpecDiffers, path)
	}

	logger.InfoKV(ctx, "Writing spec", "spec", path)

	if err = os.WriteFile(path, []byte(content), specFileMode); err != nil {
		return fmt.Errorf("write spec: %w", err)
	}

	return nil
}

// copySource copies src to dst through a temporary file in the destination directory.
func copySource(ctx context.Context, src, dst string) (err error) {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}

	defer func() {
		_ = in.Close()
	}()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".source-*")
	if err != nil {
		return fmt.Errorf("create temporary source: %w", err)
	}

	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	size, err := io.Copy(tmp, in)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return fmt.Errorf("copy %s: %w", src, err)
	}

	if err = os.Chmod(tmp.Name(), sourceFileMode); err != nil {
		return fmt.Errorf("chmod source: %w", err)
	}

	if err = os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("rename source: %w", err)
	}

	logger.InfoKV(ctx, "Source copied", "from", src, "to", dst, "size", humanize.Bytes(uint64(size))) //nolint:gosec // Size is never negative.

	return nil
}

// writeInstallScript stages the embedded installer script.
func writeInstallScript(ctx context.Context, sourcesDir string) error {
	path := filepath.Join(sourcesDir, InstallScriptName)

	if err := os.WriteFile(path, installScript, scriptFileMode); err != nil {
		return fmt.Errorf("write install script: %w", err)
	}

	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(path, scriptFileMode); err != nil {
		return fmt.Errorf("chmod install script: %w", err)
	}

	logger.DebugKV(ctx, "Install script staged", "path", path, "size", humanize.Bytes(uint64(len(installScript))))

	return nil
}
