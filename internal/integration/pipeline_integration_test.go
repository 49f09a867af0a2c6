package integration

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/conda-rpms/internal/domain/conda"
	"github.com/oshokin/conda-rpms/internal/domain/rpm"
	"github.com/oshokin/conda-rpms/internal/repository/pkgcache/pkgcachetest"
	"github.com/oshokin/conda-rpms/internal/service/builder"
	"github.com/oshokin/conda-rpms/internal/service/generate"
	"github.com/oshokin/conda-rpms/internal/service/signer"
)

// fakeRPMBuild writes an "RPM" holding the Requires of the spec under <topdir>/RPMS/<arch>.
const fakeRPMBuild = `#!/bin/sh
set -eu
topdir=
spec=
while [ $# -gt 0 ]; do
    case "$1" in
        --define) topdir=${2#_topdir }; shift 2 ;;
        -bb|--force) shift ;;
        *) spec=$1; shift ;;
    esac
done
name=$(sed -n 's/^Name:[[:space:]]*//p' "$spec" | head -n 1)
version=$(sed -n 's/^Version:[[:space:]]*//p' "$spec" | head -n 1)
release=$(sed -n 's/^Release:[[:space:]]*//p' "$spec" | head -n 1)
mkdir -p "$topdir/RPMS/x86_64"
grep -E '^Requires(\(post\))?:' "$spec" | awk '{print $2}' >"$topdir/RPMS/x86_64/$name-$version-$release.x86_64.rpm" || true
echo "$(basename "$spec")" >>"%s"
`

// fakeRPMQuery prints the requirements stored in the fake RPM: rpm -qpR <file>.
const fakeRPMQuery = `#!/bin/sh
cat "$2"
`

// fakeRPMSign records its arguments.
const fakeRPMSign = `#!/bin/sh
echo "$@" >>"%s"
`

type pipeline struct {
	configPath string
	lockfile   string
	topdir     string
	buildLog   string
	signLog    string
}

// newPipeline writes a conda package cache, a lockfile, fake packaging tools and a config file using them.
func newPipeline(t *testing.T) *pipeline {
	t.Helper()

	if runtime.GOOS == "windows" {
		t.Skip("fake packaging tools are shell scripts")
	}

	dir := t.TempDir()
	cacheDir := filepath.Join(dir, "pkgs")
	toolsDir := filepath.Join(dir, "tools")
	require.NoError(t, os.MkdirAll(cacheDir, 0o755))
	require.NoError(t, os.MkdirAll(toolsDir, 0o755))

	p := &pipeline{
		configPath: filepath.Join(dir, "conda-rpms.yaml"),
		lockfile:   filepath.Join(dir, "env.txt"),
		topdir:     filepath.Join(dir, "rpmbuild"),
		buildLog:   filepath.Join(dir, "build.log"),
		signLog:    filepath.Join(dir, "sign.log"),
	}

	lines := []string{"# platform: linux-64", "@EXPLICIT"}

	for _, fake := range []*pkgcachetest.Package{
		{Name: "python", Version: "3.9.7", Build: "h12debd9_1", License: "Python-2.0"},
		{Name: "zlib", Version: "1.2.11", Build: "h7f8727e_4", License: "Zlib"},
		{
			Name:    "six",
			Version: "1.16.0",
			Build:   "pyh6c4a22f_0",
			Format:  conda.FormatConda,
			Files:   map[string]string{"site-packages/six.py": "import sys\n"},
		},
	} {
		pkg := pkgcachetest.Write(t, cacheDir, fake)
		lines = append(lines, pkg.URL+"#"+pkg.MD5)
	}

	require.NoError(t, os.WriteFile(p.lockfile, []byte(strings.Join(lines, "\n")+"\n"), 0o600))

	tools := map[string]string{
		"rpmbuild": fmt.Sprintf(fakeRPMBuild, p.buildLog),
		"rpm":      fakeRPMQuery,
		"rpmsign":  fmt.Sprintf(fakeRPMSign, p.signLog),
	}

	for name, script := range tools {
		require.NoError(t, os.WriteFile(filepath.Join(toolsDir, name), []byte(script), 0o700)) //nolint:gosec // Test tools must be executable.
	}

	config := fmt.Sprintf(`namespace: CondaDist
install_prefix: /opt/conda-dist
verify_checksums: true
pkgs_dirs:
  - %s
tools:
  build: %s
  query: %s
  sign: %s
  sign_args: "--key-id 'Test Key'"
`, cacheDir,
		filepath.Join(toolsDir, "rpmbuild"),
		filepath.Join(toolsDir, "rpm"),
		filepath.Join(toolsDir, "rpmsign"),
	)
	require.NoError(t, os.WriteFile(p.configPath, []byte(config), 0o600))

	return p
}

func readLines(t *testing.T, path string) []string {
	t.Helper()

	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}

	require.NoError(t, err)

	return strings.Split(strings.TrimSpace(string(contents)), "\n")
}

// TestPipeline_GenerateBuildSign runs the three drivers against fake packaging tools.
func TestPipeline_GenerateBuildSign(t *testing.T) {
	p := newPipeline(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := generate.Run(ctx, &generate.Options{
		ConfigPath:   p.configPath,
		LockfilePath: p.lockfile,
		Name:         "base",
		OutputDir:    p.topdir,
		NoOverwrite:  true,
	})
	require.NoError(t, err)

	specs, err := filepath.Glob(filepath.Join(p.topdir, rpm.SpecsDir, "*"+rpm.SpecExtension))
	require.NoError(t, err)
	require.Len(t, specs, 5)

	rpmDir := filepath.Join(p.topdir, "RPMS")
	buildOptions := &builder.Options{ConfigPath: p.configPath, BuildRoot: p.topdir, RPMDir: rpmDir}

	require.NoError(t, builder.Run(ctx, buildOptions))
	require.Equal(t, []string{
		"CondaDist-env-base-1.0.spec",
		"CondaDist-installer.spec",
		"CondaDist-pkg-python-3.9.7-h12debd9_1.spec",
		"CondaDist-pkg-six-1.16.0-pyh6c4a22f_0.spec",
		"CondaDist-pkg-zlib-1.2.11-h7f8727e_4.spec",
	}, readLines(t, p.buildLog))

	// Everything is built now, so a second pass runs nothing.
	require.NoError(t, builder.Run(ctx, buildOptions))
	require.Len(t, readLines(t, p.buildLog), 5)

	artifactDir := filepath.Join(rpmDir, rpm.DefaultArch)
	envRPM := filepath.Join(artifactDir, "CondaDist-env-base-1.0-0.x86_64.rpm")

	err = signer.Run(ctx, &signer.Options{
		ConfigPath:          p.configPath,
		ArtifactPath:        envRPM,
		IncludeDependencies: true,
		ExtraArgs:           []string{"--digest-algo", "sha256"},
	})
	require.NoError(t, err)

	signed := make([]string, 0, 5)
	for _, line := range readLines(t, p.signLog) {
		require.True(t, strings.HasPrefix(line, "--addsign --key-id Test Key --digest-algo sha256 "), line)
		signed = append(signed, filepath.Base(strings.TrimPrefix(line, "--addsign --key-id Test Key --digest-algo sha256 ")))
	}

	require.Equal(t, []string{
		"CondaDist-env-base-1.0-0.x86_64.rpm",
		"CondaDist-installer-3.9.7-0.x86_64.rpm",
		"CondaDist-pkg-python-3.9.7-h12debd9_1-1-0.x86_64.rpm",
		"CondaDist-pkg-zlib-1.2.11-h7f8727e_4-1-0.x86_64.rpm",
		"CondaDist-pkg-six-1.16.0-pyh6c4a22f_0-1-0.x86_64.rpm",
	}, signed)
}

// TestPipeline_GenerateIsIdempotent leaves unchanged specs untouched on a second run.
func TestPipeline_GenerateIsIdempotent(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	options := &generate.Options{
		ConfigPath:   p.configPath,
		LockfilePath: p.lockfile,
		Name:         "base",
		OutputDir:    p.topdir,
		NoOverwrite:  true,
	}

	require.NoError(t, generate.Run(ctx, options))

	spec := filepath.Join(p.topdir, rpm.SpecsDir, "CondaDist-pkg-zlib-1.2.11-h7f8727e_4.spec")
	before, err := os.Stat(spec)
	require.NoError(t, err)

	require.NoError(t, generate.Run(ctx, options))

	after, err := os.Stat(spec)
	require.NoError(t, err)
	require.Equal(t, before.ModTime(), after.ModTime())

	// A different prefix renders different specs, which strict mode refuses.
	options.InstallPrefix = "/srv/conda"
	require.ErrorIs(t, generate.Run(ctx, options), generate.ErrSpecDiffers)
}
