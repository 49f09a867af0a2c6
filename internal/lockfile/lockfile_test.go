package lockfile

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/conda-rpms/internal/domain/conda"
)

const condaForgeLock = `# platform: linux-64
# env_hash: 2785ad92fa19c56df4d0b4315d6fea121ca9b6092185d5ea016d9571ef85efca
@EXPLICIT
https://conda.anaconda.org/conda-forge/linux-64/ca-certificates-2021.5.30-ha878542_0.tar.bz2#6a777890e94194dc94a29a76d2a7e721
https://conda.anaconda.org/conda-forge/noarch/font-ttf-dejavu-sans-mono-2.37-hab24e00_0.tar.bz2#0c96522c6bdaed4b1566d11387caaf45
https://conda.anaconda.org/conda-forge/noarch/font-ttf-inconsolata-3.000-h77eed37_0.tar.bz2#34893075a5c9e55cdafac56607368fc6
https://conda.anaconda.org/conda-forge/noarch/font-ttf-source-code-pro-2.038-h77eed37_0.tar.bz2#4d59c254e01d9cde7957100457e2d5fb
https://conda.anaconda.org/conda-forge/noarch/font-ttf-ubuntu-0.83-hab24e00_0.tar.bz2#19410c3df09dfb12d1206132a1d357c5
https://conda.anaconda.org/conda-forge/linux-64/ld_impl_linux-64-2.35.1-hea4e1c9_2.tar.bz2#83610dba766a186bdc7a116053b782a4
https://conda.anaconda.org/conda-forge/linux-64/libgfortran5-9.3.0-hff62375_19.tar.bz2#c2d8da3cb171e4aa642d20c6e4e42a04
https://conda.anaconda.org/conda-forge/linux-64/libstdcxx-ng-9.3.0-h6de172a_19.tar.bz2#cd9a24a8dde03ec0cf0e603b0bea85a1
https://conda.anaconda.org/conda-forge/linux-64/mpi-1.0-mpich.tar.bz2#c1fcff3417b5a22bbc4cf6e8c23648cf
https://conda.anaconda.org/conda-forge/linux-64/mysql-common-8.0.23-ha770c72_2.tar.bz2#ce876d0c998e1e2eb1dc67b01937737f
https://conda.anaconda.org/conda-forge/noarch/fonts-conda-forge-1-0.tar.bz2#f766549260d6815b0c52253f1fb1bb29
https://conda.anaconda.org/conda-forge/linux-64/libgfortran-ng-9.3.0-hff62375_19.tar.bz2#aea379bd68fdcdf9499fa1453f852ac1
https://conda.anaconda.org/conda-forge/linux-64/libgomp-9.3.0-h2828fa1_19.tar.bz2#ab0a307912033126da02507b59e79ec9`

// TestRead_CondaForgeLock reads a real conda-lock export.
func TestRead_CondaForgeLock(t *testing.T) {
	t.Parallel()

	refs, err := Read(strings.NewReader(condaForgeLock))
	require.NoError(t, err)
	require.Len(t, refs, 13)

	first, err := conda.ParseReference(refs[0])
	require.NoError(t, err)
	require.Equal(t, "ca-certificates", first.Name)

	last, err := conda.ParseReference(refs[12])
	require.NoError(t, err)
	require.Equal(t, "libgomp", last.Name)
}

// TestRead_FiltersLines keeps only references, in order, wherever the marker sits.
func TestRead_FiltersLines(t *testing.T) {
	t.Parallel()

	input := "\n  # comment\nfirst\n\n   \n@EXPLICIT\n  second  \n#third\nthird\n"

	refs, err := Read(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []string{"first", "second", "third"}, refs)
}

// TestRead_MissingMarker always fails without the marker.
func TestRead_MissingMarker(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		"# only a comment\n",
		"https://conda.anaconda.org/conda-forge/noarch/six-1.16.0-pyh6c4a22f_0.tar.bz2\n",
		"@explicit\nhttps://example.com/a-1-0.tar.bz2\n",
		"# @EXPLICIT\n",
	}

	for _, input := range inputs {
		refs, err := Read(strings.NewReader(input))
		require.ErrorIs(t, err, ErrMissingExplicit, input)
		require.Nil(t, refs)
	}
}

// TestReadFile reads from disk and reports missing files.
func TestReadFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "env.lock")
	require.NoError(t, os.WriteFile(path, []byte(condaForgeLock), 0o600))

	refs, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, refs, 13)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.lock"))
	require.ErrorIs(t, err, os.ErrNotExist)
}
