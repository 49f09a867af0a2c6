package rpm

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// SpecsDir is the rpmbuild topdir subdirectory holding spec files.
	SpecsDir = "SPECS"
	// SourcesDir is the rpmbuild topdir subdirectory holding source archives.
	SourcesDir = "SOURCES"
	// SpecExtension is the suffix of every spec file.
	SpecExtension = ".spec"
	// DefaultArch is the architecture rpmbuild places packages under.
	DefaultArch = "x86_64"
	// DefaultFormat is the package file extension produced by rpmbuild.
	DefaultFormat = "rpm"
	// DefaultNamespace prefixes every produced package name.
	DefaultNamespace = "CondaDist"

	pkgKind       = "pkg"
	envKind       = "env"
	installerKind = "installer"
)

// NVR is the name, version and release triple of a package build.
type NVR struct {
	Name    string
	Version string
	Release string
}

// String returns "name-version-release".
func (n NVR) String() string {
	return n.Name + "-" + n.Version + "-" + n.Release
}

// Filename returns the artifact file name rpmbuild produces for the triple,
// "<name>-<version>-<release>.<arch>.<format>".
func (n NVR) Filename(arch, format string) string {
	return fmt.Sprintf("%s.%s.%s", n.String(), arch, format)
}

// ArtifactPath returns where rpmbuild places the artifact under outputDir.
func (n NVR) ArtifactPath(outputDir, arch, format string) string {
	return filepath.Join(outputDir, arch, n.Filename(arch, format))
}

// PackageName returns the RPM name of a conda package with the given identity.
func PackageName(namespace, id string) string {
	return namespace + "-" + pkgKind + "-" + id
}

// EnvironmentName returns the RPM name of an environment meta-package.
func EnvironmentName(namespace, name string) string {
	return namespace + "-" + envKind + "-" + name
}

// InstallerName returns the RPM name of the installer meta-package.
func InstallerName(namespace string) string {
	return namespace + "-" + installerKind
}

// PackageSpecFilename returns "<namespace>-pkg-<id>.spec".
func PackageSpecFilename(namespace, id string) string {
	return PackageName(namespace, id) + SpecExtension
}

// EnvironmentSpecFilename returns "<namespace>-env-<id>.spec".
func EnvironmentSpecFilename(namespace, id string) string {
	return EnvironmentName(namespace, id) + SpecExtension
}

// InstallerSpecFilename returns "<namespace>-installer.spec".
func InstallerSpecFilename(namespace string) string {
	return InstallerName(namespace) + SpecExtension
}

// NamespaceOf returns the namespace prefix of an artifact path,
// i.e. its file name up to the first dash.
func NamespaceOf(artifact string) string {
	namespace, _, _ := strings.Cut(filepath.Base(artifact), "-")

	return namespace
}
