package generate

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/conda-rpms/internal/domain/conda"
	"github.com/oshokin/conda-rpms/internal/domain/rpm"
)

const (
	// InstallScriptName is the installer script staged into SOURCES.
	InstallScriptName = "install.sh"

	// packageVersion is the RPM version of every package RPM; the conda
	// version is already part of the name.
	packageVersion = "1"
	// defaultRelease is the RPM release of every generated spec.
	defaultRelease = "0"
	// unknownLicense is used when neither the recipe nor the index declares one.
	unknownLicense = "Unknown"
)

var (
	//go:embed templates/*.spec.tmpl
	templatesFS embed.FS

	//go:embed dist/install.sh
	installScript []byte

	templates = template.Must(template.ParseFS(templatesFS, "templates/*.spec.tmpl"))

	// errMissingPackageDir is returned when the extracted package is not in the cache.
	errMissingPackageDir = errors.New("package dir does not exist")
	// errIncompleteIndex is returned for an index.json without name, version or build.
	errIncompleteIndex = errors.New("package index is incomplete")
)

// packageIndex is the part of info/index.json used by the package template.
type packageIndex struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Build   string `json:"build"`
	License string `json:"license"`
}

// recipeMeta is the rendered recipe stored in info/recipe/meta.yaml.
type recipeMeta struct {
	About map[string]any `yaml:"about"`
}

type packageData struct {
	RPMName       string
	Version       string
	Release       string
	ID            string
	InstallPrefix string
	Summary       string
	Description   string
	License       string
	Home          string
	Source        string
}

type environmentData struct {
	RPMName       string
	Version       string
	Release       string
	EnvName       string
	Summary       string
	InstallPrefix string
	InstallerName string
	Packages      []string
	Requires      []string
}

type installerData struct {
	RPMName       string
	Version       string
	Release       string
	Namespace     string
	InstallPrefix string
	PythonID      string
	Source        string
	Script        string
}

// RenderPackageSpec renders the spec of one extracted conda package.
// info/index.json is required; info/recipe/meta.yaml supplies the license,
// summary, home page and description when present.
func RenderPackageSpec(pkgDir, namespace, installPrefix string) (string, error) {
	if _, err := os.Stat(pkgDir); err != nil {
		return "", fmt.Errorf("%w: %s", errMissingPackageDir, pkgDir)
	}

	index, err := readIndex(pkgDir)
	if err != nil {
		return "", err
	}

	about, err := readAbout(pkgDir)
	if err != nil {
		return "", err
	}

	// The index license is the fallback, as conda itself does.
	if _, ok := about["license"]; !ok && index.License != "" {
		about["license"] = index.License
	}

	if _, ok := about["summary"]; !ok {
		about["summary"] = "The " + index.Name + " package"
	}

	id := index.Name + "-" + index.Version + "-" + index.Build
	summary := firstLine(stringValue(about, "summary"))

	description := stringValue(about, "description")
	if description == "" {
		description = summary
	}

	license := firstLine(stringValue(about, "license"))
	if license == "" {
		license = unknownLicense
	}

	return render("pkg.spec.tmpl", &packageData{
		RPMName:       rpm.PackageName(namespace, id),
		Version:       packageVersion,
		Release:       defaultRelease,
		ID:            id,
		InstallPrefix: installPrefix,
		Summary:       escapeMacros(summary),
		Description:   escapeMacros(description),
		License:       escapeMacros(license),
		Home:          escapeMacros(firstLine(stringValue(about, "home"))),
		Source:        id + conda.FormatTarBz2,
	})
}

// RenderEnvironmentSpec renders the environment meta-package depending on every package RPM.
func RenderEnvironmentSpec(env *conda.Environment, packages []*conda.Package, installPrefix, namespace string) (string, error) {
	summary := firstLine(env.Summary)
	if summary == "" {
		summary = "The " + env.Name + " conda environment"
	}

	data := &environmentData{
		RPMName:       rpm.EnvironmentName(namespace, env.Name),
		Version:       env.Version,
		Release:       defaultRelease,
		EnvName:       env.Name,
		Summary:       escapeMacros(summary),
		InstallPrefix: installPrefix,
		InstallerName: rpm.InstallerName(namespace),
		Packages:      make([]string, 0, len(packages)),
		Requires:      make([]string, 0, len(packages)),
	}

	for _, pkg := range packages {
		data.Packages = append(data.Packages, pkg.ID())
		data.Requires = append(data.Requires, rpm.PackageName(namespace, pkg.ID()))
	}

	return render("env.spec.tmpl", data)
}

// RenderInstallerSpec renders the installer meta-package bundling python and the install script.
func RenderInstallerSpec(python *conda.Package, installPrefix, namespace string) (string, error) {
	return render("installer.spec.tmpl", &installerData{
		RPMName:       rpm.InstallerName(namespace),
		Version:       python.Version,
		Release:       defaultRelease,
		Namespace:     namespace,
		InstallPrefix: installPrefix,
		PythonID:      python.ID(),
		Source:        python.ID() + conda.FormatTarBz2,
		Script:        InstallScriptName,
	})
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}

	return buf.String(), nil
}

func readIndex(pkgDir string) (*packageIndex, error) {
	path := filepath.Join(pkgDir, "info", "index.json")

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read package index: %w", err)
	}

	var index packageIndex
	if err = json.Unmarshal(contents, &index); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if index.Name == "" || index.Version == "" || index.Build == "" {
		return nil, fmt.Errorf("%s: %w", path, errIncompleteIndex)
	}

	return &index, nil
}

// readAbout returns the "about" section of the recipe, empty when there is no recipe.
func readAbout(pkgDir string) (map[string]any, error) {
	path := filepath.Join(pkgDir, "info", "recipe", "meta.yaml")

	contents, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return map[string]any{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("read recipe: %w", err)
	}

	var meta recipeMeta
	if err = yaml.Unmarshal(contents, &meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	if meta.About == nil {
		meta.About = map[string]any{}
	}

	return meta.About, nil
}

// stringValue flattens scalar and list values, e.g. a license given as a list.
func stringValue(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, strings.TrimSpace(fmt.Sprint(item)))
		}

		return strings.Join(parts, " AND ")
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")

	return strings.TrimSpace(line)
}

// escapeMacros keeps free text from being expanded as rpm macros or read as sections.
func escapeMacros(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "%", "%%")
}
