// Package config defines the settings shared by the conda-rpms binaries and
// loads them from an optional YAML file, CONDA_RPMS_* environment variables
// and built-in defaults.
//
// Config carries the RPM namespace, the install prefix, the conda package
// cache locations and the names of the external build, query and signing tools.
package config
