// Package builder runs the RPM build tool for every generated spec whose package
// has not been built yet.
//
// The expected artifact of a spec is derived from its Name, Version and Release
// header lines, so re-running a build only rebuilds what is missing.
package builder
