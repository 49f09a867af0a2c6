// Package conda contains the domain types for locked conda packages.
//
// Package is a resolved package cache record, Environment describes the
// meta-package that groups them, and Reference is a lockfile URL split into
// its channel, subdir and name-version-build parts.
package conda
