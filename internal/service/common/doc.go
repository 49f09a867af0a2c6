// Package common holds helpers shared by several services.
//
// It loads settings for the drivers, detects the current system actor
// (hostname/username) and guards a working directory with a run marker, so
// two drivers never share an rpmbuild topdir at the same time.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
