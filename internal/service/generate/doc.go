// Package generate renders RPM specs for every package of an explicit conda
// lockfile, plus an installer and an environment meta-package, and stages
// their sources into an rpmbuild topdir.
//
// Package RPMs install extracted packages into <prefix>/pkgs/<id>. The
// environment RPM requires all of them and links them into
// <prefix>/envs/<name> at install time with the bundled install.sh.
//
// Specs are compared with existing files before writing so that repeated runs
// leave unchanged specs untouched.
package generate
