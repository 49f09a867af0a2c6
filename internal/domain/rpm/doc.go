// Package rpm holds the naming contract between spec rendering, building and signing.
//
// Spec files, RPM names and expected artifact file names are all derived
// here, so the generator and the build driver cannot drift apart.
package rpm
