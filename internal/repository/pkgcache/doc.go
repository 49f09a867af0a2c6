// Package pkgcache looks up locked packages in local conda package caches.
//
// A cache directory holds downloaded archives next to their extracted
// directories. Every extracted directory carries info/repodata_record.json,
// or at least info/index.json with the source URL listed in urls.txt.
package pkgcache
