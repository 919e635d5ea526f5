// Package cdn talks to the vendor setup CDN: it fetches the deploy history,
// per-version package manifests and package archives, and maps HTTP
// failures onto the release error taxonomy.
//
// A 403 response means the build fell out of the CDN retention window and is
// reported as release.ErrUnavailable; every other failed fetch is
// release.ErrNetwork. Small text documents can be served from an optional
// read-through cache.
package cdn
