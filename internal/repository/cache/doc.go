// Package cache is a badger-backed key/value store for CDN documents.
// Entries may carry a TTL after which badger stops returning them.
package cache
