// Package manifest fetches and validates per-version package manifests and
// classifies the distribution variant they belong to.
package manifest
