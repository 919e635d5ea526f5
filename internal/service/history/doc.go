// Package history resolves published builds from the vendor deploy history.
//
// The deploy history is an append-only text log with one line per
// deployment, for example:
//
//	New WindowsPlayer version-1a2b3c4d5e6f7a8b at 10/7/2025 5:04:12 PM, file version: 0, 694, 0, 6940982, git hash: ...
//
// ParseDeployHistory is the pure parsing core; Client adds the fetch.
package history
