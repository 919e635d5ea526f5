// Package assembler rebuilds the vendor distribution archive of a version
// from its packages.
//
// The output starts with a synthesized AppSettings.xml entry, followed by
// every file entry of every package in manifest order, renamed under the
// variant's extraction-root prefix. Entries are copied without
// recompression. The archive is written to "<destination>.partial" and
// renamed into place only when complete.
package assembler
