// Package installs records which version of each variant was installed last.
//
// The FileRepository stores one record per variant as protobuf JSON
// (a structpb.Struct) on disk; the installer writes it after a successful
// run and the versions command reads it back.
package installs
