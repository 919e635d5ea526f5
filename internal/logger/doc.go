// Package logger wraps zap with a global console logger on stderr, level
// parsing, and context helpers (ToContext, FromContext, WithName, WithKV).
//
// Pipeline stages accept a context and extract the logger from it, so a
// run's variant and run id follow every message it writes.
package logger
