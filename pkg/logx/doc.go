// Package logx wraps zerolog behind a small, slog-like field API.
//
// Components receive a Logger value (cheap to copy, safe zero value) and
// derive scoped loggers with With(). The Service owns the sinks (console,
// file) and can swap levels/outputs at runtime on config reload without
// invalidating loggers already handed out.
package logx
