// Package log defines the logging contract used across foundry.
//
// Overview:
//   - Responsibility: Decouple engine packages from a concrete logger
//   - Key Types: Logger interface with structured key-value logging
//   - Concurrency Model: Logger implementations must be safe for concurrent use
//   - Error Semantics: Error takes the error as its first parameter
//
// Usage:
//
//	logger.Info("materialized", log.Str("destination", dst), log.Int("files", n))
package log

import "time"

// Logger is a structured, leveled logger.
type Logger interface {
	// With returns a Logger that carries kv on every record.
	With(kv ...any) Logger

	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)

	// Error logs msg at error level with err attached under the "error" key.
	Error(err error, msg string, kv ...any)
}

// Str creates a string key-value pair.
func Str(k, v string) any {
	return []any{k, v}
}

// Int creates an integer key-value pair.
func Int(k string, v int) any {
	return []any{k, v}
}

// Dur creates a duration key-value pair.
func Dur(k string, v time.Duration) any {
	return []any{k, v}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return nop{}
}

type nop struct{}

func (n nop) With(...any) Logger { return n }

func (nop) Debug(string, ...any) {}

func (nop) Info(string, ...any) {}

func (nop) Warn(string, ...any) {}

func (nop) Error(error, string, ...any) {}
