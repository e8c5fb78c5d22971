package testutil

import (
	"log/slog"
)

// DiscardLogger returns a slog.Logger that discards all output.
// log.Logger is a type alias for *slog.Logger, so this is
// interchangeable with log.NewNop(); prefer that one when already
// importing internal/log.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
