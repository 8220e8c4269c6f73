package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. Services receive it via options and must
// tolerate a nil logger, so only main needs to call this.
func New() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, nil))
}
