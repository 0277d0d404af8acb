package cliconfig

import (
	"io"

	"github.com/rs/zerolog"

	logadapter "github.com/bft-labs/virusscan/internal/adapters/log"
)

// Logger returns a console logger on w (stderr when nil) at the configured
// level. Unknown levels fall back to info.
func Logger(w io.Writer, level string) zerolog.Logger {
	lvl, err := logadapter.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return logadapter.NewConsoleLogger(w, lvl)
}
