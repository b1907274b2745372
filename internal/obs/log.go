package obs

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// NewLogger builds the engine's default structured logger: zerolog writing
// to stderr. Builder/Searcher accept a zerolog.Logger via functional
// option and default to zerolog.Nop() when the caller supplies none, so
// logging stays opt-in the way the embedding/metrics surfaces do.
func NewLogger(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	return zerolog.New(w).With().Timestamp().Logger()
}

// Component returns a child logger tagged with the owning component, the
// field every engine log line carries per SPEC_FULL.md §3.1.
func Component(log zerolog.Logger, component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
