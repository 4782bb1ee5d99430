package discord

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// newTrace arma el logger de una interacción con un trace id propio.
func newTrace(kind, name, userID string) (zerolog.Logger, string) {
	id := uuid.NewString()
	return log.With().
		Str("trace_id", id).
		Str("kind", kind).
		Str("name", name).
		Str("user", userID).
		Logger(), id
}

func step(l zerolog.Logger, label string) func() {
	start := time.Now()
	return func() { l.Debug().Str("step", label).Dur("dur", time.Since(start)).Msg("trace") }
}
