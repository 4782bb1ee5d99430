package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup configura el logger global de zerolog. format "json" para prod, cualquier otro = consola.
func Setup(level, format string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	log.Logger = New(os.Stdout, format)
}

func New(out io.Writer, format string) zerolog.Logger {
	if strings.EqualFold(format, "json") {
		return zerolog.New(out).With().Timestamp().Logger()
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
