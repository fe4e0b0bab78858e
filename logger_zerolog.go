package auth

import (
	"fmt"

	"github.com/rs/zerolog"
)

// ZerologLogger adapts a zerolog.Logger to the package Logger
type ZerologLogger struct {
	log zerolog.Logger
}

var _ Logger = ZerologLogger{}

func NewZerologLogger(log zerolog.Logger) ZerologLogger {
	return ZerologLogger{log: log.With().Str("component", "auth").Logger()}
}

func (z ZerologLogger) Debug(format string, args ...any) {
	z.log.Debug().Msg(fmt.Sprintf(format, args...))
}

func (z ZerologLogger) Info(format string, args ...any) {
	z.log.Info().Msg(fmt.Sprintf(format, args...))
}

func (z ZerologLogger) Warn(format string, args ...any) {
	z.log.Warn().Msg(fmt.Sprintf(format, args...))
}

func (z ZerologLogger) Error(format string, args ...any) {
	z.log.Error().Msg(fmt.Sprintf(format, args...))
}
