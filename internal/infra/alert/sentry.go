package alert

import (
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
)

// Sentry отправляет ошибки в Sentry. Без DSN ошибки только пишутся в лог.
type Sentry struct {
	enabled bool
	log     zerolog.Logger
}

// NewSentry инициализирует клиент Sentry, если задан dsn.
func NewSentry(dsn, environment string, logger zerolog.Logger) (*Sentry, error) {
	s := &Sentry{log: logger.With().Str("component", "alert").Logger()}
	if dsn == "" {
		return s, nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         dsn,
		Environment: environment,
	}); err != nil {
		return nil, err
	}
	s.enabled = true
	return s, nil
}

// Report реализует domain.ErrorReporter.
func (s *Sentry) Report(err error, tags map[string]string) {
	if err == nil {
		return
	}
	event := s.log.Warn().Err(err)
	for k, v := range tags {
		event = event.Str(k, v)
	}
	event.Msg("alert: ошибка передана в мониторинг")
	if !s.enabled {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTags(tags)
		sentry.CaptureException(err)
	})
}

// Flush дожидается отправки накопленных событий.
func (s *Sentry) Flush() {
	if s.enabled {
		sentry.Flush(2 * time.Second)
	}
}
