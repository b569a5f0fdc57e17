// Package logging builds the service logger and its HTTP middleware.
package logging

import (
	"io"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// New returns a JSON logger, or a console logger when pretty is set.
func New(level string, pretty, noColor bool) zerolog.Logger {
	return NewWithWriter(os.Stdout, level, pretty, noColor)
}

func NewWithWriter(out io.Writer, level string, pretty, noColor bool) zerolog.Logger {
	if pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: noColor}
	}
	log := zerolog.New(out).With().Timestamp().Logger()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return log.Level(lvl)
}

// RequestLogger attaches a request-scoped logger to the context and logs
// one line per request after it completes.
func RequestLogger(log zerolog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			reqLog := log.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()
			ctx := reqLog.WithContext(r.Context())

			defer func() {
				status := ww.Status()
				if status == 0 {
					status = http.StatusOK
				}
				ev := zerolog.Ctx(ctx).Info()
				if status >= http.StatusInternalServerError {
					ev = zerolog.Ctx(ctx).Error()
				}
				ev.Str("method", r.Method).
					Str("path", r.URL.Path).
					Str("query", r.URL.RawQuery).
					Str("ip", r.RemoteAddr).
					Int("status", status).
					Int("bytes", ww.BytesWritten()).
					Dur("duration", time.Since(start)).
					Msg("HTTP request")
			}()

			next.ServeHTTP(ww, r.WithContext(ctx))
		})
	}
}
