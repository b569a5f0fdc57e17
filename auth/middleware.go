package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"github.com/warp/lesson-ledger/ledger"
)

type contextKey struct{}

// WithTeacher stores the authenticated teacher in ctx.
func WithTeacher(ctx context.Context, teacher ledger.TeacherID) context.Context {
	return context.WithValue(ctx, contextKey{}, teacher)
}

// TeacherFromContext returns the teacher set by Middleware.
func TeacherFromContext(ctx context.Context) (ledger.TeacherID, bool) {
	t, ok := ctx.Value(contextKey{}).(ledger.TeacherID)
	return t, ok && t != ""
}

// Middleware requires "Authorization: Bearer <token>". Failures respond
// through onError (normally the API's JSON error writer) with a 401.
func Middleware(tokens *Tokens, onError func(w http.ResponseWriter, r *http.Request, err error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(raw) == "" {
				onError(w, r, ledger.ErrUnauthorized)
				return
			}

			teacher, err := tokens.Parse(strings.TrimSpace(raw))
			if err != nil {
				onError(w, r, err)
				return
			}

			ctx := WithTeacher(r.Context(), teacher)
			zerolog.Ctx(ctx).UpdateContext(func(c zerolog.Context) zerolog.Context {
				return c.Str("teacher_id", string(teacher))
			})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
