package controller

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/sharetube/roomsync/pkg/ctxlogger"
	"github.com/sharetube/roomsync/pkg/rest"
)

// authMw resolves the viewer from a bearer token. Browsers cannot set headers
// on an EventSource, so the token query parameter is accepted too.
func (c Controller) authMw(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			rest.WriteJSON(w, http.StatusUnauthorized, rest.Envelope{"error": "missing token"})
			return
		}

		email, err := c.roomService.ParseToken(token)
		if err != nil {
			c.logger.InfoContext(r.Context(), "rejected token", "error", err)
			rest.WriteJSON(w, http.StatusUnauthorized, rest.Envelope{"error": "invalid token"})
			return
		}

		ctx := context.WithValue(r.Context(), emailCtxKey, email)
		ctx = ctxlogger.AppendCtx(ctx, slog.String("email", email))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
