package controller

import "context"

type contextKey int

const (
	emailCtxKey contextKey = iota
)

func (c Controller) getEmailFromCtx(ctx context.Context) string {
	email, ok := ctx.Value(emailCtxKey).(string)
	if !ok {
		return ""
	}

	return email
}
