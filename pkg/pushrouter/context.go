package pushrouter

import "context"

type ctxKey string

const (
	eventNameKey ctxKey = "event_name"
)

func GetEventNameFromCtx(ctx context.Context) string {
	name, _ := ctx.Value(eventNameKey).(string)
	return name
}
