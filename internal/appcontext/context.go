package appcontext

import (
	"context"
)

type EXECUTION_CONTEXT string

var (
	RequestIdKey EXECUTION_CONTEXT = "requestId"
)

func WithRequestId(ctx context.Context, requestId string) context.Context {
	return context.WithValue(ctx, RequestIdKey, requestId)
}

func RequestIdFromContext(ctx context.Context) (string, bool) {
	requestId, ok := ctx.Value(RequestIdKey).(string)
	if !ok || requestId == "" {
		return "", false
	}
	return requestId, true
}
