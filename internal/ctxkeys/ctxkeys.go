// Package ctxkeys 定义在 context 中传递请求级元数据的键。
package ctxkeys

import "context"

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	clientKey    contextKey = "client"
)

// WithRequestID 设置请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID 获取请求 ID
func RequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithClient 设置调用方标识（HTTP 远端地址或 CLI）
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientKey, client)
}

// Client 获取调用方标识
func Client(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(clientKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
