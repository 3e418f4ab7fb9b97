package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/biaslens/llm"
)

// MapHTTPError 将 HTTP 状态码映射为 llm.Error
func MapHTTPError(status int, msg string, provider string, header http.Header) *llm.Error {
	e := &llm.Error{
		Message:    msg,
		StatusCode: status,
		Provider:   provider,
	}
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		e.Kind = llm.KindAuthentication
	case status == http.StatusTooManyRequests:
		e.Kind = llm.KindRateLimit
		e.RetryAfter = parseRetryAfter(header.Get("Retry-After"), time.Now())
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		e.Kind = llm.KindTimeout
	case status == http.StatusNotFound:
		// 模型或端点不存在，属于配置问题
		e.Kind = llm.KindConfiguration
	case status == 529, status >= 500:
		e.Kind = llm.KindNetwork
	default:
		e.Kind = llm.KindUnknown
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// mapTransportError classifies errors returned by http.Client.Do.
func mapTransportError(ctx context.Context, err error, provider string) *llm.Error {
	kind := llm.KindNetwork
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), ctx.Err() != nil:
		kind = llm.KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		kind = llm.KindTimeout
	}
	return &llm.Error{Kind: kind, Provider: provider, Message: "request failed", Cause: err}
}

// ReadErrorMessage 读取响应体中的错误消息，无法解析 JSON 时回退到原始文本
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && len(errResp.Error) > 0 {
		var nested struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		}
		if json.Unmarshal(errResp.Error, &nested) == nil && nested.Message != "" {
			if nested.Type != "" {
				return fmt.Sprintf("%s (type: %s)", nested.Message, nested.Type)
			}
			return nested.Message
		}
		var plain string
		if json.Unmarshal(errResp.Error, &plain) == nil && plain != "" {
			return plain
		}
	}

	return strings.TrimSpace(string(data))
}
