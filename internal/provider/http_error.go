package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxBody 限制单次响应读取的大小；反向地理编码的结果通常只有几 KB。
const maxBody = 1 << 20

// HTTPStatusError 表示服务返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// BlockedError 表示请求被服务按使用政策拒绝（限流或 User-Agent 被封）。
// 不尝试绕过：直接视为 fetch 失败，让上层走 provider 降级。
type BlockedError struct {
	URL        string
	Reason     string // "rate-limited" / "forbidden"
	RetryAfter string
}

func (e *BlockedError) Error() string {
	if e == nil {
		return "blocked"
	}
	msg := "blocked"
	if r := strings.TrimSpace(e.Reason); r != "" {
		msg += ": " + r
	}
	if ra := strings.TrimSpace(e.RetryAfter); ra != "" {
		msg += " retry-after=" + ra
	}
	return msg
}

// Get 发起一次 GET 并读取响应体；非 2xx 返回 *HTTPStatusError 或 *BlockedError。
func Get(ctx context.Context, client *http.Client, u string, accept string) ([]byte, error) {
	if client == nil {
		return nil, errors.New("http client 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return nil, &BlockedError{URL: u, Reason: "rate-limited", RetryAfter: resp.Header.Get("Retry-After")}
	case http.StatusForbidden:
		return nil, &BlockedError{URL: u, Reason: "forbidden"}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, errors.New("empty response body")
	}
	return b, nil
}
