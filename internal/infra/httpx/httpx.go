package httpx

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultUserAgent = "mediarename/1.0 (+https://github.com/John-Robertt/mediarename)"
	defaultRetryMax  = 2
)

// Transport 把“固定 User-Agent + 代理 + 有界重试”固化为统一策略。
//
// 地理编码服务（尤其是 Nominatim）要求可识别的 UA，因此这里不做 UA 轮换。
type Transport struct {
	Base *http.Transport

	UserAgent string

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax int

	// Backoff 是两次尝试之间的等待；零值表示立即重试。
	Backoff time.Duration

	// DisableKeepAlives 决定是否对 Request 设置 Close=true。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var (
		lastResp *http.Response
		lastErr  error
	)
	for attempt := 0; attempt <= max; attempt++ {
		if attempt > 0 && !t.wait(req) {
			break
		}
		if lastResp != nil {
			drain(lastResp)
			lastResp = nil
		}

		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" && t.UserAgent != "" {
			r.Header.Set("User-Agent", t.UserAgent)
		}
		if t.DisableKeepAlives {
			r.Close = true
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil && !retryableStatus(resp.StatusCode) {
			return resp, nil
		}
		lastResp, lastErr = resp, err
		if req.Context().Err() != nil {
			break
		}
	}
	if lastResp != nil {
		// 重试用尽：把最后一次 5xx 原样交给上层，由上层生成可读的错误。
		return lastResp, nil
	}
	return nil, lastErr
}

func (t *Transport) wait(req *http.Request) bool {
	if t.Backoff <= 0 {
		return req.Context().Err() == nil
	}
	timer := time.NewTimer(t.Backoff)
	defer timer.Stop()
	select {
	case <-req.Context().Done():
		return false
	case <-timer.C:
		return true
	}
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}

// Options 描述地理编码 client 的网络策略。
type Options struct {
	ProxyURL  string
	UserAgent string
	Timeout   time.Duration
}

// NewClient 构造用于反向地理编码的 HTTP client。
//
// 规则：
// - ProxyURL 非空：走代理，且禁用 keep-alive（每请求新连接）
// - UserAgent 为空时使用 DefaultUserAgent
// - 有界重试 + 总超时（Timeout 为空时 DefaultTimeout）
func NewClient(opt Options) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}

	disableKeepAlives := false
	if proxyURL := strings.TrimSpace(opt.ProxyURL); proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("proxy.url 必须包含 scheme 与 host")
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	ua := strings.TrimSpace(opt.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}
	timeout := opt.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	tr := &Transport{
		Base:              base,
		UserAgent:         ua,
		RetryMax:          defaultRetryMax,
		Backoff:           500 * time.Millisecond,
		DisableKeepAlives: disableKeepAlives,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}
