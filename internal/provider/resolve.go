package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/John-Robertt/mediarename/internal/domain"
)

// ErrUnavailable 表示所有 provider 都没能给出地址。
// 所有 *Error 都满足 errors.Is(err, ErrUnavailable)。
var ErrUnavailable = errors.New("reverse geocoding unavailable")

// Attempt 记录一次 provider 尝试（用于解释 fallback/降级原因）。
type Attempt struct {
	Provider string // provider name（小写）
	Stage    string // "fetch" / "parse" / "ok"
	Err      error  // nil when Stage=="ok"
}

func (a Attempt) String() string {
	if a.Err == nil {
		return a.Provider + ":" + a.Stage
	}
	return fmt.Sprintf("%s:%s: %v", a.Provider, a.Stage, a.Err)
}

// Lookup 按“requested -> 其余 provider”顺序反查坐标对应的地址。
//
// 返回值：
// - addr：解析出的地址字段
// - used：最终成功的 provider name
// - body：原始响应（写入缓存便于调试）
// - attempts：每个 provider 的尝试结果，失败时同样返回
func Lookup(ctx context.Context, reg Registry, requested string, c domain.Coords, client *http.Client) (addr domain.Address, used string, body []byte, attempts []Attempt, err error) {
	order, err := reg.FallbackOrder(requested)
	if err != nil {
		return nil, "", nil, nil, err
	}

	var lastErr error
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return nil, "", nil, attempts, &Error{Provider: name, Stage: "fetch", Err: err}
		}
		p, _ := reg.Get(name)

		b, _, ferr := p.Fetch(ctx, c, client)
		if ferr != nil {
			lastErr = &Error{Provider: name, Stage: "fetch", Err: ferr}
			attempts = append(attempts, Attempt{Provider: name, Stage: "fetch", Err: ferr})
			continue
		}

		a, perr := p.Parse(b)
		if perr != nil {
			lastErr = &Error{Provider: name, Stage: "parse", Err: perr}
			attempts = append(attempts, Attempt{Provider: name, Stage: "parse", Err: perr})
			continue
		}

		attempts = append(attempts, Attempt{Provider: name, Stage: "ok"})
		return a, name, b, attempts, nil
	}
	if lastErr == nil {
		lastErr = &Error{Stage: "fetch", Err: errors.New("无可用 provider")}
	}
	return nil, "", nil, attempts, lastErr
}

// Error 是 provider 阶段的可追溯错误。
type Error struct {
	Provider string // provider name（小写）
	Stage    string // "fetch" 或 "parse"
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider=%s stage=%s: %v", e.Provider, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrUnavailable }
