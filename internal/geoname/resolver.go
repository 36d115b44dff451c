package geoname

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/John-Robertt/mediarename/internal/domain"
	"github.com/John-Robertt/mediarename/internal/infra/cache"
	"github.com/John-Robertt/mediarename/internal/provider"
)

// DefaultDelay 是两次网络查询之间的最小间隔（Nominatim 公共实例要求每秒不超过一次）。
const DefaultDelay = time.Second

// Resolver 把坐标解析为 location_name。
//
// 查询顺序：本次运行的内存结果 -> 文件缓存 -> provider（按 requested -> fallback）。
// 网络查询之间至少间隔 Delay。Resolver 不是并发安全的，由批处理串行调用。
type Resolver struct {
	Registry  provider.Registry
	Requested string
	Client    *http.Client
	Cache     cache.Store
	Delay     time.Duration
	Logger    *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	memo     map[string]memoEntry
	lastCall time.Time
	calls    int // 实际发出的网络查询次数
}

type memoEntry struct {
	res Result
	err error
}

// Result 描述一次解析的结果与来源，便于上层写 report。
type Result struct {
	Name     string
	Provider string // 给出地址的 provider；缓存命中时取缓存记录里的值
	Cached   bool   // 未发网络请求（内存或文件缓存命中）
	Attempts []provider.Attempt
}

func NewResolver(reg provider.Registry, requested string, client *http.Client, store cache.Store, delay time.Duration, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		Registry:  reg,
		Requested: requested,
		Client:    client,
		Cache:     store,
		Delay:     delay,
		Logger:    logger,
	}
}

// Resolve 返回坐标对应的 location_name 及其来源。
// 失败时返回的 error 满足 errors.Is(err, provider.ErrUnavailable)（ctx 取消除外），调用方据此降级为无位置；
// 此时 Result.Attempts 仍记录每个 provider 的失败原因。
func (r *Resolver) Resolve(ctx context.Context, c domain.Coords) (Result, error) {
	key := cache.Key(c)
	if r.memo == nil {
		r.memo = map[string]memoEntry{}
	}
	if m, ok := r.memo[key]; ok {
		res := m.res
		res.Cached = true
		return res, m.err
	}

	e, ok, err := r.Cache.ReadGeocode(c)
	if err != nil {
		r.Logger.Warn("读取地理编码缓存失败", zap.String("key", key), zap.Error(err))
	}
	if ok {
		res := Result{Name: Compose(e.Address), Provider: e.Provider, Cached: true}
		r.memo[key] = memoEntry{res: res}
		return res, nil
	}

	if err := r.throttle(ctx); err != nil {
		return Result{}, err
	}
	addr, used, body, attempts, err := provider.Lookup(ctx, r.Registry, r.Requested, c, r.Client)
	r.lastCall = r.clock()
	r.calls++
	if err != nil {
		res := Result{Attempts: attempts}
		// ctx 取消不记入 memo：下一次运行应当重试。
		if ctx.Err() == nil {
			r.memo[key] = memoEntry{res: res, err: err}
		}
		return res, err
	}

	res := Result{Name: Compose(addr), Provider: used, Attempts: attempts}
	r.memo[key] = memoEntry{res: res}

	entry := cache.Entry{Provider: used, Address: addr, FetchedAt: r.clock().UTC()}
	if werr := r.Cache.WriteGeocode(c, entry); werr != nil && !errors.Is(werr, cache.ErrReadOnly) {
		r.Logger.Warn("写入地理编码缓存失败", zap.String("key", key), zap.Error(werr))
	}
	if werr := r.Cache.WriteProviderBody(used, c, body); werr != nil && !errors.Is(werr, cache.ErrReadOnly) {
		r.Logger.Debug("写入原始响应失败", zap.String("provider", used), zap.Error(werr))
	}

	r.Logger.Debug("反向地理编码完成",
		zap.String("key", key),
		zap.String("provider", used),
		zap.String("location", res.Name),
	)
	return res, nil
}

func (r *Resolver) throttle(ctx context.Context) error {
	if r.Delay <= 0 || r.lastCall.IsZero() {
		return ctx.Err()
	}
	wait := r.Delay - r.clock().Sub(r.lastCall)
	if wait <= 0 {
		return ctx.Err()
	}
	return r.doSleep(ctx, wait)
}

func (r *Resolver) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *Resolver) doSleep(ctx context.Context, d time.Duration) error {
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
