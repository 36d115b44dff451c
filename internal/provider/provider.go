package provider

import (
	"context"
	"net/http"

	"github.com/John-Robertt/mediarename/internal/domain"
)

// Provider 把“地理编码服务的差异”限制在 provider 包内部；核心流程只依赖统一接口与 domain.Address。
//
// 约束：
// - Fetch 不做缓存、不做限速（这些由 geoname/cache 层统一实现）
// - Parse 必须是纯函数：相同输入 => 相同输出
// - requestURL 是实际请求的地址（用于日志与 report 追溯）
type Provider interface {
	Name() string
	Fetch(ctx context.Context, c domain.Coords, client *http.Client) (body []byte, requestURL string, err error)
	Parse(body []byte) (domain.Address, error)
}
