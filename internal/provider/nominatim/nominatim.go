package nominatim

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/mediarename/internal/domain"
	providerx "github.com/John-Robertt/mediarename/internal/provider"
)

const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// Provider 调用 Nominatim 的 /reverse 接口（format=xml）。
//
// 约束：
// - 使用政策要求可识别的 User-Agent 且每秒不超过一次请求（由 httpx 与 geoname 保证）
// - Parse 只依赖响应体，addressparts 的子元素原样成为 Address 的键
type Provider struct {
	// BaseURL 为空时使用公共实例；可指向自建实例。
	BaseURL string
	// Language 作为 accept-language 传给服务端，为空则不传。
	Language string
}

func (Provider) Name() string { return "nominatim" }

func (p Provider) baseURL() string {
	u := strings.TrimSpace(p.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

// ReverseURL 构造 /reverse 请求地址。
func (p Provider) ReverseURL(c domain.Coords) string {
	q := url.Values{}
	q.Set("format", "xml")
	q.Set("lat", strconv.FormatFloat(c.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(c.Lon, 'f', -1, 64))
	q.Set("zoom", "18")
	q.Set("addressdetails", "1")
	if lang := strings.TrimSpace(p.Language); lang != "" {
		q.Set("accept-language", lang)
	}
	return p.baseURL() + "/reverse?" + q.Encode()
}

func (p Provider) Fetch(ctx context.Context, c domain.Coords, client *http.Client) ([]byte, string, error) {
	u := p.ReverseURL(c)
	b, err := providerx.Get(ctx, client, u, "application/xml")
	return b, u, err
}

// Parse 解析 <reversegeocode> 响应。
//
// goquery 按 HTML 规则解析，元素名会被转成小写（ISO3166-2-lvl4 -> iso3166-2-lvl4）。
func (Provider) Parse(body []byte) (domain.Address, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, errors.New("响应为空")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	if msg := strings.TrimSpace(doc.Find("reversegeocode > error").First().Text()); msg != "" {
		return nil, fmt.Errorf("nominatim: %s", msg)
	}

	parts := doc.Find("addressparts").First()
	if parts.Length() == 0 {
		return nil, errors.New("响应缺少 addressparts")
	}

	addr := domain.Address{}
	parts.Children().Each(func(_ int, s *goquery.Selection) {
		key := goquery.NodeName(s)
		val := strings.Join(strings.Fields(s.Text()), " ")
		if key == "" || val == "" {
			return
		}
		if _, ok := addr[key]; !ok {
			addr[key] = val
		}
	})
	if len(addr) == 0 {
		return nil, errors.New("addressparts 为空")
	}

	if name := strings.TrimSpace(doc.Find("result").First().Text()); name != "" {
		addr["display_name"] = strings.Join(strings.Fields(name), " ")
	}
	return addr, nil
}
