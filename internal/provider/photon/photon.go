package photon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/John-Robertt/mediarename/internal/domain"
	providerx "github.com/John-Robertt/mediarename/internal/provider"
)

const DefaultBaseURL = "https://photon.komoot.io"

// Provider 调用 Photon 的 /reverse 接口（GeoJSON），并把 properties 映射为 Nominatim 风格的 Address。
type Provider struct {
	BaseURL string
	// Language 只支持 Photon 提供的几种语言（en/de/fr/it），为空则不传。
	Language string
}

func (Provider) Name() string { return "photon" }

func (p Provider) baseURL() string {
	u := strings.TrimSpace(p.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

func (p Provider) ReverseURL(c domain.Coords) string {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(c.Lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(c.Lon, 'f', -1, 64))
	q.Set("limit", "1")
	if lang := strings.TrimSpace(p.Language); lang != "" {
		q.Set("lang", lang)
	}
	return p.baseURL() + "/reverse?" + q.Encode()
}

func (p Provider) Fetch(ctx context.Context, c domain.Coords, client *http.Client) ([]byte, string, error) {
	u := p.ReverseURL(c)
	b, err := providerx.Get(ctx, client, u, "application/json")
	return b, u, err
}

type featureCollection struct {
	Features []struct {
		Properties map[string]any `json:"properties"`
	} `json:"features"`
}

// 这些 osm_key 下的 name 视为景点。
var attractionKeys = map[string]bool{
	"tourism":  true,
	"historic": true,
	"leisure":  true,
}

func (Provider) Parse(body []byte) (domain.Address, error) {
	var fc featureCollection
	if err := json.Unmarshal(body, &fc); err != nil {
		return nil, fmt.Errorf("解析 GeoJSON 失败：%w", err)
	}
	if len(fc.Features) == 0 {
		return nil, errors.New("没有匹配的地点")
	}
	props := fc.Features[0].Properties

	str := func(k string) string {
		s, _ := props[k].(string)
		return strings.TrimSpace(s)
	}

	addr := domain.Address{}
	set := func(k, v string) {
		if v == "" {
			return
		}
		if _, ok := addr[k]; !ok {
			addr[k] = v
		}
	}

	for _, k := range []string{"city", "county", "state", "country", "postcode", "street", "housenumber"} {
		set(k, str(k))
	}
	set("country_code", strings.ToLower(str("countrycode")))
	set("suburb", str("district"))
	set("neighbourhood", str("locality"))

	name := str("name")
	if attractionKeys[str("osm_key")] {
		set("attraction", name)
		set(str("osm_key"), name)
	}
	switch str("type") {
	case "city":
		set("city", name)
	case "district":
		set("suburb", name)
	case "locality":
		set("neighbourhood", name)
	case "state":
		set("state", name)
	case "country":
		set("country", name)
	}

	if len(addr) == 0 {
		return nil, errors.New("properties 为空")
	}
	return addr, nil
}
