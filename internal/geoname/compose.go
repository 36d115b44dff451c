// Package geoname 把坐标解析成 "{place}_{city}_{state}_{country}" 形式的地名。
package geoname

import (
	"strings"

	"github.com/John-Robertt/mediarename/internal/domain"
	"github.com/John-Robertt/mediarename/internal/naming"
)

// 每个组件按顺序取第一个非空字段。
var (
	PlaceKeys = []string{
		"attraction", "tourism", "village", "hamlet", "suburb", "neighbourhood",
		"city_district", "quarter", "residential", "city", "town", "municipality",
	}
	CityKeys    = []string{"city", "town", "municipality", "county", "administrative-area-level-2"}
	StateKeys   = []string{"state", "province", "region", "administrative-area-level-1"}
	CountryKeys = []string{"country"}
)

// First 返回 addr 中 keys 顺序下第一个非空（去空白后）的值；都没有时返回 "Unknown"。
func First(addr domain.Address, keys []string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(addr[k]); v != "" {
			return v
		}
	}
	return naming.Unknown
}

// Compose 把地址合成为四段 location_name。每段都经过 CleanComponent，且不含 '_'。
//
// place 链尾部的 city/town/municipality 只在与 city 段不同时才作为 place。
func Compose(addr domain.Address) string {
	city := First(addr, CityKeys)
	place := naming.Unknown
	for _, k := range PlaceKeys {
		v := strings.TrimSpace(addr[k])
		if v == "" || (v == city && isCityKey(k)) {
			continue
		}
		place = v
		break
	}
	return strings.Join([]string{
		component(place),
		component(city),
		component(First(addr, StateKeys)),
		component(First(addr, CountryKeys)),
	}, "_")
}

func isCityKey(k string) bool {
	switch k {
	case "city", "town", "municipality":
		return true
	}
	return false
}

func component(v string) string {
	v = naming.CleanComponent(v)
	// '_' 是段分隔符；段内出现的 '_' 改写为空格，最终文件名里仍然是 '_'。
	v = strings.TrimSpace(strings.ReplaceAll(v, "_", " "))
	if v == "" {
		return naming.Unknown
	}
	return v
}
