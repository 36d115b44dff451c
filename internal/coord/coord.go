// Package coord 把媒体元数据里的坐标表示转换成十进制度。
package coord

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/John-Robertt/mediarename/internal/domain"
)

var (
	// ISO 6709 紧凑形式：+37.7749-122.4194/ 或 +37.7749-122.4194+010.5/
	iso6709RE = regexp.MustCompile(`^([+-]\d+\.?\d*)([+-]\d+\.?\d*)`)
	// "37.7749, -122.4194"
	pairRE = regexp.MustCompile(`^(-?\d+\.?\d*),\s*(-?\d+\.?\d*)`)
)

// ParseLocation 解析视频容器里的位置字符串。
// 两种格式都只看开头，后面的海拔、CRS 后缀等被忽略。
func ParseLocation(s string) (domain.Coords, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return domain.Coords{}, false
	}
	for _, re := range []*regexp.Regexp{iso6709RE, pairRE} {
		m := re.FindStringSubmatch(s)
		if m == nil {
			continue
		}
		lat, err1 := strconv.ParseFloat(m[1], 64)
		lon, err2 := strconv.ParseFloat(m[2], 64)
		if err1 != nil || err2 != nil {
			return domain.Coords{}, false
		}
		return domain.Coords{Lat: lat, Lon: lon}, true
	}
	return domain.Coords{}, false
}

// FromDMS 把 [度, 分, 秒] 换算为十进制度；ref 为 S 或 W 时取负。
func FromDMS(vals []float64, ref string) (float64, bool) {
	if len(vals) < 3 {
		return 0, false
	}
	for _, v := range vals[:3] {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
	}
	d := vals[0] + vals[1]/60 + vals[2]/3600
	return applyRef(d, ref), true
}

// FromDMSText 处理 EXIF 库给出的文本形式，例如 `[37, 43, 4440/100]` 或 `["37/1","43/1","4440/100"]`。
// 缺省的分、秒按 0 处理。
func FromDMSText(text, ref string) (float64, bool) {
	s := strings.NewReplacer("[", "", "]", "", `"`, "").Replace(text)
	if strings.TrimSpace(s) == "" {
		return 0, false
	}
	parts := strings.Split(s, ",")
	vals := make([]float64, 3)
	for i := 0; i < len(parts) && i < 3; i++ {
		v, ok := parseNumber(strings.TrimSpace(parts[i]))
		if !ok {
			return 0, false
		}
		vals[i] = v
	}
	return FromDMS(vals, ref)
}

func parseNumber(s string) (float64, bool) {
	if num, den, ok := strings.Cut(s, "/"); ok {
		n, err1 := strconv.ParseFloat(strings.TrimSpace(num), 64)
		d, err2 := strconv.ParseFloat(strings.TrimSpace(den), 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0, false
		}
		return n / d, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func applyRef(d float64, ref string) float64 {
	switch strings.ToUpper(strings.Trim(ref, " \x00")) {
	case "S", "W":
		return -d
	}
	return d
}
