// Package naming 负责把元数据合成为目标文件名。
//
// 目标名格式：{place}_{city}_{state}_{country}_{YYYYMMDD_HHMMSS}_{stem}{ext}
package naming

import (
	"regexp"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

const (
	Unknown = "Unknown"

	// MaxFilenameLen 是常见文件系统单个文件名的字节上限。
	MaxFilenameLen = 255

	// TimestampLayout 对应 YYYYMMDD_HHMMSS。
	TimestampLayout = "20060102_150405"
)

// UnknownLocation 是完全没有位置信息时使用的 location_name。
const UnknownLocation = Unknown + "_" + Unknown + "_" + Unknown + "_" + Unknown

var (
	unsafeCharsRE = regexp.MustCompile(`[<>:"/\\|?*]`)
	underscoresRE = regexp.MustCompile(`_+`)
	spacesRE      = regexp.MustCompile(`\s+`)

	// 之前运行留下的前缀，按顺序尝试，命中一个即停止：
	//   旧版：{place}_{YYYY-MM-DD}_
	//   当前：{place}_{city}_{state}_{country}_{YYYYMMDD_HHMMSS}_（地名内部可能含 '_'，所以至少四段）
	//   只有时间：{YYYYMMDD_HHMMSS}_
	priorPrefixes = []*regexp.Regexp{
		regexp.MustCompile(`^[^_]+_\d{4}-\d{2}-\d{2}_`),
		regexp.MustCompile(`^(?:[^_]+_){4,}?\d{8}_\d{6}_`),
		regexp.MustCompile(`^\d{8}_\d{6}_`),
	}
)

// CleanComponent 清洗单个地名组件：丢弃所有非 ASCII 字符，再按 CleanFilenamePart 规则处理。
// 结果为空时返回 "Unknown"。
func CleanComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		// 非法 UTF-8 字节解码为 RuneError（>= 128），同样被丢弃。
		if r < utf8.RuneSelf {
			b.WriteRune(r)
		}
	}
	out := b.String()
	if strings.TrimSpace(out) == "" {
		return Unknown
	}
	return CleanFilenamePart(out)
}

// CleanFilenamePart 替换文件系统不安全字符、合并连续下划线、去掉首尾的下划线与空白。
// 结果为空时返回 "Unknown"。函数是幂等的。
func CleanFilenamePart(s string) string {
	s = unsafeCharsRE.ReplaceAllString(s, "_")
	s = underscoresRE.ReplaceAllString(s, "_")
	s = strings.TrimFunc(s, func(r rune) bool {
		return r == '_' || unicode.IsSpace(r)
	})
	if s == "" {
		return Unknown
	}
	return s
}

// StripPriorNaming 去掉之前运行加上的前缀。去掉后为空则原样返回。
func StripPriorNaming(stem string) string {
	for _, re := range priorPrefixes {
		loc := re.FindStringIndex(stem)
		if loc == nil {
			continue
		}
		rest := stem[loc[1]:]
		if strings.TrimSpace(rest) == "" {
			return stem
		}
		return rest
	}
	return stem
}

// BuildFilename 合成目标文件名。
//
// locationName 应为四段 '_' 分隔的地名（缺失时为 UnknownLocation）；
// stem 为当前文件名去掉扩展名的部分；ext 原样保留。
// 结果不超过 MaxFilenameLen 字节，超出时优先截断 stem。
func BuildFilename(locationName string, capture time.Time, stem, ext string) string {
	loc := locationString(locationName)
	prefix := loc + "_" + capture.Format(TimestampLayout)
	stem = StripPriorNaming(CleanFilenamePart(stem))

	name := prefix + "_" + stem + ext
	if len(name) <= MaxFilenameLen {
		return name
	}

	room := MaxFilenameLen - len(prefix) - 1 - len(ext)
	if room > 0 {
		// 截断点落在分隔符上时去掉尾部的 '_' 和空白。
		if s := strings.TrimRight(truncateBytes(stem, room), "_ \t"); s != "" {
			return prefix + "_" + s + ext
		}
	}
	if len(prefix)+len(ext) <= MaxFilenameLen {
		return prefix + ext
	}

	// 地名本身就超长：截断地名，时间戳与扩展名保持完整。
	tail := "_" + capture.Format(TimestampLayout) + ext
	loc = strings.TrimRight(truncateBytes(loc, MaxFilenameLen-len(tail)), "_")
	if loc == "" {
		loc = Unknown
	}
	return loc + tail
}

// locationString 把 location_name 拆成四段并逐段重新清洗，不足四段时用 Unknown 补齐。
// 段内空白在文件名中写成 '_'（"San Francisco" -> "San_Francisco"）。
func locationString(name string) string {
	if strings.TrimSpace(name) == "" {
		name = UnknownLocation
	}
	parts := strings.SplitN(name, "_", 4)
	for len(parts) < 4 {
		parts = append(parts, Unknown)
	}
	for i, p := range parts {
		p = CleanFilenamePart(p)
		p = spacesRE.ReplaceAllString(p, "_")
		parts[i] = underscoresRE.ReplaceAllString(p, "_")
	}
	return strings.Join(parts, "_")
}

// truncateBytes 截断到不超过 n 字节，且不切断多字节字符。
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	s = s[:n]
	for len(s) > 0 {
		r, size := utf8.DecodeLastRuneInString(s)
		if r != utf8.RuneError || size > 1 {
			break
		}
		s = s[:len(s)-1]
	}
	return s
}
