// Package media 从照片与视频中读取拍摄时间和 GPS 坐标。
//
// 读取失败从不中断批处理：Reader 总是返回尽力得到的 Result，
// 非 nil 的 error 只描述降级原因（由上层记为 warning）。
package media

import (
	"context"
	"errors"
	"time"

	"github.com/John-Robertt/mediarename/internal/domain"
)

// ErrToolMissing 表示外部工具（ffprobe）不可用。
var ErrToolMissing = errors.New("ffprobe 不可用")

// Result 是一次读取的结果；字段为 nil 表示缺失。
type Result struct {
	CreationDate *time.Time
	Coords       *domain.Coords
}

func (r Result) complete() bool { return r.CreationDate != nil && r.Coords != nil }

// merge 用 o 补齐 r 中缺失的字段，r 已有的字段优先。
func (r Result) merge(o Result) Result {
	if r.CreationDate == nil {
		r.CreationDate = o.CreationDate
	}
	if r.Coords == nil {
		r.Coords = o.Coords
	}
	return r
}

type Reader interface {
	Read(ctx context.Context, path string) (Result, error)
}

// Extractor 按文件类别选择 Reader，并把结果组装为 FileMetadata。
type Extractor struct {
	Images Reader
	Videos Reader
}

func (e Extractor) Extract(ctx context.Context, f domain.MediaFile) (domain.FileMetadata, error) {
	md := domain.FileMetadata{
		Path:    f.AbsPath,
		Kind:    f.Kind,
		ModTime: f.ModTime,
	}

	var r Reader
	switch f.Kind {
	case domain.KindPhoto:
		r = e.Images
	case domain.KindVideo:
		r = e.Videos
	}
	if r == nil {
		return md, nil
	}

	res, err := r.Read(ctx, f.AbsPath)
	md.CreationDate = res.CreationDate
	md.Coords = res.Coords
	return md, err
}

// wallClock 把 t 的年月日时分秒原样放到本地时区。
// 元数据里的时间大多不带时区，解析库会把它当成 UTC；文件名需要的是拍摄地的钟面时间。
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.Local)
}
