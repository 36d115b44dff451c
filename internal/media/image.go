package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"

	"github.com/John-Robertt/mediarename/internal/coord"
	"github.com/John-Robertt/mediarename/internal/domain"
)

const exifTimeLayout = "2006:01:02 15:04:05"

// ImageReader 先用 goexif 读 JPEG/TIFF；时间或坐标仍缺失时（包括 HEIC/PNG 这类 goexif 读不了的容器），
// 再用 imagemeta 补齐。
type ImageReader struct{}

func (ImageReader) Read(ctx context.Context, path string) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, err
	}
	defer f.Close()

	res, exifErr := readEXIF(f)
	if exifErr == nil && res.complete() {
		return res, nil
	}
	if err := ctx.Err(); err != nil {
		return res, err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return res, err
	}
	alt, metaErr := readImagemeta(f, path)
	res = res.merge(alt)

	if exifErr != nil && metaErr != nil {
		return res, fmt.Errorf("读取 EXIF 失败：%w", errors.Join(exifErr, metaErr))
	}
	return res, nil
}

func readEXIF(r io.Reader) (Result, error) {
	x, err := exif.Decode(r)
	if x == nil {
		if err == nil {
			err = errors.New("no exif")
		}
		return Result{}, err
	}
	// 非致命错误（例如损坏的 MakerNote）时 x 仍可用。
	if err != nil && exif.IsCriticalError(err) {
		return Result{}, err
	}

	var res Result
	for _, name := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime} {
		tag, err := x.Get(name)
		if err != nil {
			continue
		}
		s, err := tag.StringVal()
		if err != nil {
			continue
		}
		t, err := time.ParseInLocation(exifTimeLayout, strings.Trim(s, " \x00"), time.Local)
		if err != nil {
			continue
		}
		res.CreationDate = &t
		break
	}

	lat, okLat := gpsCoord(x, exif.GPSLatitude, exif.GPSLatitudeRef, "N")
	lon, okLon := gpsCoord(x, exif.GPSLongitude, exif.GPSLongitudeRef, "E")
	if okLat && okLon {
		res.Coords = &domain.Coords{Lat: lat, Lon: lon}
	}
	return res, nil
}

func gpsCoord(x *exif.Exif, valName, refName exif.FieldName, defRef string) (float64, bool) {
	tag, err := x.Get(valName)
	if err != nil {
		return 0, false
	}
	ref := defRef
	if rt, err := x.Get(refName); err == nil {
		if s, err := rt.StringVal(); err == nil {
			ref = s
		}
	}
	if vals, ok := rationals(tag); ok {
		return coord.FromDMS(vals, ref)
	}
	return coord.FromDMSText(tag.String(), ref)
}

func rationals(tag *tiff.Tag) ([]float64, bool) {
	if tag.Count < 3 {
		return nil, false
	}
	vals := make([]float64, 0, 3)
	for i := 0; i < 3; i++ {
		num, den, err := tag.Rat2(i)
		if err != nil || den == 0 {
			return nil, false
		}
		vals = append(vals, float64(num)/float64(den))
	}
	return vals, true
}

// readImagemeta 防御解码器在畸形文件上 panic。
func readImagemeta(r io.ReadSeeker, path string) (res Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			res, err = Result{}, fmt.Errorf("解析 %s 时 panic：%v", path, rec)
		}
	}()

	ex, err := imagemeta.Decode(r)
	if err != nil {
		return Result{}, err
	}

	ts := ex.DateTimeOriginal()
	if ts.IsZero() {
		ts = ex.CreateDate()
	}
	if !ts.IsZero() {
		t := wallClock(ts)
		res.CreationDate = &t
	}

	lat, lon := ex.GPS.Latitude(), ex.GPS.Longitude()
	if lat != 0 || lon != 0 {
		res.Coords = &domain.Coords{Lat: lat, Lon: lon}
	}
	return res, nil
}
