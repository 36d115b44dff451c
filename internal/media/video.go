package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/abema/go-mp4"

	"github.com/John-Robertt/mediarename/internal/coord"
	"github.com/John-Robertt/mediarename/internal/domain"
)

const DefaultProbeTimeout = 30 * time.Second

// mvhd 时间从 1904-01-01 起算。
const appleEpochOffset = 2082844800

var (
	videoDateKeys     = []string{"creation_time", "date", "DATE"}
	videoLocationKeys = []string{"location", "com.apple.quicktime.location.ISO6709", "location-eng"}

	// 可以直接读 moov/mvhd 的 ISO-BMFF 容器。
	isoBMFF = map[string]bool{".mp4": true, ".mov": true, ".m4v": true, ".3gp": true}
)

// VideoReader 通过 ffprobe 读取容器与流的 tags。
// ffprobe 缺失或失败时，对 ISO-BMFF 容器退回读取 mvhd 的创建时间（没有坐标）。
type VideoReader struct {
	FFprobePath string // 为空时在 PATH 中查找 "ffprobe"
	Timeout     time.Duration
}

type probeOutput struct {
	Format struct {
		Tags map[string]string `json:"tags"`
	} `json:"format"`
	Streams []struct {
		CodecType string            `json:"codec_type"`
		Tags      map[string]string `json:"tags"`
	} `json:"streams"`
}

func (v VideoReader) Read(ctx context.Context, path string) (Result, error) {
	res, err := v.probe(ctx, path)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil || !isoBMFF[strings.ToLower(filepath.Ext(path))] {
		return res, err
	}
	t, mErr := mvhdCreationTime(path)
	if mErr != nil {
		return res, errors.Join(err, mErr)
	}
	res.CreationDate = &t
	return res, err
}

func (v VideoReader) probe(ctx context.Context, path string) (Result, error) {
	bin := strings.TrimSpace(v.FFprobePath)
	if bin == "" {
		bin = "ffprobe"
	}
	binPath, err := exec.LookPath(bin)
	if err != nil {
		return Result{}, fmt.Errorf("%w：%v", ErrToolMissing, err)
	}

	timeout := v.Timeout
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binPath,
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Result{}, fmt.Errorf("ffprobe 超时（%s）", timeout)
		}
		return Result{}, fmt.Errorf("ffprobe 失败：%w", err)
	}
	return parseProbe(out)
}

// parseProbe 从 ffprobe 的 JSON 输出中提取时间与坐标。
// 时间只看容器级 tags；坐标先看容器级，再按顺序看各个流。
func parseProbe(b []byte) (Result, error) {
	var p probeOutput
	if err := json.Unmarshal(b, &p); err != nil {
		return Result{}, fmt.Errorf("解析 ffprobe 输出失败：%w", err)
	}

	var res Result
	for _, k := range videoDateKeys {
		s, ok := p.Format.Tags[k]
		if !ok {
			continue
		}
		if t, ok := parseVideoTime(s); ok {
			res.CreationDate = &t
			break
		}
	}

	if c, ok := findLocation(p.Format.Tags); ok {
		res.Coords = &c
	}
	for _, s := range p.Streams {
		if res.Coords != nil {
			break
		}
		if c, ok := findLocation(s.Tags); ok {
			res.Coords = &c
		}
	}
	return res, nil
}

func findLocation(tags map[string]string) (domain.Coords, bool) {
	for _, k := range videoLocationKeys {
		if s, ok := tags[k]; ok {
			if c, ok := coord.ParseLocation(s); ok {
				return c, true
			}
		}
	}
	return domain.Coords{}, false
}

// parseVideoTime 解析 "2025-06-22T17:36:53.000000Z" / "2025-06-22 17:36:53" 这类写法。
// 小数秒与 'Z' 被丢弃，结果按本地钟面时间解释；显式的数字时区偏移会被保留。
func parseVideoTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if d, rest, ok := strings.Cut(s, "T"); ok {
		s = d + " " + rest
	}
	s = strings.TrimSuffix(s, "Z")

	var offset string
	if i := strings.IndexAny(s[min(len(s), 11):], "+-"); i >= 0 {
		i += min(len(s), 11)
		s, offset = s[:i], s[i:]
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}

	if offset != "" {
		for _, layout := range []string{"2006-01-02 15:04:05-07:00", "2006-01-02 15:04:05-0700"} {
			if t, err := time.Parse(layout, s+offset); err == nil {
				return t, true
			}
		}
	}
	for _, layout := range []string{"2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func mvhdCreationTime(path string) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	boxes, err := mp4.ExtractBoxesWithPayload(f, nil, []mp4.BoxPath{
		{mp4.BoxTypeMoov(), mp4.BoxTypeMvhd()},
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("读取 MP4 结构失败：%w", err)
	}

	for _, box := range boxes {
		mvhd, ok := box.Payload.(*mp4.Mvhd)
		if !ok {
			continue
		}
		ct := mvhd.GetCreationTime()
		if ct == 0 {
			return time.Time{}, errors.New("mvhd creation time 为 0")
		}
		t := time.Unix(int64(ct)-appleEpochOffset, 0)
		if t.Year() < 1970 {
			return time.Time{}, errors.New("mvhd creation time 早于 1970")
		}
		return t.Local(), nil
	}
	return time.Time{}, fmt.Errorf("%s 中没有 mvhd", path)
}
