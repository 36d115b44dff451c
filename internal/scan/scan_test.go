package scan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/John-Robertt/mediarename/internal/domain"
)

func TestInputs_ExplicitFilesKeepOrder(t *testing.T) {
	root := t.TempDir()
	b := filepath.Join(root, "b.JPG")
	a := filepath.Join(root, "a.mov")
	touch(t, b)
	touch(t, a)

	got, rej := Inputs([]string{b, a, b}, nil)
	if len(rej) != 0 {
		t.Fatalf("不期望 rejected：%+v", rej)
	}
	if len(got) != 2 {
		t.Fatalf("期望 2 个文件（重复参数只保留一次），实际 %d", len(got))
	}
	if got[0].AbsPath != b || got[1].AbsPath != a {
		t.Fatalf("显式文件必须保持输入顺序：%v, %v", got[0].AbsPath, got[1].AbsPath)
	}
	if got[0].Kind != domain.KindPhoto || got[0].Ext != ".JPG" || got[0].Base != "b" {
		t.Fatalf("照片分类不正确：%+v", got[0])
	}
	if got[1].Kind != domain.KindVideo {
		t.Fatalf("视频分类不正确：%+v", got[1])
	}
	if got[0].ModTime.IsZero() {
		t.Fatalf("期望带上修改时间")
	}
}

func TestInputs_RejectsMissingAndUnsupported(t *testing.T) {
	root := t.TempDir()
	txt := filepath.Join(root, "notes.txt")
	touch(t, txt)
	missing := filepath.Join(root, "gone.jpg")

	got, rej := Inputs([]string{txt, missing}, nil)
	if len(got) != 0 {
		t.Fatalf("期望没有可处理文件，实际 %d", len(got))
	}
	if len(rej) != 2 {
		t.Fatalf("期望 2 个 rejected，实际 %+v", rej)
	}
	if rej[0].Code != domain.ErrCodeUnsupportedType || rej[1].Code != domain.ErrCodeNotFound {
		t.Fatalf("rejected 分类不正确：%+v", rej)
	}
}

func TestInputs_WalkDirectory(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "2025", "b.heic"))
	touch(t, filepath.Join(root, "2025", "a.mp4"))
	touch(t, filepath.Join(root, "2025", "readme.txt"))
	touch(t, filepath.Join(root, ".mediarename", "report.jpg"))
	touch(t, filepath.Join(root, "2025", "._a.mp4"))
	touch(t, filepath.Join(root, "skip", "c.jpg"))

	got, rej := Inputs([]string{root}, []string{"skip"})
	if len(rej) != 0 {
		t.Fatalf("目录中的非媒体文件不应记为 rejected：%+v", rej)
	}
	if len(got) != 2 {
		t.Fatalf("期望 2 个媒体文件，实际 %d：%+v", len(got), got)
	}
	if got[0].AbsPath != filepath.Join(root, "2025", "a.mp4") || got[1].AbsPath != filepath.Join(root, "2025", "b.heic") {
		t.Fatalf("目录内必须按路径排序：%s, %s", got[0].AbsPath, got[1].AbsPath)
	}
}

func TestKindOf(t *testing.T) {
	cases := map[string]domain.MediaKind{
		".jpg": domain.KindPhoto, ".JPEG": domain.KindPhoto, ".Tif": domain.KindPhoto, ".heic": domain.KindPhoto,
		".MOV": domain.KindVideo, ".mkv": domain.KindVideo, ".3gp": domain.KindVideo,
	}
	for ext, want := range cases {
		got, ok := KindOf(ext)
		if !ok || got != want {
			t.Fatalf("KindOf(%q) = %q, %v", ext, got, ok)
		}
	}
	for _, ext := range []string{"", ".txt", ".gif", ".webp"} {
		if _, ok := KindOf(ext); ok {
			t.Fatalf("KindOf(%q) 不应支持", ext)
		}
	}
}

func touch(t *testing.T, p string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}
}
