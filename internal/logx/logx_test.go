package logx

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNew_LevelFollowsVerbose(t *testing.T) {
	var quiet bytes.Buffer
	l := New(&quiet, false)
	l.Debug("hidden")
	l.Info("hidden too")
	l.Warn("geocode failed", zap.String("path", "/a/IMG_0001.jpg"))

	out := quiet.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("非 verbose 不应输出 debug/info：%q", out)
	}
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "geocode failed") || !strings.Contains(out, "/a/IMG_0001.jpg") {
		t.Fatalf("warn 输出不符合预期：%q", out)
	}

	var loud bytes.Buffer
	New(&loud, true).Debug("cache hit")
	if !strings.Contains(loud.String(), "cache hit") {
		t.Fatalf("verbose 时应输出 debug：%q", loud.String())
	}
}

func TestNew_NilWriter(t *testing.T) {
	l := New(nil, true)
	l.Warn("nowhere") // 不应 panic
}
