package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withEnv 用固定表替换进程环境查找，避免受运行机器的环境变量影响。
func withEnv(t *testing.T, m map[string]string) {
	t.Helper()
	old := lookupEnv
	lookupEnv = func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
	t.Cleanup(func() { lookupEnv = old })
}

func TestLoadEffective_ConfigNotFound(t *testing.T) {
	withEnv(t, nil)
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadEffective_CLIInputs_ConfigOptional(t *testing.T) {
	withEnv(t, nil)
	cwd := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{Inputs: []string{"photos", "/abs/IMG_0001.jpg"}})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	want := []string{filepath.Join(cwd, "photos"), "/abs/IMG_0001.jpg"}
	assert.Equal(t, want, eff.Inputs)
	assert.Equal(t, DefaultProvider, eff.Provider)
	assert.Equal(t, DefaultLanguage, eff.Language)
	assert.Equal(t, DefaultGeocodeTimeout, eff.GeocodeTimeout)
	assert.Equal(t, DefaultGeocodeDelay, eff.GeocodeDelay)
	assert.Equal(t, DefaultProbeTimeout, eff.ProbeTimeout)
	assert.False(t, eff.DryRun)
}

func TestLoadEffective_InputsFromConfig(t *testing.T) {
	withEnv(t, nil)
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{"inputs":["a","b"]}`))

	eff, err := LoadEffective(cwd, CLIArgs{})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(cwd, "a"), filepath.Join(cwd, "b")}, eff.Inputs)

	// CLI 给了输入则完全忽略配置里的 inputs。
	eff, err = LoadEffective(cwd, CLIArgs{Inputs: []string{"c"}})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(cwd, "c")}, eff.Inputs)
}

func TestLoadEffective_DryRunCLIOverride(t *testing.T) {
	withEnv(t, nil)
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{"dry_run":true}`))

	eff, err := LoadEffective(cwd, CLIArgs{Inputs: []string{"x"}})
	require.NoError(t, err)
	if !eff.DryRun {
		t.Fatalf("期望 dry_run=true（来自配置）")
	}

	eff, err = LoadEffective(cwd, CLIArgs{
		Inputs:    []string{"x"},
		DryRun:    false,
		DryRunSet: true, // --dry-run=false
	})
	require.NoError(t, err)
	if eff.DryRun {
		t.Fatalf("期望 --dry-run=false 覆盖配置")
	}
}

func TestLoadEffective_ProviderMergeOrder(t *testing.T) {
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{"provider":"photon"}`))
	cli := CLIArgs{Inputs: []string{"x"}}

	withEnv(t, nil)
	eff, err := LoadEffective(cwd, cli)
	require.NoError(t, err)
	assert.Equal(t, "photon", eff.Provider)

	// .env 覆盖配置文件。
	writeFile(t, filepath.Join(cwd, ".env"), []byte("MEDIARENAME_PROVIDER=nominatim\n"))
	eff, err = LoadEffective(cwd, cli)
	require.NoError(t, err)
	assert.Equal(t, "nominatim", eff.Provider)

	// 进程环境覆盖 .env。
	withEnv(t, map[string]string{"MEDIARENAME_PROVIDER": "Photon"})
	eff, err = LoadEffective(cwd, cli)
	require.NoError(t, err)
	assert.Equal(t, "photon", eff.Provider)

	// CLI 覆盖一切。
	cli.Provider, cli.ProviderSet = "nominatim", true
	eff, err = LoadEffective(cwd, cli)
	require.NoError(t, err)
	assert.Equal(t, "nominatim", eff.Provider)
}

func TestLoadEffective_DurationsAndBaseURLs(t *testing.T) {
	withEnv(t, map[string]string{"MEDIARENAME_GEOCODE_DELAY": "1500ms"})
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte(`{
		"geocode_timeout": "5s",
		"geocode_delay": "2s",
		"probe_timeout": "1m",
		"nominatim_base_url": "http://localhost:8080/",
		"photon_base_url": "https://photon.example.org",
		"proxy": {"url": "http://127.0.0.1:7890"}
	}`))

	eff, err := LoadEffective(cwd, CLIArgs{Inputs: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, eff.GeocodeTimeout)
	assert.Equal(t, 1500*time.Millisecond, eff.GeocodeDelay)
	assert.Equal(t, time.Minute, eff.ProbeTimeout)
	assert.Equal(t, "http://localhost:8080", eff.NominatimBaseURL)
	assert.Equal(t, "https://photon.example.org", eff.PhotonBaseURL)
	assert.Equal(t, "http://127.0.0.1:7890", eff.ProxyURL)
}

func TestLoadEffective_Cache(t *testing.T) {
	cwd := t.TempDir()
	cli := CLIArgs{Inputs: []string{"x"}}

	withEnv(t, map[string]string{"MEDIARENAME_CACHE_DIR": "cache"})
	eff, err := LoadEffective(cwd, cli)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cwd, "cache"), eff.CacheDir)

	withEnv(t, map[string]string{"MEDIARENAME_CACHE_DIR": "cache", "MEDIARENAME_NO_CACHE": "1"})
	eff, err = LoadEffective(cwd, cli)
	require.NoError(t, err)
	assert.Empty(t, eff.CacheDir)
}

func TestLoadEffective_Invalid(t *testing.T) {
	cases := []struct {
		name string
		file string
		env  map[string]string
	}{
		{name: "坏 JSON", file: `{`},
		{name: "未知 provider", file: `{"provider":"nope"}`},
		{name: "坏时长", file: `{"geocode_delay":"soon"}`},
		{name: "负时长", file: `{"probe_timeout":"-1s"}`},
		{name: "坏代理", file: `{"proxy":{"url":"http://[::1"}}`},
		{name: "非 http base url", file: `{"photon_base_url":"ftp://x"}`},
		{name: "坏布尔环境变量", file: `{}`, env: map[string]string{"MEDIARENAME_VERBOSE": "maybe"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			withEnv(t, tc.env)
			cwd := t.TempDir()
			writeFile(t, filepath.Join(cwd, FileName), []byte(tc.file))

			_, err := LoadEffective(cwd, CLIArgs{Inputs: []string{"x"}})
			if Code(err) != ErrCodeInvalid {
				t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
			}
		})
	}
}

func TestLoadEffective_InvalidDotenv(t *testing.T) {
	withEnv(t, nil)
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, ".env"), []byte("MEDIARENAME_REPORT=yes please\n"))

	_, err := LoadEffective(cwd, CLIArgs{Inputs: []string{"x"}})
	if Code(err) != ErrCodeInvalid {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
	}
}

func writeFile(t *testing.T, path string, b []byte) {
	t.Helper()
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("写入文件失败 %q：%v", path, err)
	}
}
