package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rupor-github/gencfg"

	"tlnote/assemble"
	"tlnote/offsets"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoadConfiguration_NoFile(t *testing.T) {
	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatalf("LoadConfiguration() with empty path error = %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("Default config version = %d, want 1", cfg.Version)
	}
	if cfg.Publish.IgnoreThreshold != offsets.DefaultIgnoreThreshold {
		t.Errorf("IgnoreThreshold = %d", cfg.Publish.IgnoreThreshold)
	}
	if cfg.Publish.Style != assemble.DefaultStyle() {
		t.Errorf("Style = %+v, want %+v", cfg.Publish.Style, assemble.DefaultStyle())
	}
	if got := cfg.Publish.EffectiveTemplate(); len(got) != 3 || got[2] != assemble.DirectiveBody {
		t.Errorf("template = %v", got)
	}
	if cfg.Platform.Timeout != 30*time.Second || cfg.Platform.Retry.Attempts != 3 {
		t.Errorf("Platform = %+v", cfg.Platform)
	}
	if cfg.Images.DefaultWidth != 315 || cfg.Images.JPEGQuality != 90 || !cfg.Images.RasterizeSVG {
		t.Errorf("Images = %+v", cfg.Images)
	}
	// templates expanded at run time are left alone
	if !strings.Contains(cfg.Publish.Cover, "{{ .Title }}") {
		t.Errorf("Cover = %q", cfg.Publish.Cover)
	}
}

func TestLoadConfiguration_WithFile(t *testing.T) {
	path := writeConfig(t, `version: 1
publish:
  bvid: BV1xx411c7mD
  cookie: "SESSDATA=abc; bili_jct=0123456789abcdef0123456789ABCDEF"
  timeline: master.csv
  publish: true
  summary_max: 0
  output: '{{ .Slug }}.txt'
  variants:
    - id: dm
      key: 弹幕
      offsets: [0, auto, skip, -30]
      marker: 弹
      jumpOpDesc: 🪂点此跳过OP (弹幕版)
    - key: ""
      offsets: [120]
      marker: ""
  template:
    - "[B]Hello"
    - ".. body"
platform:
  timeout: 5s
logging:
  console:
    level: debug
  file:
    level: none
`)
	cfg, err := LoadConfiguration(path)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	p := cfg.Publish
	if p.BVID != "BV1xx411c7mD" || !p.Publish || p.SummaryMax != 0 || p.Output != "{{ .Slug }}.txt" {
		t.Errorf("Publish = %+v", p)
	}
	if !strings.Contains(p.Cookie.Value(), "SESSDATA") {
		t.Error("cookie not loaded")
	}
	if len(p.Template) != 2 || p.Template[0] != "[B]Hello" {
		t.Errorf("Template = %v", p.Template)
	}
	variants, legacy := p.EffectiveVariants()
	if legacy || len(variants) != 2 {
		t.Fatalf("variants = %+v legacy %v", variants, legacy)
	}
	specs := variants[0].Offsets
	if len(specs) != 4 || specs[1].Mode() != offsets.ModeAuto || specs[2].Mode() != offsets.ModeSkip || specs[3].Seconds() != -30 {
		t.Errorf("offsets = %v", specs)
	}
	if cfg.Platform.Timeout != 5*time.Second || cfg.Platform.APIBase == "" {
		t.Errorf("Platform = %+v", cfg.Platform)
	}
	if cfg.Logging.ConsoleLogger.Level != "debug" {
		t.Errorf("console level = %q", cfg.Logging.ConsoleLogger.Level)
	}
}

func TestLoadConfiguration_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "version: 1\npublish:\n  bvid: x\n  invalid indent\n"},
		{"unknown field", "version: 1\nunknown_field: value\n"},
		{"bad version", "version: 2\n"},
		{"bad bvid", "version: 1\npublish:\n  bvid: av170001\n"},
		{"two wildcards", "version: 1\npublish:\n  variants:\n    - key: \"\"\n    - key: \"\"\n"},
		{"duplicate ids", "version: 1\npublish:\n  variants:\n    - {id: a, key: x}\n    - {id: a, key: y}\n"},
		{"implicit id clash", "version: 1\npublish:\n  variants:\n    - {key: x}\n    - {id: \"0\", key: y}\n"},
		{"bad offset", "version: 1\npublish:\n  offsets: [[1]]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadConfiguration(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := LoadConfiguration("/nonexistent/config.yaml"); err == nil {
		t.Error("Expected error for nonexistent file")
	}
}

func TestLegacyOffsets(t *testing.T) {
	cfg, err := LoadConfiguration(writeConfig(t, `version: 1
publish:
  offsets: [0, auto]
  danmakuOffsets: [10]
`))
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	variants, legacy := cfg.Publish.EffectiveVariants()
	if !legacy || len(variants) != 2 {
		t.Fatalf("variants = %+v legacy %v", variants, legacy)
	}
	if variants[0].Key != "弹幕" || variants[0].Marker != "弹" || len(variants[0].Offsets) != 1 {
		t.Errorf("danmaku variant = %+v", variants[0])
	}
	if !variants[1].Wildcard() || len(variants[1].Offsets) != 2 {
		t.Errorf("clean variant = %+v", variants[1])
	}

	cfg.Publish.DanmakuOffsets = nil
	if variants, _ := cfg.Publish.EffectiveVariants(); len(variants) != 1 {
		t.Errorf("without danmaku offsets = %+v", variants)
	}
}

func TestLoadConfiguration_WithOptions(t *testing.T) {
	option := func(opts *gencfg.ProcessingOptions) {}
	if _, err := LoadConfiguration("", option); err != nil {
		t.Fatalf("LoadConfiguration() with options error = %v", err)
	}
}

func TestPrepare(t *testing.T) {
	data, err := Prepare()
	if err != nil {
		t.Fatalf("Prepare() error = %v", err)
	}
	if _, err := unmarshalConfig(data, &Config{}, true); err != nil {
		t.Errorf("Prepared config is not valid: %v", err)
	}
}

func TestDump(t *testing.T) {
	cfg, err := LoadConfiguration(writeConfig(t, `version: 1
publish:
  cookie: "SESSDATA=abc; bili_jct=0123456789abcdef0123456789ABCDEF"
  variants:
    - key: 弹幕
      offsets: [15, auto, skip]
`))
	if err != nil {
		t.Fatal(err)
	}
	data, err := Dump(cfg)
	if err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	if strings.Contains(string(data), "SESSDATA") {
		t.Error("cookie leaked into dump")
	}
	if !strings.Contains(string(data), SecretStringValue) {
		t.Error("cookie placeholder missing")
	}

	cfg2, err := unmarshalConfig(data, &Config{}, true)
	if err != nil {
		t.Fatalf("Dumped config cannot be loaded: %v", err)
	}
	got := cfg2.Publish.Variants[0].Offsets
	if len(got) != 3 || got[0].Seconds() != 15 || got[1].Mode() != offsets.ModeAuto || got[2].Mode() != offsets.ModeSkip {
		t.Errorf("offsets after dump = %v", got)
	}
	if cfg2.Platform.Timeout != cfg.Platform.Timeout {
		t.Errorf("timeout after dump = %v", cfg2.Platform.Timeout)
	}
}

func TestUnmarshalConfig_WrapsValidationError(t *testing.T) {
	_, err := unmarshalConfig([]byte("version: 99\n"), &Config{}, true)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	if !strings.Contains(err.Error(), "validat") {
		t.Errorf("expected error to mention validation, got: %v", err)
	}
	if errors.Unwrap(err) == nil {
		t.Errorf("expected wrapped error, got bare error: %v", err)
	}
}

func TestLoadConfiguration_CookieFromEnv(t *testing.T) {
	t.Setenv(CookieEnvVar, "SESSDATA=env; bili_jct=0123456789abcdef0123456789ABCDEF")

	cfg, err := LoadConfiguration("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(cfg.Publish.Cookie.Value(), "SESSDATA=env") {
		t.Errorf("cookie = %q, want value from environment", cfg.Publish.Cookie.Value())
	}

	// configured cookie wins
	cfg, err = LoadConfiguration(writeConfig(t, "version: 1\npublish:\n  cookie: \"SESSDATA=file\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Publish.Cookie.Value() != "SESSDATA=file" {
		t.Errorf("cookie = %q, want value from file", cfg.Publish.Cookie.Value())
	}

	// never expanded into default configuration
	data, err := Prepare()
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "SESSDATA=env") {
		t.Error("cookie leaked into default configuration")
	}
}
