package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "5000" {
		t.Errorf("Port = %q, want 5000", cfg.Port)
	}
	if cfg.MaxFileSize != 50<<20 {
		t.Errorf("MaxFileSize = %d, want %d", cfg.MaxFileSize, 50<<20)
	}
	if cfg.MaxFiles != 10 {
		t.Errorf("MaxFiles = %d, want 10", cfg.MaxFiles)
	}
	if cfg.SweepInterval != time.Hour || cfg.SweepMaxAge != time.Hour {
		t.Errorf("sweep = %v/%v, want 1h/1h", cfg.SweepInterval, cfg.SweepMaxAge)
	}
	if len(cfg.CORSOrigins) != 3 {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.Tools.QPDF != "qpdf" || cfg.Tools.Python != "python3" {
		t.Errorf("unexpected tools: %+v", cfg.Tools)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("MAX_FILES", "3")
	t.Setenv("TOOL_TIMEOUT", "5")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("RASTER_BACKEND", "FITZ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Port != "8080" || cfg.MaxFiles != 3 {
		t.Errorf("got port=%s maxFiles=%d", cfg.Port, cfg.MaxFiles)
	}
	if cfg.ToolTimeout != 5*time.Second {
		t.Errorf("ToolTimeout = %v, want 5s", cfg.ToolTimeout)
	}
	if strings.Join(cfg.CORSOrigins, "|") != "https://a.example|https://b.example" {
		t.Errorf("CORSOrigins = %v", cfg.CORSOrigins)
	}
	if cfg.RasterBackend != RasterFitz {
		t.Errorf("RasterBackend = %q", cfg.RasterBackend)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
		want string
	}{
		{"raster backend", "RASTER_BACKEND", "imagemagick", "RASTER_BACKEND"},
		{"port", "PORT", "http", "PORT"},
		{"max files", "MAX_FILES", "0", "MAX_FILES"},
		{"log format", "LOG_FORMAT", "xml", "LOG_FORMAT"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not name %s", err, tt.want)
			}
		})
	}
}

func TestGetFileFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("  /opt/qpdf \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("QPDF_BIN_FILE", path)
	if got := Get("QPDF_BIN", "qpdf"); got != "/opt/qpdf" {
		t.Errorf("Get() = %q, want /opt/qpdf", got)
	}
}

func TestGetDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"", 7 * time.Second},
		{"90s", 90 * time.Second},
		{"2m", 2 * time.Minute},
		{"30", 30 * time.Second},
		{"soon", 7 * time.Second},
	}
	for _, c := range cases {
		t.Setenv("NIXPDF_TEST_DURATION", c.in)
		if got := GetDuration("NIXPDF_TEST_DURATION", 7*time.Second); got != c.want {
			t.Errorf("GetDuration(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestGetBool(t *testing.T) {
	cases := []struct {
		in   string
		want bool
	}{
		{"true", true},
		{"YES", true},
		{"1", true},
		{"no", false},
		{"0", false},
		{"maybe", true},
	}
	for _, c := range cases {
		t.Setenv("NIXPDF_TEST_BOOL", c.in)
		if got := GetBool("NIXPDF_TEST_BOOL", true); got != c.want {
			t.Errorf("GetBool(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestEnsureDirs(t *testing.T) {
	base := t.TempDir()
	cfg := Config{UploadDir: filepath.Join(base, "up"), TempDir: filepath.Join(base, "tmp", "nested")}
	if err := cfg.EnsureDirs(); err != nil {
		t.Fatal(err)
	}
	for _, dir := range []string{cfg.UploadDir, cfg.TempDir} {
		if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			t.Errorf("%s not created: %v", dir, err)
		}
	}
}
