package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	RasterPdftoppm = "pdftoppm"
	RasterFitz     = "fitz"
)

var DefaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:3001",
	"http://127.0.0.1:3000",
}

// Tools names the external binaries. Each is resolved on PATH at call time.
type Tools struct {
	QPDF        string `validate:"required"`
	Soffice     string `validate:"required"`
	Pdftoppm    string `validate:"required"`
	Tesseract   string `validate:"required"`
	Python      string `validate:"required"`
	Ghostscript string `validate:"required"`
}

// Config is built once in main and handed to every component.
type Config struct {
	Port      string `validate:"required,numeric"`
	UploadDir string `validate:"required"`
	TempDir   string `validate:"required"`

	MaxFileSize int64 `validate:"gt=0"`
	MaxFiles    int   `validate:"gt=0"`

	CORSOrigins []string

	MaxConcurrent      int `validate:"gt=0"`
	RateLimitPerMinute int `validate:"gte=0"`

	ToolTimeout     time.Duration `validate:"gt=0"`
	LongToolTimeout time.Duration `validate:"gt=0"`

	SweepInterval time.Duration `validate:"gt=0"`
	SweepMaxAge   time.Duration `validate:"gt=0"`

	Tools           Tools
	ConverterScript string `validate:"required"`
	RasterBackend   string `validate:"oneof=pdftoppm fitz"`
	RasterDPI       int    `validate:"gt=0,lte=600"`
	OCRLang         string `validate:"required"`

	CompressGhostscript bool
	GSCompat            string
	GSSettings          string

	LogLevel  string
	LogFormat string `validate:"oneof=auto text json"`
}

// Load reads the environment (after godotenv has populated it) and validates
// the result.
func Load() (Config, error) {
	cfg := Config{
		Port:      Get("PORT", "5000"),
		UploadDir: Get("UPLOAD_DIR", "./uploads"),
		TempDir:   Get("TEMP_DIR", "./temp"),

		MaxFileSize: GetInt64("MAX_FILE_SIZE", 50<<20),
		MaxFiles:    GetInt("MAX_FILES", 10),

		CORSOrigins: GetList("CORS_ORIGINS", DefaultCORSOrigins),

		MaxConcurrent:      GetInt("MAX_CONCURRENT_OPERATIONS", 4),
		RateLimitPerMinute: GetInt("RATE_LIMIT_PER_MINUTE", 0),

		ToolTimeout:     GetDuration("TOOL_TIMEOUT", 60*time.Second),
		LongToolTimeout: GetDuration("TOOL_TIMEOUT_LONG", 120*time.Second),

		SweepInterval: GetDuration("SWEEP_INTERVAL", time.Hour),
		SweepMaxAge:   GetDuration("SWEEP_MAX_AGE", time.Hour),

		Tools: Tools{
			QPDF:        Get("QPDF_BIN", "qpdf"),
			Soffice:     Get("SOFFICE_BIN", "soffice"),
			Pdftoppm:    Get("PDFTOPPM_BIN", "pdftoppm"),
			Tesseract:   Get("TESSERACT_BIN", "tesseract"),
			Python:      Get("PYTHON_BIN", "python3"),
			Ghostscript: Get("GS_BIN", "gs"),
		},
		ConverterScript: Get("PDF_CONVERTER_SCRIPT", "scripts/pdf_converter.py"),
		RasterBackend:   strings.ToLower(Get("RASTER_BACKEND", RasterPdftoppm)),
		RasterDPI:       GetInt("RASTER_DPI", 150),
		OCRLang:         Get("OCR_LANG", "eng"),

		CompressGhostscript: GetBool("COMPRESS_GHOSTSCRIPT", false),
		GSCompat:            Get("GS_COMPAT", "1.4"),
		GSSettings:          Get("GS_SETTINGS", "/ebook"),

		LogLevel:  strings.ToLower(Get("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(Get("LOG_FORMAT", "auto")),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting by its environment name.
func (c Config) Validate() error {
	err := validator.New().Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		ve := verrs[0]
		return fmt.Errorf("invalid configuration: %s (%s=%v)", envName(ve.StructNamespace()), ve.Tag(), ve.Value())
	}
	return fmt.Errorf("invalid configuration: %w", err)
}

// EnsureDirs creates the upload and temp directories.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.UploadDir, c.TempDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

var envNames = map[string]string{
	"Config.Port":               "PORT",
	"Config.UploadDir":          "UPLOAD_DIR",
	"Config.TempDir":            "TEMP_DIR",
	"Config.MaxFileSize":        "MAX_FILE_SIZE",
	"Config.MaxFiles":           "MAX_FILES",
	"Config.MaxConcurrent":      "MAX_CONCURRENT_OPERATIONS",
	"Config.RateLimitPerMinute": "RATE_LIMIT_PER_MINUTE",
	"Config.ToolTimeout":        "TOOL_TIMEOUT",
	"Config.LongToolTimeout":    "TOOL_TIMEOUT_LONG",
	"Config.SweepInterval":      "SWEEP_INTERVAL",
	"Config.SweepMaxAge":        "SWEEP_MAX_AGE",
	"Config.ConverterScript":    "PDF_CONVERTER_SCRIPT",
	"Config.RasterBackend":      "RASTER_BACKEND",
	"Config.RasterDPI":          "RASTER_DPI",
	"Config.OCRLang":            "OCR_LANG",
	"Config.LogFormat":          "LOG_FORMAT",
}

func envName(ns string) string {
	if name, ok := envNames[ns]; ok {
		return name
	}
	return ns
}
