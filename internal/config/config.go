package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// PaperSize is a named paper format in inches.
type PaperSize struct {
	Width  float64 `yaml:"width"`
	Height float64 `yaml:"height"`
}

// PostgresConfig points at the optional API token table.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Enabled reports whether a token table is configured at all.
func (p PostgresConfig) Enabled() bool {
	return p.Host != ""
}

// Config is the full service configuration as read from YAML.
type Config struct {
	Server struct {
		Host           string `yaml:"host"`
		Port           string `yaml:"port"`
		Prefork        bool   `yaml:"prefork"`
		BodyLimitMB    int    `yaml:"body_limit_mb"`
		PreviewBaseURL string `yaml:"preview_base_url"`
	} `yaml:"server"`

	Logger struct {
		File       string `yaml:"file"`
		Level      string `yaml:"level"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logger"`

	Limits struct {
		MaxHTMLBytes int `yaml:"max_html_bytes"`
		MaxPDFBytes  int `yaml:"max_pdf_bytes"`
	} `yaml:"limits"`

	Cache struct {
		PDFCacheEnabled bool          `yaml:"pdf_cache_enabled"`
		PDFCacheTTL     time.Duration `yaml:"pdf_cache_ttl"`
		RedisHost       string        `yaml:"redis_host"`
		RateLimitDB     int           `yaml:"redis_rate_db"`
		PDFCacheDB      int           `yaml:"redis_pdf_db"`
	} `yaml:"cache"`

	RateLimiter struct {
		Interval          time.Duration `yaml:"interval"`
		UserLimit         int           `yaml:"user_limit"`
		EnableUserLimiter bool          `yaml:"enable_user_limiter"`
	} `yaml:"rate_limiter"`

	Auth struct {
		APIKey          string         `yaml:"api_key"`
		Header          string         `yaml:"header"`
		Postgres        PostgresConfig `yaml:"postgres"`
		RefreshInterval time.Duration  `yaml:"refresh_interval"`
	} `yaml:"auth"`

	PDF struct {
		ChromePath        string               `yaml:"chrome_path"`
		ChromeNoSandbox   bool                 `yaml:"chrome_no_sandbox"`
		UserDataDir       string               `yaml:"user_data_dir"`
		LaunchTimeoutSecs int                  `yaml:"launch_timeout_secs"`
		TimeoutSecs       int                  `yaml:"timeout_secs"`
		VerifyOutput      bool                 `yaml:"verify_output"`
		PaperSizes        map[string]PaperSize `yaml:"paper_sizes"`
	} `yaml:"pdf"`

	Artifacts struct {
		Dir             string        `yaml:"dir"`
		PreviewTTL      time.Duration `yaml:"preview_ttl"`
		CleanupInterval time.Duration `yaml:"cleanup_interval"`
	} `yaml:"artifacts"`
}

// DefaultPaperSizes mirrors the formats Chrome's print preview knows about.
func DefaultPaperSizes() map[string]PaperSize {
	return map[string]PaperSize{
		"Letter":  {Width: 8.5, Height: 11},
		"Legal":   {Width: 8.5, Height: 14},
		"Tabloid": {Width: 11, Height: 17},
		"Ledger":  {Width: 17, Height: 11},
		"A0":      {Width: 33.1, Height: 46.8},
		"A1":      {Width: 23.4, Height: 33.1},
		"A2":      {Width: 16.54, Height: 23.4},
		"A3":      {Width: 11.7, Height: 16.54},
		"A4":      {Width: 8.27, Height: 11.7},
		"A5":      {Width: 5.83, Height: 8.27},
		"A6":      {Width: 4.13, Height: 5.83},
	}
}

// Default returns a configuration usable without any YAML file.
func Default() Config {
	var cfg Config
	applyDefaults(&cfg)
	return cfg
}

// Load reads the file named by CONFIG_PATH, falling back to ./config.yaml.
// A missing default file is not an error; a missing CONFIG_PATH file is.
func Load() Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		if _, err := os.Stat("config.yaml"); errors.Is(err, os.ErrNotExist) {
			cfg := Default()
			applyEnv(&cfg)
			mustValidate(cfg)
			return cfg
		}
		path = "config.yaml"
	}
	return LoadFrom(path)
}

// LoadFrom parses the YAML file at path. It panics on unreadable files and
// invalid values since the service cannot start in that state.
func LoadFrom(path string) Config {
	raw, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		panic(fmt.Sprintf("config: parse %s: %v", path, err))
	}

	applyDefaults(&cfg)
	applyEnv(&cfg)
	mustValidate(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.Server.BodyLimitMB == 0 {
		cfg.Server.BodyLimitMB = 16
	}
	if cfg.Server.PreviewBaseURL == "" {
		cfg.Server.PreviewBaseURL = "http://127.0.0.1" + cfg.Server.Port
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Limits.MaxPDFBytes == 0 {
		cfg.Limits.MaxPDFBytes = 50 * 1024 * 1024
	}
	if cfg.Cache.PDFCacheTTL == 0 {
		cfg.Cache.PDFCacheTTL = 10 * time.Minute
	}
	if cfg.RateLimiter.Interval == 0 {
		cfg.RateLimiter.Interval = time.Minute
	}
	if cfg.Auth.Header == "" {
		cfg.Auth.Header = "API_KEY"
	}
	if cfg.Auth.RefreshInterval == 0 {
		cfg.Auth.RefreshInterval = time.Minute
	}
	if cfg.PDF.LaunchTimeoutSecs == 0 {
		cfg.PDF.LaunchTimeoutSecs = 30
	}
	if len(cfg.PDF.PaperSizes) == 0 {
		cfg.PDF.PaperSizes = DefaultPaperSizes()
	} else {
		for name, size := range DefaultPaperSizes() {
			if _, ok := cfg.PDF.PaperSizes[name]; !ok {
				cfg.PDF.PaperSizes[name] = size
			}
		}
	}
	if cfg.Artifacts.Dir == "" {
		cfg.Artifacts.Dir = filepath.Join(os.TempDir(), "pdfgen")
	}
	if cfg.Artifacts.CleanupInterval == 0 {
		cfg.Artifacts.CleanupInterval = 10 * time.Minute
	}
}

func applyEnv(cfg *Config) {
	// Common container env var for the browser binary.
	if cfg.PDF.ChromePath == "" {
		if v := os.Getenv("CHROME_BIN"); v != "" {
			cfg.PDF.ChromePath = v
		}
	}
	if v := os.Getenv("API_KEY"); v != "" {
		cfg.Auth.APIKey = v
	}
}

func mustValidate(cfg Config) {
	if err := Validate(cfg); err != nil {
		panic("config: " + err.Error())
	}
}

// Validate checks values that would otherwise fail at first use.
func Validate(cfg Config) error {
	switch {
	case cfg.Limits.MaxHTMLBytes < 0:
		return errors.New("limits.max_html_bytes must not be negative")
	case cfg.Limits.MaxPDFBytes < 0:
		return errors.New("limits.max_pdf_bytes must not be negative")
	case cfg.RateLimiter.Interval < 0:
		return errors.New("rate_limiter.interval must be positive")
	case cfg.RateLimiter.UserLimit < 0:
		return errors.New("rate_limiter.user_limit must not be negative")
	case cfg.PDF.TimeoutSecs < 0:
		return errors.New("pdf.timeout_secs must not be negative")
	case cfg.PDF.LaunchTimeoutSecs < 0:
		return errors.New("pdf.launch_timeout_secs must not be negative")
	case cfg.Artifacts.PreviewTTL < 0:
		return errors.New("artifacts.preview_ttl must not be negative")
	case cfg.Artifacts.CleanupInterval < 0:
		return errors.New("artifacts.cleanup_interval must not be negative")
	}
	for name, size := range cfg.PDF.PaperSizes {
		if size.Width <= 0 || size.Height <= 0 {
			return fmt.Errorf("pdf.paper_sizes.%s must have positive width and height", name)
		}
	}
	return nil
}
