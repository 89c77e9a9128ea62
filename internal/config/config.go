package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName  string `mapstructure:"app_name"`
	Env      string `mapstructure:"app_env"`
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`

	OpenCTIURL   string `mapstructure:"opencti_url"`
	OpenCTIToken string `mapstructure:"opencti_token"`

	WaitTimeSeconds     int64         `mapstructure:"wait_time"`
	ErrorBackoffSeconds int64         `mapstructure:"error_backoff_seconds"`
	ReportsPerCycle     int           `mapstructure:"reports_per_cycle"`
	WaitTime            time.Duration `mapstructure:"-"`
	ErrorBackoff        time.Duration `mapstructure:"-"`

	TargetReportTypesRaw string   `mapstructure:"target_report_types"`
	TargetReportTypes    []string `mapstructure:"-"`
	ProcessAllReports    bool     `mapstructure:"process_all_reports"`
	ProcessedLabel       string   `mapstructure:"processed_label"`
	ProcessedLabelColor  string   `mapstructure:"processed_label_color"`
	ProcessAllOnStart    bool     `mapstructure:"process_all_on_start"`
	MaxReportsOnStart    int      `mapstructure:"max_reports_on_start"`

	WkhtmltopdfPath   string        `mapstructure:"wkhtmltopdf_path"`
	PDFTimeoutSeconds int64         `mapstructure:"pdf_timeout_seconds"`
	PDFTimeout        time.Duration `mapstructure:"-"`
	PDFRuntimeDir     string        `mapstructure:"pdf_runtime_dir"`
	PreserveLayout    bool          `mapstructure:"preserve_layout"`
	IncludeImages     bool          `mapstructure:"include_images"`
	ImageQuality      int           `mapstructure:"image_quality"`
	MaxImages         int           `mapstructure:"max_images"`
	AdRemovalStrategy string        `mapstructure:"ad_removal_strategy"`
	TextPDFFallback   bool          `mapstructure:"text_pdf_fallback"`

	WgetPath         string `mapstructure:"wget_path"`
	UserAgent        string `mapstructure:"user_agent"`
	RespectRobotsTxt bool   `mapstructure:"respect_robots_txt"`

	ClassifierCacheTTLSeconds int64         `mapstructure:"classifier_cache_ttl_seconds"`
	ClassifierCacheTTL        time.Duration `mapstructure:"-"`

	PublishersFile string `mapstructure:"publishers_file"`
	SitesFile      string `mapstructure:"sites_file"`

	StorageType            string        `mapstructure:"storage_type"`
	BBoltPath              string        `mapstructure:"bbolt_path"`
	StorageTTLSeconds      int64         `mapstructure:"storage_ttl_seconds"`
	StorageCleanupSeconds  int64         `mapstructure:"storage_cleanup_interval_seconds"`
	StorageTTL             time.Duration `mapstructure:"-"`
	StorageCleanupInterval time.Duration `mapstructure:"-"`
}

const (
	DefaultUserAgent         = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/115.0.0.0 Safari/537.36"
	defaultTargetReportTypes = "external-import,threat-report,rss-feed,rss,rss-report"
)

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	_ = godotenv.Load("configs/.env")

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "report-enhancer")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("debug", false)

	v.SetDefault("opencti_url", "http://localhost:8080")
	v.SetDefault("opencti_token", "")

	v.SetDefault("wait_time", 60) // seconds
	v.SetDefault("error_backoff_seconds", 60)
	v.SetDefault("reports_per_cycle", 20)

	v.SetDefault("target_report_types", defaultTargetReportTypes)
	v.SetDefault("process_all_reports", true)
	v.SetDefault("processed_label", "rss-enhanced")
	v.SetDefault("processed_label_color", "#ff9900")
	v.SetDefault("process_all_on_start", false)
	v.SetDefault("max_reports_on_start", 100)

	v.SetDefault("wkhtmltopdf_path", "/usr/bin/wkhtmltopdf")
	v.SetDefault("pdf_timeout_seconds", 120)
	v.SetDefault("pdf_runtime_dir", "/tmp/runtime-pdf")
	v.SetDefault("preserve_layout", true)
	v.SetDefault("include_images", true)
	v.SetDefault("image_quality", 85)
	v.SetDefault("max_images", 20)
	v.SetDefault("ad_removal_strategy", "auto")
	v.SetDefault("text_pdf_fallback", false)

	v.SetDefault("wget_path", "wget")
	v.SetDefault("user_agent", DefaultUserAgent)
	v.SetDefault("respect_robots_txt", false)
	v.SetDefault("classifier_cache_ttl_seconds", 0)

	v.SetDefault("publishers_file", "")
	v.SetDefault("sites_file", "")

	v.SetDefault("storage_type", "bbolt")
	v.SetDefault("bbolt_path", "./data/reports.db")
	v.SetDefault("storage_ttl_seconds", int64((30*24*time.Hour)/time.Second))
	v.SetDefault("storage_cleanup_interval_seconds", int64((12*time.Hour)/time.Second))
}

// finalize validates raw values and derives durations and lists.
func (cfg *Config) finalize() error {
	if strings.TrimSpace(cfg.OpenCTIURL) == "" {
		return fmt.Errorf("opencti_url is required")
	}
	cfg.OpenCTIURL = strings.TrimRight(strings.TrimSpace(cfg.OpenCTIURL), "/")

	if cfg.WaitTimeSeconds <= 0 {
		return fmt.Errorf("invalid wait_time (must be positive seconds)")
	}
	cfg.WaitTime = time.Duration(cfg.WaitTimeSeconds) * time.Second

	if cfg.ErrorBackoffSeconds <= 0 {
		return fmt.Errorf("invalid error_backoff_seconds (must be positive seconds)")
	}
	cfg.ErrorBackoff = time.Duration(cfg.ErrorBackoffSeconds) * time.Second

	if cfg.ReportsPerCycle <= 0 {
		return fmt.Errorf("invalid reports_per_cycle (must be positive)")
	}

	if cfg.PDFTimeoutSeconds <= 0 {
		return fmt.Errorf("invalid pdf_timeout_seconds (must be positive seconds)")
	}
	cfg.PDFTimeout = time.Duration(cfg.PDFTimeoutSeconds) * time.Second

	if cfg.ImageQuality < 1 || cfg.ImageQuality > 100 {
		return fmt.Errorf("invalid image_quality %d (must be 1-100)", cfg.ImageQuality)
	}
	if cfg.MaxReportsOnStart < 0 {
		return fmt.Errorf("invalid max_reports_on_start (must be zero or positive)")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.AdRemovalStrategy)) {
	case "auto", "extract", "minimal":
		cfg.AdRemovalStrategy = strings.ToLower(strings.TrimSpace(cfg.AdRemovalStrategy))
	default:
		return fmt.Errorf("invalid ad_removal_strategy %q (expected auto, extract or minimal)", cfg.AdRemovalStrategy)
	}

	if cfg.ClassifierCacheTTLSeconds < 0 {
		return fmt.Errorf("invalid classifier_cache_ttl_seconds (must be zero or positive)")
	}
	cfg.ClassifierCacheTTL = time.Duration(cfg.ClassifierCacheTTLSeconds) * time.Second

	if cfg.StorageTTLSeconds <= 0 {
		return fmt.Errorf("invalid storage_ttl_seconds (must be positive seconds)")
	}
	if cfg.StorageCleanupSeconds <= 0 {
		return fmt.Errorf("invalid storage_cleanup_interval_seconds (must be positive seconds)")
	}
	cfg.StorageTTL = time.Duration(cfg.StorageTTLSeconds) * time.Second
	cfg.StorageCleanupInterval = time.Duration(cfg.StorageCleanupSeconds) * time.Second

	cfg.TargetReportTypes = splitList(cfg.TargetReportTypesRaw)
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return nil
}

// splitList turns a comma separated value into a lower-cased, trimmed list.
func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
