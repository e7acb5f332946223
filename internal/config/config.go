package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/brelow/eml-archiver/internal/archive"
)

// Config holds the complete runtime configuration. Values come from
// EMLARC_-prefixed environment variables, optionally seeded from a .env file.
type Config struct {
	Server      ServerConfig
	Data        DataConfig
	Consume     ConsumeConfig
	Gotenberg   GotenbergConfig
	Tika        TikaConfig
	Ghostscript GhostscriptConfig
	Convert     ConvertConfig
	Log         LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

// Address returns the host:port the HTTP server binds to.
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DataConfig locates everything the archiver persists: the SQLite database,
// the archived PDFs and their thumbnails.
type DataConfig struct {
	Dir string
}

// DatabasePath returns the SQLite file inside the data directory.
func (d DataConfig) DatabasePath() string {
	return filepath.Join(d.Dir, "documents.db")
}

// ArchiveDir returns the directory archived PDFs are moved into.
func (d DataConfig) ArchiveDir() string {
	return filepath.Join(d.Dir, "archive")
}

// ThumbnailDir returns the directory thumbnails are moved into.
func (d DataConfig) ThumbnailDir() string {
	return filepath.Join(d.Dir, "thumbnails")
}

type ConsumeConfig struct {
	// Dir is watched for new .eml files.
	Dir string
	// Interval is the pause between consume directory sweeps.
	Interval time.Duration
	// Workers bounds how many documents are consumed concurrently.
	Workers int
}

type GotenbergConfig struct {
	URL string
}

type TikaConfig struct {
	URL string
}

type GhostscriptConfig struct {
	Binary string
	// ColorStrategy is passed to ghostscript as the color conversion
	// strategy during PDF/A rewriting, e.g. RGB or UseDeviceIndependentColor.
	ColorStrategy string
}

// ConvertConfig carries the conversion pipeline policy.
type ConvertConfig struct {
	DefaultLayout archive.LayoutPolicy
	DefaultScope  archive.ScopePolicy
	OCR           bool
	Conformance   archive.ConformanceLevel
	// Engine selects the PDF/A converter: ghostscript or gotenberg.
	Engine string
	// Timeout is the ceiling applied to every conversion collaborator call.
	Timeout time.Duration
	// AttachmentWorkers bounds concurrent attachment conversions per message.
	AttachmentWorkers int
}

type LogConfig struct {
	Level       string
	Development bool
	File        string
}

const (
	EngineGhostscript = "ghostscript"
	EngineGotenberg   = "gotenberg"
)

// Load reads the configuration from the environment. When envFile is
// non-empty it must exist; otherwise a .env in the working directory is
// picked up if present.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		// A missing default .env is not an error.
		_ = godotenv.Load()
	}

	viper.SetEnvPrefix("EMLARC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	layout, err := archive.ParseLayoutPolicy(viper.GetString("convert.default_layout"))
	if err != nil {
		return nil, fmt.Errorf("invalid EMLARC_CONVERT_DEFAULT_LAYOUT: %w", err)
	}
	scope, err := archive.ParseScopePolicy(viper.GetString("convert.default_scope"))
	if err != nil {
		return nil, fmt.Errorf("invalid EMLARC_CONVERT_DEFAULT_SCOPE: %w", err)
	}
	conformance, err := archive.ParseConformanceLevel(viper.GetString("convert.conformance"))
	if err != nil {
		return nil, fmt.Errorf("invalid EMLARC_CONVERT_CONFORMANCE: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Data: DataConfig{
			Dir: viper.GetString("data.dir"),
		},
		Consume: ConsumeConfig{
			Dir:      viper.GetString("consume.dir"),
			Interval: viper.GetDuration("consume.interval"),
			Workers:  viper.GetInt("consume.workers"),
		},
		Gotenberg: GotenbergConfig{
			URL: viper.GetString("gotenberg.url"),
		},
		Tika: TikaConfig{
			URL: viper.GetString("tika.url"),
		},
		Ghostscript: GhostscriptConfig{
			Binary:        viper.GetString("ghostscript.binary"),
			ColorStrategy: viper.GetString("ghostscript.color_strategy"),
		},
		Convert: ConvertConfig{
			DefaultLayout:     layout,
			DefaultScope:      scope,
			OCR:               viper.GetBool("convert.ocr"),
			Conformance:       conformance,
			Engine:            strings.ToLower(viper.GetString("convert.engine")),
			Timeout:           viper.GetDuration("convert.timeout"),
			AttachmentWorkers: viper.GetInt("convert.attachment_workers"),
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
			File:        viper.GetString("log.file"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8085)

	viper.SetDefault("data.dir", "./data")

	viper.SetDefault("consume.dir", "./consume")
	viper.SetDefault("consume.interval", "30s")
	viper.SetDefault("consume.workers", 2)

	viper.SetDefault("gotenberg.url", "http://localhost:3000")
	viper.SetDefault("tika.url", "http://localhost:9998")

	viper.SetDefault("ghostscript.binary", "gs")
	viper.SetDefault("ghostscript.color_strategy", "RGB")

	viper.SetDefault("convert.default_layout", "prefer_text_then_html")
	viper.SetDefault("convert.default_scope", "separate")
	viper.SetDefault("convert.ocr", true)
	viper.SetDefault("convert.conformance", "")
	viper.SetDefault("convert.engine", EngineGhostscript)
	viper.SetDefault("convert.timeout", "300s")
	viper.SetDefault("convert.attachment_workers", 4)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("log.file", "")
}

// validate rejects configurations the daemon could not run with. It fails
// fast at startup rather than on the first converted document.
func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Data.Dir == "" {
		return fmt.Errorf("data directory must not be empty")
	}
	if err := checkURL("EMLARC_GOTENBERG_URL", c.Gotenberg.URL); err != nil {
		return err
	}
	if err := checkURL("EMLARC_TIKA_URL", c.Tika.URL); err != nil {
		return err
	}
	if c.Convert.Engine != EngineGhostscript && c.Convert.Engine != EngineGotenberg {
		return fmt.Errorf("unknown PDF/A engine %q (expected %s or %s)", c.Convert.Engine, EngineGhostscript, EngineGotenberg)
	}
	if c.Convert.Engine == EngineGhostscript && c.Ghostscript.Binary == "" {
		return fmt.Errorf("ghostscript binary must not be empty")
	}
	if c.Convert.Timeout <= 0 {
		return fmt.Errorf("convert timeout must be positive, got %s", c.Convert.Timeout)
	}
	if c.Convert.AttachmentWorkers <= 0 {
		return fmt.Errorf("attachment workers must be positive, got %d", c.Convert.AttachmentWorkers)
	}
	if c.Consume.Workers <= 0 {
		return fmt.Errorf("consume workers must be positive, got %d", c.Consume.Workers)
	}
	if c.Consume.Interval <= 0 {
		return fmt.Errorf("consume interval must be positive, got %s", c.Consume.Interval)
	}
	return nil
}

func checkURL(name, value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s must be a valid http(s) URL, got %q", name, value)
	}
	return nil
}

// EnsureDirs creates the data, archive, thumbnail and consume directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Data.Dir, c.Data.ArchiveDir(), c.Data.ThumbnailDir(), c.Consume.Dir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
