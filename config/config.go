package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jaki95/podsplit/internal/downloader"
)

type Config struct {
	LogLevel  int    `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // "text" or "json"

	DownloaderPath string `yaml:"downloader_path"`
	FFmpegPath     string `yaml:"ffmpeg_path"`

	// OutputFormat overrides the segment extension. Empty keeps the
	// downloaded codec.
	OutputFormat  string `yaml:"output_format"`
	CaptionLang   string `yaml:"caption_lang"`
	CaptionFormat string `yaml:"caption_format"`
	// AutoCaptions falls back to generated captions when none were uploaded.
	AutoCaptions  bool   `yaml:"auto_captions"`
	MaxWorkers    int    `yaml:"max_workers"`

	PreferredFormat downloader.Preference `yaml:"preferred_format"`

	// WorkDir holds the downloaded media and caption files.
	WorkDir string `yaml:"work_dir"`

	Timeouts TimeoutConfig `yaml:"timeouts"`
}

// TimeoutConfig bounds each external tool invocation. Unset fields take the
// default; a negative duration disables the limit.
type TimeoutConfig struct {
	Metadata time.Duration `yaml:"metadata"`
	Download time.Duration `yaml:"download"`
	Captions time.Duration `yaml:"captions"`
	Extract  time.Duration `yaml:"extract"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// Load reads the YAML file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Default(), nil
		}
		return nil, err
	}

	var config *Config

	// Unmarshal the YAML data into the struct
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, err
	}
	if config == nil {
		config = &Config{}
	}

	config.setDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) setDefaults() {
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	if c.DownloaderPath == "" {
		c.DownloaderPath = "yt-dlp"
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.CaptionLang == "" {
		c.CaptionLang = "en"
	}
	if c.CaptionFormat == "" {
		c.CaptionFormat = "vtt"
	}
	if c.MaxWorkers == 0 {
		c.MaxWorkers = 1
	}
	if c.PreferredFormat == (downloader.Preference{}) {
		c.PreferredFormat = downloader.Preference{Note: "tiny", Codec: "opus"}
	}
	if c.WorkDir == "" {
		c.WorkDir = "."
	}
	defaultDuration(&c.Timeouts.Metadata, 2*time.Minute)
	defaultDuration(&c.Timeouts.Download, 2*time.Hour)
	defaultDuration(&c.Timeouts.Captions, 5*time.Minute)
	defaultDuration(&c.Timeouts.Extract, 30*time.Minute)
}

func defaultDuration(d *time.Duration, def time.Duration) {
	if *d == 0 {
		*d = def
	}
}

// Validate reports settings that cannot work.
func (c *Config) Validate() error {
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log_format %q: must be text or json", c.LogFormat)
	}
	if c.MaxWorkers < 1 || c.MaxWorkers > 16 {
		return fmt.Errorf("invalid max_workers %d: must be between 1 and 16", c.MaxWorkers)
	}
	return nil
}
