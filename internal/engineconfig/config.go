// Package engineconfig loads and validates the crawl engine's configuration
// surface (spec §6.3), generalizing the teacher's internal/core/config.go
// viper wiring from a single JS-crawl profile to the full Atlas option set.
package engineconfig

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// RenderMode selects the Fetch+Render capability level (§4.4).
type RenderMode string

const (
	RenderRaw       RenderMode = "raw"
	RenderPrerender RenderMode = "prerender"
	RenderFull      RenderMode = "full"
)

// ReplayTier controls which capability tokens the archive advertises.
type ReplayTier string

const (
	ReplayHTML    ReplayTier = "html"
	ReplayHTMLCSS ReplayTier = "html+css"
	ReplayFull    ReplayTier = "full"
)

// ParamPolicy controls how discovery handles query parameters.
type ParamPolicy string

const (
	ParamKeep   ParamPolicy = "keep"
	ParamSample ParamPolicy = "sample"
	ParamStrip  ParamPolicy = "strip"
)

// RenderConfig is the render.* option group.
type RenderConfig struct {
	Mode            RenderMode `mapstructure:"mode"`
	Concurrency     int        `mapstructure:"concurrency"`
	TimeoutMs       int        `mapstructure:"timeout_ms"`
	MaxBytesPerPage int64      `mapstructure:"max_bytes_per_page"`
}

// ReplayConfig is the replay.* option group.
type ReplayConfig struct {
	Tier ReplayTier `mapstructure:"tier"`
}

// HTTPConfig is the http.* option group.
type HTTPConfig struct {
	RPS          float64 `mapstructure:"rps"`
	PerHostRPS   float64 `mapstructure:"per_host_rps"`
	UserAgent    string  `mapstructure:"user_agent"`
}

// DiscoveryConfig is the discovery.* option group.
type DiscoveryConfig struct {
	FollowExternal bool        `mapstructure:"follow_external"`
	ParamPolicy    ParamPolicy `mapstructure:"param_policy"`
	BlockList      []string    `mapstructure:"block_list"`
	AllowURLs      []string    `mapstructure:"allow_urls"`
	DenyURLs       []string    `mapstructure:"deny_urls"`
}

// RobotsConfig is the robots.* option group.
type RobotsConfig struct {
	Respect      bool `mapstructure:"respect"`
	OverrideUsed bool `mapstructure:"override_used"`
}

// PrivacyConfig is the privacy.* option group — all default true (§6.3).
type PrivacyConfig struct {
	StripCookies      bool `mapstructure:"strip_cookies"`
	StripAuthHeaders  bool `mapstructure:"strip_auth_headers"`
	RedactInputValues bool `mapstructure:"redact_input_values"`
	RedactForms       bool `mapstructure:"redact_forms"`
}

// CheckpointConfig is the checkpoint.* option group.
type CheckpointConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	Interval     int  `mapstructure:"interval"`
	EverySeconds int  `mapstructure:"every_seconds"`
}

// ResumeConfig is the resume.* option group.
type ResumeConfig struct {
	StagingDir string `mapstructure:"staging_dir"`
}

// LoggingConfig, generalized unchanged from the teacher.
type LoggingConfig struct {
	Level    string         `mapstructure:"level"`
	LogDir   string         `mapstructure:"log_dir"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

type RotationConfig struct {
	MaxSize    int  `mapstructure:"max_size"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAge     int  `mapstructure:"max_age"`
	Compress   bool `mapstructure:"compress"`
}

// Config is the full crawl configuration surface (§6.3).
type Config struct {
	Seeds      []string         `mapstructure:"seeds"`
	OutAtlas   string           `mapstructure:"out_atls"`
	Render     RenderConfig     `mapstructure:"render"`
	Replay     ReplayConfig     `mapstructure:"replay"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Discovery  DiscoveryConfig  `mapstructure:"discovery"`
	Robots     RobotsConfig     `mapstructure:"robots"`
	Privacy    PrivacyConfig    `mapstructure:"privacy"`
	MaxPages   int              `mapstructure:"max_pages"`
	MaxDepth   int              `mapstructure:"max_depth"`
	MaxErrors  int              `mapstructure:"max_errors"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	Resume     ResumeConfig     `mapstructure:"resume"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// Validate enforces the hard constraints from §6.3's option table.
func (c *Config) Validate() error {
	if len(c.Seeds) < 1 {
		return fmt.Errorf("at least one seed URL is required")
	}
	if len(c.OutAtlas) < 5 {
		return fmt.Errorf("outAtls must be at least 5 characters")
	}
	switch c.Render.Mode {
	case RenderRaw, RenderPrerender, RenderFull:
	default:
		return fmt.Errorf("render.mode must be raw, prerender, or full, got %q", c.Render.Mode)
	}
	if c.Render.Concurrency <= 0 {
		return fmt.Errorf("render.concurrency must be > 0")
	}
	switch c.Replay.Tier {
	case ReplayHTML, ReplayHTMLCSS, ReplayFull:
	default:
		return fmt.Errorf("replay.tier must be html, html+css, or full, got %q", c.Replay.Tier)
	}
	if c.MaxDepth < -1 {
		return fmt.Errorf("maxDepth must be >= -1")
	}
	if c.MaxErrors < -1 {
		return fmt.Errorf("maxErrors must be >= -1")
	}
	return nil
}

// Load searches ./configs, ., and $HOME/.atlascrawl for a config file and
// applies defaults — the same shape as the teacher's LoadConfig. It does not
// validate; callers run Validate after applying their own overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".atlascrawl"))
		}
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("render.mode", string(RenderPrerender))
	v.SetDefault("render.concurrency", 4)
	v.SetDefault("render.timeout_ms", 30000)
	v.SetDefault("render.max_bytes_per_page", 50*1024*1024)

	v.SetDefault("replay.tier", string(ReplayHTML))

	v.SetDefault("http.rps", 10.0)
	v.SetDefault("http.per_host_rps", 2.0)
	v.SetDefault("http.user_agent", "AtlasCrawler/1.0")

	v.SetDefault("discovery.follow_external", false)
	v.SetDefault("discovery.param_policy", string(ParamStrip))

	v.SetDefault("robots.respect", true)
	v.SetDefault("robots.override_used", false)

	v.SetDefault("privacy.strip_cookies", true)
	v.SetDefault("privacy.strip_auth_headers", true)
	v.SetDefault("privacy.redact_input_values", true)
	v.SetDefault("privacy.redact_forms", true)

	v.SetDefault("max_pages", 0)
	v.SetDefault("max_depth", -1)
	v.SetDefault("max_errors", -1)

	v.SetDefault("checkpoint.enabled", true)
	v.SetDefault("checkpoint.interval", 500)
	v.SetDefault("checkpoint.every_seconds", 60)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.log_dir", "logs")
	v.SetDefault("logging.rotation.max_size", 10)
	v.SetDefault("logging.rotation.max_backups", 3)
	v.SetDefault("logging.rotation.max_age", 28)
	v.SetDefault("logging.rotation.compress", true)
}
