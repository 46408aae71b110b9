package configs

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultChatURL     = "https://us-south.ml.cloud.ibm.com/ml/v1/text/chat?version=2023-05-29"
	DefaultModelID     = "ibm/granite-vision-3-2-2b"
	DefaultMaxTokens   = 900
	DefaultTimeout     = 120 * time.Second
	DefaultWebPort     = 5000
	DefaultMaxFileSize = 10 * 1024 * 1024
)

// Config main configuration
type Config struct {
	Log struct {
		LogFormat string `yaml:"log_format"`
		LogLevel  string `yaml:"log_level"`
		LogDir    string `yaml:"log_dir"`
		LogFile   string `yaml:"log_file"`
	} `yaml:"log"`

	Web struct {
		Port           int      `yaml:"port"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"web"`

	Watsonx  WatsonxConfig  `yaml:"watsonx"`
	Security SecurityConfig `yaml:"security"`

	Database struct {
		URL          string `yaml:"url"` // overridden by DATABASE_URL
		HistoryLimit int    `yaml:"history_limit"`
	} `yaml:"database"`
}

// WatsonxConfig chat endpoint and sampling settings
type WatsonxConfig struct {
	ChatURL     string        `yaml:"chat_url"`
	ModelID     string        `yaml:"model_id"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature float64       `yaml:"temperature"`
	TopP        *float64      `yaml:"top_p"`
	Timeout     time.Duration `yaml:"timeout"`

	// IAMInsecureSkipVerify disables certificate checks toward the identity endpoint.
	IAMInsecureSkipVerify bool `yaml:"iam_insecure_skip_verify"`
	// StripBackslashes removes every backslash from model output. It corrupts
	// regexes, Windows paths and escaped quotes in generated code.
	StripBackslashes bool `yaml:"strip_backslashes"`
}

// TopPOrDefault returns top_p, 1 when unset.
func (w WatsonxConfig) TopPOrDefault() float64 {
	if w.TopP == nil {
		return 1
	}
	return *w.TopP
}

// SecurityConfig upload limits
type SecurityConfig struct {
	MaxFileSize    int64    `yaml:"max_file_size"`   // bytes
	MaxPixels      int64    `yaml:"max_pixels"`      // width*height
	MaxWidth       int      `yaml:"max_width"`       // pixels
	MaxHeight      int      `yaml:"max_height"`      // pixels
	AllowedFormats []string `yaml:"allowed_formats"` // decoder names: png, jpeg, gif, webp, bmp
	EnableDeepScan bool     `yaml:"enable_deep_scan"`
}

// Default returns a configuration with every default filled in.
func Default() *Config {
	config := &Config{}
	config.applyDefaults()
	return config
}

func (c *Config) applyDefaults() {
	if c.Log.LogLevel == "" {
		c.Log.LogLevel = "info"
	}
	if c.Log.LogFormat == "" {
		c.Log.LogFormat = "console"
	}
	if c.Log.LogDir != "" && c.Log.LogFile == "" {
		c.Log.LogFile = "server.log"
	}
	if c.Web.Port == 0 {
		c.Web.Port = DefaultWebPort
	}
	if len(c.Web.AllowedOrigins) == 0 {
		c.Web.AllowedOrigins = []string{"*"}
	}
	if c.Watsonx.ChatURL == "" {
		c.Watsonx.ChatURL = DefaultChatURL
	}
	if c.Watsonx.ModelID == "" {
		c.Watsonx.ModelID = DefaultModelID
	}
	if c.Watsonx.MaxTokens == 0 {
		c.Watsonx.MaxTokens = DefaultMaxTokens
	}
	if c.Watsonx.Timeout == 0 {
		c.Watsonx.Timeout = DefaultTimeout
	}
	if c.Security.MaxFileSize == 0 {
		c.Security.MaxFileSize = DefaultMaxFileSize
	}
	if c.Security.MaxWidth == 0 {
		c.Security.MaxWidth = 8192
	}
	if c.Security.MaxHeight == 0 {
		c.Security.MaxHeight = 8192
	}
	if c.Security.MaxPixels == 0 {
		c.Security.MaxPixels = 40_000_000
	}
	if len(c.Security.AllowedFormats) == 0 {
		c.Security.AllowedFormats = []string{"png", "jpeg", "gif", "webp", "bmp"}
	}
	if c.Database.HistoryLimit == 0 {
		c.Database.HistoryLimit = 50
	}
}

// Validate checks value ranges after defaults are applied.
func (c *Config) Validate() error {
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		return &ConfigError{Field: "web.port", Reason: fmt.Sprintf("out of range: %d", c.Web.Port)}
	}
	if c.Watsonx.MaxTokens < 1 {
		return &ConfigError{Field: "watsonx.max_tokens", Reason: "must be positive"}
	}
	if c.Watsonx.Temperature < 0 || c.Watsonx.Temperature > 2 {
		return &ConfigError{Field: "watsonx.temperature", Reason: "must be within [0, 2]"}
	}
	if p := c.Watsonx.TopPOrDefault(); p <= 0 || p > 1 {
		return &ConfigError{Field: "watsonx.top_p", Reason: "must be within (0, 1]"}
	}
	if !strings.HasPrefix(c.Watsonx.ChatURL, "http://") && !strings.HasPrefix(c.Watsonx.ChatURL, "https://") {
		return &ConfigError{Field: "watsonx.chat_url", Reason: "must be an http(s) URL"}
	}
	if c.Security.MaxFileSize < 0 {
		return &ConfigError{Field: "security.max_file_size", Reason: "must not be negative"}
	}
	return nil
}

// LoadConfig loads .config.yaml, falling back to config.yaml. A missing file
// yields the defaults.
func LoadConfig() (*Config, string, error) {
	path := ".config.yaml"
	if _, err := os.Stat(path); os.IsNotExist(err) {
		path = "config.yaml"
	}
	config, err := LoadConfigFile(path)
	return config, path, err
}

// LoadConfigFile decodes one yaml file.
func LoadConfigFile(path string) (*Config, error) {
	config := &Config{}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
