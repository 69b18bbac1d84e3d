package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const FileName = "qaworkbench.yml"

// Config models qaworkbench.yml.
type Config struct {
	Validator     string `yaml:"validator"`
	ChecklistsDir string `yaml:"checklists_dir"`
	Log           struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`
	Automation struct {
		Workers int `yaml:"workers"`
	} `yaml:"automation"`
	Servers []Server `yaml:"servers"`
	Mailer  Mailer   `yaml:"mailer"`
	Poster  struct {
		Endpoint string `yaml:"endpoint"`
		Token    string `yaml:"token"`
	} `yaml:"poster"`
	Catalog struct {
		CacheSize      int `yaml:"cache_size"`
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"catalog"`
}

type Server struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type Mailer struct {
	Sender     string   `yaml:"sender"`
	Password   string   `yaml:"password"`
	Recipients []string `yaml:"recipients"`
	Host       string   `yaml:"host"`
	Port       int      `yaml:"port"`
	Security   string   `yaml:"security"`
}

var logLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.ChecklistsDir == "" {
		return fmt.Errorf("config.checklists_dir is required")
	}
	if !logLevels[strings.ToLower(c.Log.Level)] {
		return fmt.Errorf("config.log.level must be one of debug, info, warn, error")
	}
	if c.Automation.Workers < 1 {
		return fmt.Errorf("config.automation.workers must be at least 1")
	}
	for i, s := range c.Servers {
		if s.Name == "" || s.URL == "" {
			return fmt.Errorf("config.servers[%d] needs a name and url", i)
		}
	}
	switch c.Mailer.Security {
	case "starttls", "ssl", "none":
	default:
		return fmt.Errorf("config.mailer.security must be starttls, ssl or none")
	}
	if c.Mailer.Port <= 0 || c.Mailer.Port > 65535 {
		return fmt.Errorf("config.mailer.port out of range")
	}
	if c.Catalog.CacheSize < 1 {
		return fmt.Errorf("config.catalog.cache_size must be at least 1")
	}
	if c.Catalog.TimeoutSeconds < 1 {
		return fmt.Errorf("config.catalog.timeout_seconds must be at least 1")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// LibraryDir resolves checklists_dir against the workspace.
func (c *Config) LibraryDir(workspace string) string {
	if filepath.IsAbs(c.ChecklistsDir) {
		return c.ChecklistsDir
	}
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, c.ChecklistsDir)
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with qawb init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	cfg, err := Load(workspace)
	if err != nil {
		if _, statErr := os.Stat(Path(workspace)); os.IsNotExist(statErr) {
			return Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing
// from data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `validator: ""
checklists_dir: checklists

log:
  level: info
  development: false

automation:
  workers: 4

servers: []

mailer:
  sender: ""
  password: ""
  recipients: []
  host: smtp.gmail.com
  port: 587
  security: starttls

poster:
  endpoint: ""
  token: ""

catalog:
  cache_size: 32
  timeout_seconds: 10
`
