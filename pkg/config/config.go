package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

const appName = "yatra"

type Config struct {
	StorageDir string        `toml:"storage_dir"`
	Search     SearchConfig  `toml:"search"`
	History    HistoryConfig `toml:"history"`
	Currency   FeedConfig    `toml:"currency"`
	Weather    WeatherConfig `toml:"weather"`
	Voice      VoiceConfig   `toml:"voice"`
	Server     ServerConfig  `toml:"server"`
}

type SearchConfig struct {
	// Provider selects the registered search provider ("catalog" or "http").
	Provider string   `toml:"provider"`
	Endpoint string   `toml:"endpoint,omitempty"`
	Debounce Duration `toml:"debounce"`
	Timeout  Duration `toml:"timeout"`
	Strict   bool     `toml:"strict"`
	Popular  []string `toml:"popular"`
}

type HistoryConfig struct {
	Limit int `toml:"limit"`
	// Recent is how many history entries the browse list shows.
	Recent int `toml:"recent"`
}

type FeedConfig struct {
	APIKey   string   `toml:"api_key,omitempty"`
	TTL      Duration `toml:"ttl"`
	Interval Duration `toml:"interval"`
	Timeout  Duration `toml:"timeout"`
}

type WeatherConfig struct {
	FeedConfig
	Location  string  `toml:"location"`
	Latitude  float64 `toml:"latitude"`
	Longitude float64 `toml:"longitude"`
}

type VoiceConfig struct {
	// Command is an external speech-to-text program printing a transcript on
	// stdout. Empty disables voice input.
	Command  []string `toml:"command,omitempty"`
	Language string   `toml:"language"`
	Timeout  Duration `toml:"timeout"`
}

type ServerConfig struct {
	Listen string `toml:"listen"`
}

type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// DefaultPopular is the curated destination list shown in browse mode.
var DefaultPopular = []string{
	"Kathmandu",
	"Pokhara",
	"Chitwan",
	"Everest Base Camp",
	"Lumbini",
	"Bhaktapur",
	"Annapurna",
}

func GetDefaultConfig() (*Config, error) {
	storageDir, err := GetDefaultStorageDir()
	if err != nil {
		return nil, fmt.Errorf("getting default storage directory: %w", err)
	}
	c := &Config{StorageDir: storageDir}
	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	s := &c.Search
	if s.Provider == "" {
		s.Provider = "catalog"
	}
	if s.Debounce.Duration <= 0 {
		s.Debounce = Duration{300 * time.Millisecond}
	}
	if s.Timeout.Duration <= 0 {
		s.Timeout = Duration{5 * time.Second}
	}
	if s.Popular == nil {
		s.Popular = append([]string(nil), DefaultPopular...)
	}

	if c.History.Limit <= 0 {
		c.History.Limit = 10
	}
	if c.History.Recent <= 0 {
		c.History.Recent = 5
	}

	feedDefaults(&c.Currency, 30*time.Minute)
	feedDefaults(&c.Weather.FeedConfig, 10*time.Minute)
	if c.Weather.Location == "" {
		c.Weather.Location = "Kathmandu, Nepal"
	}
	if c.Weather.Latitude == 0 && c.Weather.Longitude == 0 {
		c.Weather.Latitude, c.Weather.Longitude = 27.7172, 85.3240
	}

	if c.Voice.Language == "" {
		c.Voice.Language = "en-US"
	}
	if c.Voice.Timeout.Duration <= 0 {
		c.Voice.Timeout = Duration{15 * time.Second}
	}

	if c.Server.Listen == "" {
		c.Server.Listen = "localhost:8090"
	}
}

func feedDefaults(f *FeedConfig, ttl time.Duration) {
	if f.TTL.Duration <= 0 {
		f.TTL = Duration{ttl}
	}
	if f.Interval.Duration <= 0 {
		f.Interval = f.TTL
	}
	if f.Timeout.Duration <= 0 {
		f.Timeout = Duration{5 * time.Second}
	}
}

// Validate checks values the defaults cannot repair.
func (c *Config) Validate() error {
	switch c.Search.Provider {
	case "http":
		if c.Search.Endpoint == "" {
			return fmt.Errorf("search.endpoint is required for the http provider")
		}
	case "catalog":
	default:
		return fmt.Errorf("unknown search provider %q", c.Search.Provider)
	}
	if c.Search.Debounce.Duration >= c.Search.Timeout.Duration {
		return fmt.Errorf("search.debounce (%s) must be shorter than search.timeout (%s)",
			c.Search.Debounce, c.Search.Timeout)
	}
	if c.History.Recent > c.History.Limit {
		return fmt.Errorf("history.recent (%d) exceeds history.limit (%d)", c.History.Recent, c.History.Limit)
	}
	return nil
}

// LoadConfig reads configPath, returning defaults when the file does not exist.
func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if config.StorageDir == "" {
		storageDir, err := GetDefaultStorageDir()
		if err != nil {
			return nil, fmt.Errorf("getting default storage directory: %w", err)
		}
		config.StorageDir = storageDir
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configPath, err)
	}
	return &config, nil
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// SaveTemplateConfig writes the commented sample configuration.
func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	storageDir := c.StorageDir
	if storageDir == "" {
		var err error
		if storageDir, err = GetDefaultStorageDir(); err != nil {
			return fmt.Errorf("getting default storage directory: %w", err)
		}
	}
	template := strings.Replace(configTemplate, "/home/user/.local/share/yatra", storageDir, 1)
	return os.WriteFile(configPath, []byte(template), 0644)
}

// HistoryDBPath is the sqlite database holding search history.
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.StorageDir, "history.db")
}

// GetDefaultStorageDir returns $XDG_DATA_HOME/yatra, creating it if needed.
func GetDefaultStorageDir() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	dir := filepath.Join(dataDir, appName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating storage directory %s: %w", dir, err)
	}
	return dir, nil
}

// GetConfigDir returns $XDG_CONFIG_HOME/yatra, creating it if needed.
func GetConfigDir() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	dir := filepath.Join(configDir, appName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return dir, nil
}

func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
