package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

// Backends understood by the backend setting.
const (
	BackendSQLite  = "sqlite"
	BackendElastic = "elastic"
)

type Config struct {
	Listen    string `toml:"listen"`
	BasePath  string `toml:"base_path"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	Backend   string `toml:"backend"`
	// EventBuffer is the number of events buffered per stream listener.
	EventBuffer int `toml:"event_buffer"`

	SQLite   SQLiteConfig   `toml:"sqlite"`
	Elastic  ElasticConfig  `toml:"elastic"`
	Services ServicesConfig `toml:"services"`
	NATS     NATSConfig     `toml:"nats"`
	Auth     AuthConfig     `toml:"auth"`
}

type SQLiteConfig struct {
	Path string `toml:"path"`
}

type ElasticConfig struct {
	Addresses []string `toml:"addresses"`
	Username  string   `toml:"username,omitempty"`
	Password  string   `toml:"password,omitempty"`
	Index     string   `toml:"index"`
	// Dialect selects the query DSL. Only "bool" can be served by the
	// store; "legacy" is the filtered/and/or form used when queries are
	// printed or logged.
	Dialect string `toml:"dialect"`
	// CreateIndex creates the index at startup when it's missing.
	CreateIndex bool `toml:"create_index"`
}

// ServicesConfig locates the services the catalog talks to.
type ServicesConfig struct {
	TokenKeyURL       string   `toml:"token_key_url"`
	UserManagementURL string   `toml:"user_management_url"`
	DownloaderURL     string   `toml:"downloader_url"`
	PublisherURL      string   `toml:"publisher_url"`
	Timeout           Duration `toml:"timeout"`
}

// NATSConfig configures notifications. An empty URL disables them.
type NATSConfig struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

type AuthConfig struct {
	// Disabled treats every request as coming from an unscoped admin.
	Disabled   bool     `toml:"disabled"`
	Audience   string   `toml:"audience"`
	AdminScope string   `toml:"admin_scope"`
	Exempt     []string `toml:"exempt"`
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

func GetDefaultConfig() (*Config, error) {
	c := &Config{}
	if err := c.applyDefaults(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadConfig reads configPath, falling back to the defaults when the file
// doesn't exist, and then applies environment overrides.
func LoadConfig(configPath string) (*Config, error) {
	var config Config

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("reading config file: %w", err)
	default:
		if err := toml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("unmarshaling config: %w", err)
		}
	}

	if err := config.ApplyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := config.applyDefaults(); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() error {
	if c.Listen == "" {
		c.Listen = ":5000"
	}
	if c.BasePath == "" {
		c.BasePath = "/rest/datasets"
	}
	c.BasePath = "/" + strings.Trim(c.BasePath, "/")
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 32
	}

	if c.SQLite.Path == "" {
		path, err := GetDefaultDBPath()
		if err != nil {
			return fmt.Errorf("getting default database path: %w", err)
		}
		c.SQLite.Path = path
	}

	if len(c.Elastic.Addresses) == 0 {
		c.Elastic.Addresses = []string{"http://localhost:9200"}
	}
	if c.Elastic.Index == "" {
		c.Elastic.Index = "trustedanalytics-meta"
	}
	if c.Elastic.Dialect == "" {
		c.Elastic.Dialect = "bool"
	}

	if c.Services.UserManagementURL == "" {
		c.Services.UserManagementURL = "http://localhost:9998/rest/orgs/permissions"
	}
	if c.Services.DownloaderURL == "" {
		c.Services.DownloaderURL = "http://localhost:8090"
	}
	if c.Services.PublisherURL == "" {
		c.Services.PublisherURL = "http://localhost:8091"
	}
	if c.Services.Timeout.Duration == 0 {
		c.Services.Timeout = Duration{30 * time.Second}
	}

	if c.NATS.URL != "" && c.NATS.Subject == "" {
		c.NATS.Subject = "datacatalog"
	}

	if c.Auth.Audience == "" {
		c.Auth.Audience = "cloud_controller"
	}
	if c.Auth.AdminScope == "" {
		c.Auth.AdminScope = "console.admin"
	}
	if c.Auth.Exempt == nil {
		c.Auth.Exempt = []string{"/health", "/metrics", "/api/spec"}
	}
	return nil
}

// Validate reports settings that can't work.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendSQLite, BackendElastic:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// ApplyEnv overrides settings from the environment: VCAP_APP_PORT,
// LOG_LEVEL and the Cloud Foundry VCAP_SERVICES document.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if port := getenv("VCAP_APP_PORT"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid VCAP_APP_PORT %q", port)
		}
		c.Listen = ":" + port
	}
	if level := getenv("LOG_LEVEL"); level != "" {
		c.LogLevel = strings.ToLower(level)
	}
	if services := getenv("VCAP_SERVICES"); services != "" {
		if err := c.applyVCAPServices([]byte(services)); err != nil {
			return fmt.Errorf("parsing VCAP_SERVICES: %w", err)
		}
	}
	return nil
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0600)
}

func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	dbPath := c.SQLite.Path
	if dbPath == "" {
		var err error
		dbPath, err = GetDefaultDBPath()
		if err != nil {
			return fmt.Errorf("getting default database path: %w", err)
		}
	}

	template := strings.Replace(configTemplate, "/home/user/.local/share/datacatalog/catalog.db", dbPath, 1)
	return os.WriteFile(configPath, []byte(template), 0644)
}

// GetDefaultStorageDir returns the default storage directory for databases
func GetDefaultStorageDir() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	dir := filepath.Join(dataDir, "datacatalog")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating storage directory %s: %w", dir, err)
	}
	return dir, nil
}

// GetDefaultDBPath returns the default SQLite catalog path
func GetDefaultDBPath() (string, error) {
	storageDir, err := GetDefaultStorageDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(storageDir, "catalog.db"), nil
}

// GetConfigDir returns the configuration directory
func GetConfigDir() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	dir := filepath.Join(configDir, "datacatalog")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", dir, err)
	}
	return dir, nil
}

// GetDefaultConfigPath returns the default configuration file path
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}
