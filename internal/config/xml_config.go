// Package config provides file-based configuration (XML or YAML) with
// environment overrides.
package config

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/informes/backend/internal/models"
	"gopkg.in/yaml.v3"
)

// DefaultSubmitURL is the report generator used when none is configured.
const DefaultSubmitURL = "https://eco3.onrender.com/generar_informe"

// AppConfig represents the root configuration structure
type AppConfig struct {
	XMLName xml.Name `xml:"InformeService" yaml:"-"`

	Server     ServerConfig     `xml:"Server" yaml:"server"`
	Storage    StorageConfig    `xml:"Storage" yaml:"storage"`
	Remote     RemoteConfig     `xml:"Remote" yaml:"remote"`
	Submission SubmissionConfig `xml:"Submission" yaml:"submission"`
	Processing ProcessingConfig `xml:"Processing" yaml:"processing"`
	Advanced   AdvancedConfig   `xml:"Advanced" yaml:"advanced"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         int    `xml:"Port" yaml:"port"`
	BindAddress  string `xml:"BindAddress" yaml:"bindAddress"`
	EnableCORS   bool   `xml:"EnableCORS" yaml:"enableCors"`
	AllowOrigins string `xml:"AllowOrigins" yaml:"allowOrigins"`
	ReadTimeout  int    `xml:"ReadTimeoutSeconds" yaml:"readTimeoutSeconds"`
	WriteTimeout int    `xml:"WriteTimeoutSeconds" yaml:"writeTimeoutSeconds"`
	IdleTimeout  int    `xml:"IdleTimeoutSeconds" yaml:"idleTimeoutSeconds"`
	BodyLimit    string `xml:"BodyLimit" yaml:"bodyLimit"`
}

// StorageConfig contains file storage settings
type StorageConfig struct {
	DataDirectory    string `xml:"DataDirectory" yaml:"dataDirectory"`
	UploadsDirectory string `xml:"UploadsDirectory" yaml:"uploadsDirectory"`
	ResultsDirectory string `xml:"ResultsDirectory" yaml:"resultsDirectory"`
	HistoryFile      string `xml:"HistoryFile" yaml:"historyFile"`
}

// RemoteConfig describes the report generator endpoints
type RemoteConfig struct {
	SubmitURL string `xml:"SubmitURL" yaml:"submitUrl"`
	// FolderURL is empty until the folder endpoint exists.
	FolderURL      string `xml:"FolderURL" yaml:"folderUrl"`
	TimeoutSeconds int    `xml:"TimeoutSeconds" yaml:"timeoutSeconds"` // 0 = no timeout
	MaxResultMB    int    `xml:"MaxResultMB" yaml:"maxResultMb"`       // 0 = unlimited
}

// SubmissionConfig contains workflow settings
type SubmissionConfig struct {
	DefaultVariant         string `xml:"DefaultVariant" yaml:"defaultVariant"`
	MessageTTLMillis       int    `xml:"MessageTTLMillis" yaml:"messageTtlMillis"`
	FolderMessageTTLMillis int    `xml:"FolderMessageTTLMillis" yaml:"folderMessageTtlMillis"`
	DownloadTTLMinutes     int    `xml:"DownloadTTLMinutes" yaml:"downloadTtlMinutes"`
	RateLimitPerMinute     int    `xml:"RateLimitPerMinute" yaml:"rateLimitPerMinute"`
	RateLimitBurst         int    `xml:"RateLimitBurst" yaml:"rateLimitBurst"`
}

// ProcessingConfig contains session and background job settings
type ProcessingConfig struct {
	MaxSessions            int `xml:"MaxSessions" yaml:"maxSessions"`
	SessionTimeoutMinutes  int `xml:"SessionTimeoutMinutes" yaml:"sessionTimeoutMinutes"`
	CleanupIntervalMinutes int `xml:"CleanupIntervalMinutes" yaml:"cleanupIntervalMinutes"`
	JobMaxAgeMinutes       int `xml:"JobMaxAgeMinutes" yaml:"jobMaxAgeMinutes"`
	HistoryRetentionDays   int `xml:"HistoryRetentionDays" yaml:"historyRetentionDays"`
	WatchDebounceMillis    int `xml:"WatchDebounceMillis" yaml:"watchDebounceMillis"`
}

// AdvancedConfig contains advanced/tuning options
type AdvancedConfig struct {
	LogLevel                string `xml:"LogLevel" yaml:"logLevel"`
	EnableRequestLogging    bool   `xml:"EnableRequestLogging" yaml:"enableRequestLogging"`
	WebSocketMaxMessageSize int    `xml:"WebSocketMaxMessageSizeKB" yaml:"webSocketMaxMessageSizeKb"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Port:         8089,
			BindAddress:  "0.0.0.0",
			EnableCORS:   true,
			AllowOrigins: "*",
			ReadTimeout:  30,
			WriteTimeout: 0,
			IdleTimeout:  120,
			BodyLimit:    "64M",
		},
		Storage: StorageConfig{
			DataDirectory:    "./data",
			UploadsDirectory: "./data/uploads",
			ResultsDirectory: "./data/results",
			HistoryFile:      "./data/history.duckdb",
		},
		Remote: RemoteConfig{
			SubmitURL:      DefaultSubmitURL,
			FolderURL:      "",
			TimeoutSeconds: 0,
			MaxResultMB:    100,
		},
		Submission: SubmissionConfig{
			DefaultVariant:         string(models.VariantSingleFile),
			MessageTTLMillis:       3000,
			FolderMessageTTLMillis: 0,
			DownloadTTLMinutes:     10,
			RateLimitPerMinute:     10,
			RateLimitBurst:         3,
		},
		Processing: ProcessingConfig{
			MaxSessions:            100,
			SessionTimeoutMinutes:  30,
			CleanupIntervalMinutes: 5,
			JobMaxAgeMinutes:       60,
			HistoryRetentionDays:   30,
			WatchDebounceMillis:    500,
		},
		Advanced: AdvancedConfig{
			LogLevel:                "info",
			EnableRequestLogging:    true,
			WebSocketMaxMessageSize: 64,
		},
	}
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadConfig loads configuration from an XML or YAML file. A missing file is
// created with defaults.
func LoadConfig(configPath string) (*AppConfig, error) {
	config := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := config.Save(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if isYAML(configPath) {
			err = yaml.Unmarshal(data, config)
		} else {
			err = xml.Unmarshal(data, config)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	config.applyEnvironmentOverrides()
	config.resolvePaths(filepath.Dir(configPath))

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Save saves the configuration, as YAML when the extension says so.
func (c *AppConfig) Save(configPath string) error {
	var content []byte
	if isYAML(configPath) {
		out, err := yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		content = append([]byte("# Informe service configuration\n# This file is auto-generated on first run\n\n"), out...)
	} else {
		out, err := xml.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		header := []byte(xml.Header + "\n<!-- Informe service configuration -->\n<!-- This file is auto-generated on first run -->\n\n")
		content = append(header, out...)
	}

	if dir := filepath.Dir(configPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// applyEnvironmentOverrides allows environment variables to override config values
func (c *AppConfig) applyEnvironmentOverrides() {
	if port := os.Getenv("PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		c.SetDataDirectory(dataDir)
	}

	if u := os.Getenv("INFORME_SUBMIT_URL"); u != "" {
		c.Remote.SubmitURL = u
	}

	if u, ok := os.LookupEnv("INFORME_FOLDER_URL"); ok {
		c.Remote.FolderURL = u
	}

	if v := os.Getenv("INFORME_VARIANT"); v != "" {
		c.Submission.DefaultVariant = v
	}

	if lvl := os.Getenv("INFORME_LOG_LEVEL"); lvl != "" {
		c.Advanced.LogLevel = lvl
	}
}

// SetDataDirectory moves the data directory and every path derived from it.
func (c *AppConfig) SetDataDirectory(dir string) {
	c.Storage.DataDirectory = dir
	c.Storage.UploadsDirectory = filepath.Join(dir, "uploads")
	c.Storage.ResultsDirectory = filepath.Join(dir, "results")
	c.Storage.HistoryFile = filepath.Join(dir, "history.duckdb")
}

// resolvePaths converts relative paths to absolute based on config file location
func (c *AppConfig) resolvePaths(configDir string) {
	for _, p := range []*string{
		&c.Storage.DataDirectory,
		&c.Storage.UploadsDirectory,
		&c.Storage.ResultsDirectory,
		&c.Storage.HistoryFile,
	} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(configDir, *p)
		}
	}
}

// Validate rejects settings the service cannot run with.
func (c *AppConfig) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	if _, err := models.ParseVariant(c.Submission.DefaultVariant); err != nil {
		return fmt.Errorf("invalid default variant: %w", err)
	}
	if err := checkURL(c.Remote.SubmitURL); err != nil {
		return fmt.Errorf("invalid submit URL: %w", err)
	}
	if c.Remote.FolderURL != "" {
		if err := checkURL(c.Remote.FolderURL); err != nil {
			return fmt.Errorf("invalid folder URL: %w", err)
		}
	}
	if c.Remote.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	return nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%q is not an http(s) URL", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("%q has no host", raw)
	}
	return nil
}

// DefaultVariant returns the variant of sessions created without one.
func (c *AppConfig) DefaultVariant() models.Variant {
	v, err := models.ParseVariant(c.Submission.DefaultVariant)
	if err != nil {
		return models.VariantSingleFile
	}
	return v
}

// MessageTTL returns how long status messages stay visible for a variant.
func (c *AppConfig) MessageTTL(v models.Variant) time.Duration {
	if v == models.VariantFolder {
		return time.Duration(c.Submission.FolderMessageTTLMillis) * time.Millisecond
	}
	return time.Duration(c.Submission.MessageTTLMillis) * time.Millisecond
}

// RemoteTimeout returns the outbound request timeout; 0 means none.
func (c *AppConfig) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutSeconds) * time.Second
}

// MaxResultBytes caps the processed document size; 0 means unlimited.
func (c *AppConfig) MaxResultBytes() int64 {
	return int64(c.Remote.MaxResultMB) << 20
}

// DownloadTTL returns how long an unfetched result link stays valid.
func (c *AppConfig) DownloadTTL() time.Duration {
	return time.Duration(c.Submission.DownloadTTLMinutes) * time.Minute
}

// SessionTimeout returns the idle age after which sessions are cleaned up.
func (c *AppConfig) SessionTimeout() time.Duration {
	return time.Duration(c.Processing.SessionTimeoutMinutes) * time.Minute
}

// CleanupInterval returns the period of the background cleanup ticker.
func (c *AppConfig) CleanupInterval() time.Duration {
	if c.Processing.CleanupIntervalMinutes <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Processing.CleanupIntervalMinutes) * time.Minute
}

// JobMaxAge returns how long finished upload jobs are kept.
func (c *AppConfig) JobMaxAge() time.Duration {
	return time.Duration(c.Processing.JobMaxAgeMinutes) * time.Minute
}

// HistoryRetention returns how long history rows are kept; 0 keeps them forever.
func (c *AppConfig) HistoryRetention() time.Duration {
	return time.Duration(c.Processing.HistoryRetentionDays) * 24 * time.Hour
}

// WatchDebounce returns how long a dropped file must be quiet before staging.
func (c *AppConfig) WatchDebounce() time.Duration {
	return time.Duration(c.Processing.WatchDebounceMillis) * time.Millisecond
}

// GetServerAddr returns the server bind address
func (c *AppConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.Port)
}

// EnsureDirectories creates all necessary directories
func (c *AppConfig) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDirectory,
		c.Storage.UploadsDirectory,
		c.Storage.ResultsDirectory,
		filepath.Dir(c.Storage.HistoryFile),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}
