package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/tanq16/parafetch/internal/engine"
	"github.com/tanq16/parafetch/internal/utils"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the download manager.
type Config struct {
	SaveDir          string
	Connections      int
	MaxJobs          int
	MaxScheduled     int
	MultiThreshold   int64
	BufferSize       int64
	ProgressInterval time.Duration
	OnConflict       utils.CollisionPolicy
	HistoryFile      string
	HTTP             utils.HTTPClientConfig
	FTPTimeout       time.Duration
	S3               S3Config
}

type S3Config struct {
	Profile string `yaml:"profile"`
	Region  string `yaml:"region"`
}

func Default() Config {
	return Config{
		SaveDir:          ".",
		Connections:      utils.DefaultWorkers,
		MaxJobs:          10,
		MaxScheduled:     5,
		MultiThreshold:   utils.MultiThreshold,
		BufferSize:       utils.DefaultBufferSize,
		ProgressInterval: 500 * time.Millisecond,
		OnConflict:       utils.CollisionOverwrite,
		HistoryFile:      defaultHistoryFile(),
		HTTP: utils.HTTPClientConfig{
			Timeout:   3 * time.Minute,
			KATimeout: 90 * time.Second,
			Headers:   map[string]string{},
		},
		FTPTimeout: 60 * time.Second,
	}
}

func defaultHistoryFile() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".parafetch-history.yaml"
	}
	return filepath.Join(dir, "parafetch", "history.yaml")
}

// DefaultPath is the config file read when none is given explicitly.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "parafetch", "config.yaml")
}

// yamlConfig mirrors Config with sizes and durations as strings.
type yamlConfig struct {
	SaveDir          string         `yaml:"save_dir"`
	Connections      int            `yaml:"connections"`
	MaxJobs          int            `yaml:"max_jobs"`
	MaxScheduled     int            `yaml:"max_scheduled"`
	MultiThreshold   string         `yaml:"multi_threshold"`
	BufferSize       string         `yaml:"buffer_size"`
	ProgressInterval string         `yaml:"progress_interval"`
	OnConflict       string         `yaml:"on_conflict"`
	HistoryFile      string         `yaml:"history_file"`
	HTTP             yamlHTTPConfig `yaml:"http"`
	FTP              yamlFTPConfig  `yaml:"ftp"`
	S3               S3Config       `yaml:"s3"`
}

type yamlHTTPConfig struct {
	Timeout       string            `yaml:"timeout"`
	KATimeout     string            `yaml:"keep_alive_timeout"`
	Proxy         string            `yaml:"proxy"`
	ProxyUsername string            `yaml:"proxy_username"`
	ProxyPassword string            `yaml:"proxy_password"`
	UserAgent     string            `yaml:"user_agent"`
	Headers       map[string]string `yaml:"headers"`
}

type yamlFTPConfig struct {
	Timeout string `yaml:"timeout"`
}

// LoadFromFile reads a YAML config file on top of Default and validates it.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	if yc.SaveDir != "" {
		cfg.SaveDir = yc.SaveDir
	}
	if yc.Connections != 0 {
		cfg.Connections = yc.Connections
	}
	if yc.MaxJobs != 0 {
		cfg.MaxJobs = yc.MaxJobs
	}
	if yc.MaxScheduled != 0 {
		cfg.MaxScheduled = yc.MaxScheduled
	}
	if err := setBytes(&cfg.MultiThreshold, yc.MultiThreshold, "multi_threshold"); err != nil {
		return Config{}, err
	}
	if err := setBytes(&cfg.BufferSize, yc.BufferSize, "buffer_size"); err != nil {
		return Config{}, err
	}
	if err := setDuration(&cfg.ProgressInterval, yc.ProgressInterval, "progress_interval"); err != nil {
		return Config{}, err
	}
	if yc.OnConflict != "" {
		cfg.OnConflict = utils.CollisionPolicy(yc.OnConflict)
	}
	if yc.HistoryFile != "" {
		cfg.HistoryFile = yc.HistoryFile
	}
	if err := setDuration(&cfg.HTTP.Timeout, yc.HTTP.Timeout, "http.timeout"); err != nil {
		return Config{}, err
	}
	if err := setDuration(&cfg.HTTP.KATimeout, yc.HTTP.KATimeout, "http.keep_alive_timeout"); err != nil {
		return Config{}, err
	}
	cfg.HTTP.ProxyURL = yc.HTTP.Proxy
	cfg.HTTP.ProxyUsername = yc.HTTP.ProxyUsername
	cfg.HTTP.ProxyPassword = yc.HTTP.ProxyPassword
	cfg.HTTP.UserAgent = yc.HTTP.UserAgent
	for k, v := range yc.HTTP.Headers {
		cfg.HTTP.Headers[k] = v
	}
	if err := setDuration(&cfg.FTPTimeout, yc.FTP.Timeout, "ftp.timeout"); err != nil {
		return Config{}, err
	}
	cfg.S3 = yc.S3

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setBytes(dst *int64, value, field string) error {
	if value == "" {
		return nil
	}
	size, err := utils.ParseBytes(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", field, err)
	}
	*dst = size
	return nil
}

func setDuration(dst *time.Duration, value, field string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", field, err)
	}
	*dst = d
	return nil
}

// LoadFromEnv applies PARAFETCH_ environment variables.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("PARAFETCH_SAVE_DIR"); v != "" {
		c.SaveDir = v
	}
	if v := os.Getenv("PARAFETCH_CONNECTIONS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PARAFETCH_CONNECTIONS: %w", err)
		}
		c.Connections = n
	}
	if v := os.Getenv("PARAFETCH_MAX_JOBS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse PARAFETCH_MAX_JOBS: %w", err)
		}
		c.MaxJobs = n
	}
	if v := os.Getenv("PARAFETCH_PROXY"); v != "" {
		c.HTTP.ProxyURL = v
	}
	if v := os.Getenv("PARAFETCH_HISTORY_FILE"); v != "" {
		c.HistoryFile = v
	}
	if v := os.Getenv("PARAFETCH_S3_PROFILE"); v != "" {
		c.S3.Profile = v
	}
	return nil
}

func (c *Config) Validate() error {
	if c.SaveDir == "" {
		return errors.New("config: save_dir is required")
	}
	if c.Connections < 1 || c.Connections > 64 {
		return fmt.Errorf("config: connections must be between 1 and 64, got %d", c.Connections)
	}
	if c.MaxJobs < 1 {
		return errors.New("config: max_jobs must be at least 1")
	}
	if c.MaxScheduled < 1 {
		return errors.New("config: max_scheduled must be at least 1")
	}
	if c.BufferSize < 1 {
		return errors.New("config: buffer_size must be positive")
	}
	if c.MultiThreshold < 0 {
		return errors.New("config: multi_threshold must not be negative")
	}
	if c.ProgressInterval <= 0 {
		return errors.New("config: progress_interval must be positive")
	}
	switch c.OnConflict {
	case utils.CollisionOverwrite, utils.CollisionRename:
	default:
		return fmt.Errorf("config: on_conflict must be %q or %q, got %q", utils.CollisionOverwrite, utils.CollisionRename, c.OnConflict)
	}
	return nil
}

// EngineOptions converts the transfer settings for the engine.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Connections:      c.Connections,
		BufferSize:       int(c.BufferSize),
		MultiThreshold:   c.MultiThreshold,
		ProgressInterval: c.ProgressInterval,
		ElapsedInterval:  time.Second,
	}
}
