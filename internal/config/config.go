// Package config provides YAML-based configuration loading for the intake agent.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration, loaded from config.yaml.
type Config struct {
	Listen     ListenConfig     `yaml:"listen"`
	WhatsApp   WhatsAppConfig   `yaml:"whatsapp"`
	Database   DatabaseConfig   `yaml:"database"`
	Lookup     LookupConfig     `yaml:"lookup"`
	Classifier ClassifierConfig `yaml:"classifier"`
	Session    SessionConfig    `yaml:"session"`
	Collection CollectionConfig `yaml:"collection"`
	Consent    ConsentConfig    `yaml:"consent"`
	Handoff    HandoffConfig    `yaml:"handoff"`
}

// ListenConfig holds the webhook HTTP server settings.
type ListenConfig struct {
	Port int `yaml:"port"`
}

// WhatsAppConfig holds W-API gateway connection settings. Token can be
// supplied via the ATENDE_WAPI_TOKEN environment variable instead.
type WhatsAppConfig struct {
	Host       string `yaml:"host"`
	InstanceID string `yaml:"instance_id"`
	Token      string `yaml:"token"`
}

// DatabaseConfig holds record store connection settings. Password can be
// supplied via ATENDE_DB_PASSWORD.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// LookupConfig holds postal lookup settings.
type LookupConfig struct {
	BaseURL    string `yaml:"base_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

// ClassifierConfig holds text classification service settings. Key can be
// supplied via ATENDE_OPENAI_KEY. An empty key disables the remote
// classifier; deterministic fallbacks are used instead.
type ClassifierConfig struct {
	BaseURL string `yaml:"base_url"`
	Key     string `yaml:"key"`
	Model   string `yaml:"model"`
}

// SessionConfig controls conversation session lifetime.
type SessionConfig struct {
	TimeoutMin  int `yaml:"timeout_min"`
	SweepSec    int `yaml:"sweep_sec"`
	DedupWindow int `yaml:"dedup_window_sec"`
}

// CollectionConfig controls the data-collection pipeline.
type CollectionConfig struct {
	MinAge     int `yaml:"min_age"`
	MaxRetries int `yaml:"max_retries"` // 0 = unlimited
}

// ConsentConfig holds privacy-policy metadata recorded with each decision.
type ConsentConfig struct {
	PolicyVersion string `yaml:"policy_version"`
	PolicyLink    string `yaml:"policy_link"`
}

// HandoffConfig names where completed intakes and disqualifications point.
type HandoffConfig struct {
	OperatorPhone string `yaml:"operator_phone"`
	ContactPhone  string `yaml:"contact_phone"` // shown to disqualified customers
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv reads credentials from the environment when the file leaves
// them blank, so secrets stay out of config.yaml.
func (c *Config) applyEnv() {
	if c.WhatsApp.Token == "" {
		c.WhatsApp.Token = os.Getenv("ATENDE_WAPI_TOKEN")
	}
	if c.Database.Password == "" {
		c.Database.Password = os.Getenv("ATENDE_DB_PASSWORD")
	}
	if c.Classifier.Key == "" {
		c.Classifier.Key = os.Getenv("ATENDE_OPENAI_KEY")
	}
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Listen.Port == 0 {
		c.Listen.Port = 8000
	}
	if c.Database.Host == "" {
		c.Database.Host = "127.0.0.1"
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Database.User == "" {
		c.Database.User = "root"
	}
	if c.Database.Name == "" {
		c.Database.Name = "atende"
	}
	if c.Lookup.BaseURL == "" {
		c.Lookup.BaseURL = "https://viacep.com.br"
	}
	if c.Lookup.TimeoutSec == 0 {
		c.Lookup.TimeoutSec = 10
	}
	if c.Classifier.BaseURL == "" {
		c.Classifier.BaseURL = "https://api.openai.com"
	}
	if c.Classifier.Model == "" {
		c.Classifier.Model = "gpt-4o-mini"
	}
	if c.Session.TimeoutMin == 0 {
		c.Session.TimeoutMin = 30
	}
	if c.Session.SweepSec == 0 {
		c.Session.SweepSec = 60
	}
	if c.Session.DedupWindow == 0 {
		c.Session.DedupWindow = 300
	}
	if c.Collection.MinAge == 0 {
		c.Collection.MinAge = 18
	}
	if c.Consent.PolicyVersion == "" {
		c.Consent.PolicyVersion = "1.0"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.WhatsApp.Host == "" {
		errs = append(errs, "whatsapp.host is required")
	}
	if c.WhatsApp.InstanceID == "" {
		errs = append(errs, "whatsapp.instance_id is required")
	}
	if c.WhatsApp.Token == "" {
		errs = append(errs, "whatsapp.token is required (or ATENDE_WAPI_TOKEN)")
	}
	if c.Session.TimeoutMin < 0 {
		errs = append(errs, "session.timeout_min must not be negative")
	}
	if c.Collection.MaxRetries < 0 {
		errs = append(errs, "collection.max_retries must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SessionTimeout returns the session idle timeout as a duration.
func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.Session.TimeoutMin) * time.Minute
}

// LookupTimeout returns the postal lookup timeout as a duration.
func (c *Config) LookupTimeout() time.Duration {
	return time.Duration(c.Lookup.TimeoutSec) * time.Second
}

// DedupWindow returns the outbound duplicate-suppression window.
func (c *Config) DedupWindow() time.Duration {
	return time.Duration(c.Session.DedupWindow) * time.Second
}
