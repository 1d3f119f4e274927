// Package config loads the YAML configuration file and applies
// environment overrides and defaults.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BackfillLimits bounds one historical backfill run. All values are
// positive; the run terminates on hard caps rather than wall clock.
type BackfillLimits struct {
	MaxChats            int `yaml:"max_chats"`
	PageSize            int `yaml:"page_size"`
	MaxMessagesPerChat  int `yaml:"max_messages_per_chat"`
	MessageBatchSize    int `yaml:"message_batch_size"`
	MaxAttendeesPerChat int `yaml:"max_attendees_per_chat"`
	ChatConcurrency     int `yaml:"chat_concurrency"`
	SettleDelaySeconds  int `yaml:"settle_delay_seconds"`
}

// Config is the full application configuration.
type Config struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`

	// Profile "dev" applies small backfill limits unless explicitly set.
	Profile string `yaml:"profile"`

	// AdminAPIKey guards the /api routes. Empty leaves them open.
	AdminAPIKey string `yaml:"admin_api_key"`

	Database struct {
		Driver string `yaml:"driver"` // sqlite | postgres
		DSN    string `yaml:"dsn"`
	} `yaml:"database"`

	Provider struct {
		BaseURL           string  `yaml:"base_url"`
		APIKey            string  `yaml:"api_key"`
		TokenURL          string  `yaml:"token_url"`
		ClientID          string  `yaml:"client_id"`
		ClientSecret      string  `yaml:"client_secret"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		MaxRetries        int     `yaml:"max_retries"`
	} `yaml:"provider"`

	Dispatch struct {
		SinkURL     string `yaml:"sink_url"`
		MaxRetries  int    `yaml:"max_retries"`
		BaseDelayMS int    `yaml:"base_delay_ms"`
	} `yaml:"dispatch"`

	Cache struct {
		Dir     string `yaml:"dir"`
		BaseURL string `yaml:"base_url"`
	} `yaml:"cache"`

	Backfill BackfillLimits `yaml:"backfill"`
}

// Load reads the config file (optional: a missing path yields pure
// defaults), applies environment overrides, then defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("CHATVAULT_PROFILE"); v != "" {
		cfg.Profile = v
	}
	if v := os.Getenv("CHATVAULT_DB_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("CHATVAULT_DB_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("CHATVAULT_PROVIDER_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("CHATVAULT_PROVIDER_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("CHATVAULT_SINK_URL"); v != "" {
		cfg.Dispatch.SinkURL = v
	}
	if v := os.Getenv("CHATVAULT_ADMIN_KEY"); v != "" {
		cfg.AdminAPIKey = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "chatvault.db"
	}
	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = "attachments"
	}
	if cfg.Cache.BaseURL == "" {
		cfg.Cache.BaseURL = "http://" + cfg.Host + ":" + cfg.Port + "/attachments"
	}
	if cfg.Dispatch.MaxRetries == 0 {
		cfg.Dispatch.MaxRetries = 3
	}
	if cfg.Dispatch.BaseDelayMS == 0 {
		cfg.Dispatch.BaseDelayMS = 500
	}

	defaults := productionLimits()
	if cfg.Profile == "dev" {
		defaults = devLimits()
	}
	b := &cfg.Backfill
	if b.MaxChats <= 0 {
		b.MaxChats = defaults.MaxChats
	}
	if b.PageSize <= 0 {
		b.PageSize = defaults.PageSize
	}
	if b.MaxMessagesPerChat <= 0 {
		b.MaxMessagesPerChat = defaults.MaxMessagesPerChat
	}
	if b.MessageBatchSize <= 0 {
		b.MessageBatchSize = defaults.MessageBatchSize
	}
	if b.MaxAttendeesPerChat <= 0 {
		b.MaxAttendeesPerChat = defaults.MaxAttendeesPerChat
	}
	if b.ChatConcurrency <= 0 {
		b.ChatConcurrency = defaults.ChatConcurrency
	}
	if b.SettleDelaySeconds <= 0 {
		b.SettleDelaySeconds = defaults.SettleDelaySeconds
	}
}

func productionLimits() BackfillLimits {
	return BackfillLimits{
		MaxChats:            500,
		PageSize:            50,
		MaxMessagesPerChat:  1000,
		MessageBatchSize:    100,
		MaxAttendeesPerChat: 100,
		ChatConcurrency:     4,
		SettleDelaySeconds:  10,
	}
}

func devLimits() BackfillLimits {
	return BackfillLimits{
		MaxChats:            10,
		PageSize:            5,
		MaxMessagesPerChat:  20,
		MessageBatchSize:    10,
		MaxAttendeesPerChat: 10,
		ChatConcurrency:     2,
		SettleDelaySeconds:  1,
	}
}
