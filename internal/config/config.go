package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

type Config struct {
	DataDir      string `json:"data_dir"`
	LogLevel     string `json:"log_level"`
	SelfSentinel string `json:"self_sentinel"`
	Capacity     int    `json:"capacity"`
	Send         struct {
		MaxAttempts    int     `json:"max_attempts"`
		InitialDelayMS int     `json:"initial_delay_ms"`
		Multiplier     float64 `json:"multiplier"`
		MaxDelayMS     int     `json:"max_delay_ms"`
		MaxConcurrent  int     `json:"max_concurrent"`
		RatePerSecond  float64 `json:"rate_per_second"`
	} `json:"send"`
	LLM struct {
		Provider         string  `json:"provider"`
		BaseURL          string  `json:"base_url"`
		APIKey           string  `json:"api_key"`
		Model            string  `json:"model"`
		MaxTokens        int     `json:"max_tokens"`
		Temperature      float32 `json:"temperature"`
		MaxContextTokens int     `json:"max_context_tokens"`
		OutputReserve    int     `json:"output_reserve"`
	} `json:"llm"`
	Telegram struct {
		Token string `json:"token"`
	} `json:"telegram"`
	HTTP struct {
		Enabled bool   `json:"enabled"`
		Listen  string `json:"listen"`
	} `json:"http"`
	Mirror struct {
		Enabled  bool   `json:"enabled"`
		Schedule string `json:"schedule"`
		Dir      string `json:"dir"`
	} `json:"mirror"`
}

func Load(path string) (*Config, error) {
	cfg := &Config{
		DataDir:      filepath.Join(os.Getenv("HOME"), ".notifyr"),
		LogLevel:     "info",
		SelfSentinel: "You",
		Capacity:     500,
	}
	cfg.Send.MaxAttempts = 3
	cfg.Send.InitialDelayMS = 1000
	cfg.Send.Multiplier = 2.0
	cfg.Send.MaxDelayMS = 30000
	cfg.Send.MaxConcurrent = 4
	cfg.Send.RatePerSecond = 1.0
	cfg.LLM.Provider = "openai"
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4o-mini"
	cfg.LLM.MaxTokens = 300
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxContextTokens = 128000
	cfg.LLM.OutputReserve = 1024
	cfg.HTTP.Enabled = true
	cfg.HTTP.Listen = "127.0.0.1:8710"
	cfg.Mirror.Schedule = "@every 1m"

	// Load from file if exists, otherwise write defaults
	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if os.IsNotExist(err) {
		if err := writeDefaults(path, cfg); err != nil {
			return nil, err
		}
	}

	if cfg.Mirror.Dir == "" {
		cfg.Mirror.Dir = filepath.Join(cfg.DataDir, "exports")
	}

	// Override from env (highest precedence)
	if apiKey := os.Getenv("OPENAI_API_KEY"); apiKey != "" {
		cfg.LLM.APIKey = apiKey
	}
	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		cfg.LLM.BaseURL = baseURL
	}
	if tgToken := os.Getenv("TELEGRAM_BOT_TOKEN"); tgToken != "" {
		cfg.Telegram.Token = tgToken
	}
	if listen := os.Getenv("NOTIFYR_HTTP_ADDR"); listen != "" {
		cfg.HTTP.Listen = listen
		cfg.HTTP.Enabled = true
	}

	return cfg, nil
}

func writeDefaults(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	data = append(data, '\n')
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write default config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename default config: %w", err)
	}
	return nil
}
