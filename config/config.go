// Package config defines the taskvoice application configuration.
package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"
)

// Config is the top-level taskvoice configuration.
type Config struct {
	Server      ServerConfig      `json:"server" yaml:"server"`
	Dida        DidaConfig        `json:"dida365" yaml:"dida365"`
	SiliconFlow SiliconFlowConfig `json:"silicon_flow" yaml:"silicon_flow"`
	LogLevel    string            `json:"log_level" yaml:"log_level"`

	// path is where Load read the file from; Save writes back to it.
	path string
	mu   sync.Mutex
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Addr     string `json:"addr" yaml:"addr"` // listen address, e.g., ":1005"
	CertFile string `json:"cert_file,omitempty" yaml:"cert_file"`
	KeyFile  string `json:"key_file,omitempty" yaml:"key_file"`
}

// DidaConfig holds credentials and endpoints for the remote task service.
type DidaConfig struct {
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	AuthURL      string `json:"auth_url" yaml:"auth_url"`
	TokenURL     string `json:"token_url" yaml:"token_url"`
	APIBaseURL   string `json:"api_base_url" yaml:"api_base_url"`
	RedirectURI  string `json:"redirect_uri" yaml:"redirect_uri"`
	DBPath       string `json:"db_path" yaml:"db_path"`
	// TimeZone is applied to task payloads that carry a date but no zone.
	TimeZone string `json:"time_zone" yaml:"time_zone"`
}

// SiliconFlowConfig holds credentials and model selection for the
// reasoning / transcription / synthesis service.
type SiliconFlowConfig struct {
	APIToken   string       `json:"api_token" yaml:"api_token"`
	APIBaseURL string       `json:"api_base_url" yaml:"api_base_url"`
	Models     ModelsConfig `json:"models" yaml:"models"`
}

// ModelsConfig selects the models used for each capability.
type ModelsConfig struct {
	LLM string    `json:"llm" yaml:"llm"`
	ASR string    `json:"asr" yaml:"asr"`
	TTS TTSConfig `json:"tts" yaml:"tts"`
}

// TTSConfig selects the synthesis model and speaker.
type TTSConfig struct {
	Model        string `json:"model" yaml:"model"`
	DefaultVoice string `json:"default_voice" yaml:"default_voice"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: ":1005",
		},
		Dida: DidaConfig{
			AuthURL:     "https://dida365.com/oauth/authorize",
			TokenURL:    "https://dida365.com/oauth/token",
			APIBaseURL:  "https://api.dida365.com/open/v1",
			RedirectURI: "http://localhost:8080/callback",
			DBPath:      "taskvoice.db",
			TimeZone:    "Asia/Shanghai",
		},
		SiliconFlow: SiliconFlowConfig{
			APIBaseURL: "https://api.siliconflow.cn/v1",
			Models: ModelsConfig{
				LLM: "Qwen/Qwen2.5-72B-Instruct",
				ASR: "FunAudioLLM/SenseVoiceSmall",
				TTS: TTSConfig{
					Model:        "fishaudio/fish-speech-1.4",
					DefaultVoice: "fishaudio/fish-speech-1.4:alex",
				},
			},
		},
		LogLevel: "info",
	}
}

// Load reads a YAML config file and returns the parsed configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.path = path
	return cfg, nil
}

// LLMModel returns the current reasoning model selection.
func (c *Config) LLMModel() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.SiliconFlow.Models.LLM
}

// SetLLMModel updates the reasoning model selection and persists it.
// The selection is configuration handed to provider clients at construction,
// not state mutated on a shared client.
func (c *Config) SetLLMModel(model string) error {
	c.mu.Lock()
	c.SiliconFlow.Models.LLM = model
	c.mu.Unlock()
	return c.Save()
}

// Save writes the configuration back to the file it was loaded from.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path == "" {
		return fmt.Errorf("config was not loaded from a file")
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(c.path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", c.path, err)
	}
	return nil
}
