package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
		TLS     struct {
			CertFile string `yaml:"cert_file"`
			KeyFile  string `yaml:"key_file"`
		} `yaml:"tls"`
	} `yaml:"server"`
	Storage struct {
		DBPath string `yaml:"db_path"`
	} `yaml:"storage"`
	Auth struct {
		// GateURL is the base URL of the external identity provider.
		GateURL string `yaml:"gate_url"`
		// CacheTTLSeconds bounds how long a resolved token is trusted
		// without re-asking the gate.
		CacheTTLSeconds int `yaml:"cache_ttl_seconds"`
		APIKeys         struct {
			Backend  []string `yaml:"backend"`
			Frontend []string `yaml:"frontend"`
			Admin    []string `yaml:"admin"`
		} `yaml:"api_keys"`
	} `yaml:"auth"`
	Security struct {
		CORS struct {
			AllowedOrigins []string `yaml:"allowed_origins"`
		} `yaml:"cors"`
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
		IPWhitelist []string `yaml:"ip_whitelist"`
	} `yaml:"security"`
	Responder struct {
		// Provider selects the AI responder backend; "genai" is the only
		// real provider, anything else disables /talk.
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		// APIKey may also come from SMARTSCRIBE_GENAI_API_KEY.
		APIKey string `yaml:"api_key"`
		// HistoryLimit caps how many recent messages feed the prompt.
		HistoryLimit int `yaml:"history_limit"`
		// MaxContextBytes caps the transcript context attached to a prompt.
		MaxContextBytes int `yaml:"max_context_bytes"`
	} `yaml:"responder"`
	Transcriber struct {
		// URL is the base URL of the external speech-to-text engine.
		URL            string `yaml:"url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"transcriber"`
	Ingest struct {
		QueueCapacity  int `yaml:"queue_capacity"`
		Workers        int `yaml:"workers"`
		MaxUploadBytes int `yaml:"max_upload_bytes"`
	} `yaml:"ingest"`
	Retention struct {
		Enabled bool `yaml:"enabled"`
		// Schedule is a cron expression evaluated by gronx.
		Schedule string `yaml:"schedule"`
		// PendingMaxAgeSeconds: pending transcripts older than this are
		// flipped to failed by the janitor.
		PendingMaxAgeSeconds int `yaml:"pending_max_age_seconds"`
	} `yaml:"retention"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // text|json
	} `yaml:"logging"`
	Validation struct {
		Required []string `yaml:"required"`
		Types    []struct {
			Path string `yaml:"path"`
			Type string `yaml:"type"` // string|number|boolean|object|array
		} `yaml:"types"`
		MaxLen []struct {
			Path string `yaml:"path"`
			Max  int    `yaml:"max"`
		} `yaml:"max_len"`
	} `yaml:"validation"`
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// Load reads and parses the YAML config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
