package relay

import (
	"fmt"
	"os"

	"github.com/bt-bridge/convai-relay/shared"
	"github.com/goccy/go-yaml"
)

const (
	defaultPort             = 8080
	defaultUpstreamBaseURL  = "https://api.elevenlabs.io"
	defaultMaxPendingFrames = 256
)

// Config carries the full service configuration. Values are loaded from a
// YAML file and then overridden by environment variables where those are set.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Relay    RelayConfig    `yaml:"relay"`
	Call     CallConfig     `yaml:"call"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// PublicURL is the externally reachable base URL of this service, used
	// to build the media stream address handed to the telephony provider.
	PublicURL string `yaml:"public_url"`
}

type UpstreamConfig struct {
	AgentID             string `yaml:"agent_id"`
	APIKey              string `yaml:"api_key"`
	BaseURL             string `yaml:"base_url"`
	EnableTranscription bool   `yaml:"enable_transcription"`
}

type RelayConfig struct {
	// MaxPendingFrames bounds the audio buffered while waiting for the
	// telephony stream token. A call exceeding it is torn down.
	MaxPendingFrames int `yaml:"max_pending_frames"`
}

// CallConfig holds the per-agent conversation overrides returned by the
// initiation webhook.
type CallConfig struct {
	Prompt           string            `yaml:"prompt"`
	FirstMessage     string            `yaml:"first_message"`
	Language         string            `yaml:"language"`
	VoiceID          string            `yaml:"voice_id"`
	DynamicVariables map[string]string `yaml:"dynamic_variables"`
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := new(Config)
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Upstream.AgentID = shared.Getenv("AGENT_ID", c.Upstream.AgentID)
	c.Upstream.APIKey = shared.Getenv("ELEVENLABS_API_KEY", c.Upstream.APIKey)
	c.Upstream.EnableTranscription = shared.GetenvBool("TRANSCRIPT_LOGGING", c.Upstream.EnableTranscription)
	if port := shared.Getenv("PORT", ""); port != "" {
		if _, err := fmt.Sscanf(port, "%d", &c.Server.Port); err != nil {
			c.Server.Port = defaultPort
		}
	}
}

// Validate fills defaults and rejects configurations that cannot open the
// upstream leg.
func (c *Config) Validate() error {
	if c.Upstream.AgentID == "" {
		return shared.ErrNoAgentID
	}
	if c.Upstream.APIKey == "" {
		return shared.ErrNoAPIKey
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Upstream.BaseURL == "" {
		c.Upstream.BaseURL = defaultUpstreamBaseURL
	}
	if c.Relay.MaxPendingFrames <= 0 {
		c.Relay.MaxPendingFrames = defaultMaxPendingFrames
	}
	return nil
}
