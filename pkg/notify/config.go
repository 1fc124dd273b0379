package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"autopilot-engine/pkg/confkit"
)

// Config lists the alert channels. An empty list logs alerts only.
type Config struct {
	// TopN bounds how many proposals a run summary lists.
	TopN     int             `yaml:"top_n"`
	Channels []ChannelConfig `yaml:"channels"`
}

// ChannelConfig configures one channel.
type ChannelConfig struct {
	Type     string `yaml:"type"`
	URL      string `yaml:"url"`
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`

	TimeoutRaw string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
}

const defaultTopN = 5

// LoadConfig reads notification configuration from disk.
func LoadConfig(path string) (*Config, error) {
	confkit.LoadDotenvOnce()
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open notify config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader decodes, expands and validates a Config.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read notify config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal notify config: %w", err)
	}
	if err := cfg.Normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalise expands environment references and parses durations.
func (c *Config) Normalise() error {
	if c.TopN <= 0 {
		c.TopN = defaultTopN
	}
	for i := range c.Channels {
		ch := &c.Channels[i]
		ch.Type = strings.ToLower(strings.TrimSpace(os.ExpandEnv(ch.Type)))
		ch.URL = strings.TrimSpace(os.ExpandEnv(ch.URL))
		ch.BotToken = strings.TrimSpace(os.ExpandEnv(ch.BotToken))
		ch.ChatID = strings.TrimSpace(os.ExpandEnv(ch.ChatID))
		ch.TimeoutRaw = strings.TrimSpace(os.ExpandEnv(ch.TimeoutRaw))
		if ch.TimeoutRaw == "" {
			continue
		}
		d, err := confkit.ParsePositiveDuration("notify config", fmt.Sprintf("channels[%d].timeout", i), ch.TimeoutRaw)
		if err != nil {
			return err
		}
		ch.Timeout = d
	}
	return nil
}

// Validate checks each channel has what it needs.
func (c *Config) Validate() error {
	for i, ch := range c.Channels {
		switch ch.Type {
		case "log":
		case "webhook":
			if ch.URL == "" {
				return confkit.Invalidf("notify config: channels[%d] webhook requires url", i)
			}
		case "telegram":
			if ch.BotToken == "" || ch.ChatID == "" {
				return confkit.Invalidf("notify config: channels[%d] telegram requires bot_token and chat_id", i)
			}
		default:
			return confkit.Invalidf("notify config: channels[%d] has unsupported type %q", i, ch.Type)
		}
	}
	return nil
}

// Build returns a notifier covering every channel.
func (c *Config) Build() Notifier {
	if len(c.Channels) == 0 {
		return NewLog()
	}
	out := make(Multi, 0, len(c.Channels))
	for _, ch := range c.Channels {
		switch ch.Type {
		case "log":
			out = append(out, NewLog())
		case "webhook":
			out = append(out, NewWebhook(ch.URL, ch.Timeout))
		case "telegram":
			out = append(out, NewTelegram(ch.URL, ch.BotToken, ch.ChatID, ch.Timeout))
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}
