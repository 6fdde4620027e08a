// ABOUTME: Configuration loading and parsing for conclave agents.
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing.

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/2389/conclave/internal/identity"
)

// Defaults applied to fields left unset in the file.
const (
	DefaultGroup           = "239.255.255.250:8080"
	DefaultBackend         = "openai"
	DefaultTimeout         = 30 * time.Second
	DefaultMaxRetries      = 3
	DefaultMaxEntries      = 50
	DefaultMaxContentChars = 8000
	DefaultQuietWindow     = 2 * time.Second
	DefaultCooldown        = 5 * time.Second
	DefaultHeartbeat       = 30 * time.Second
	DefaultPeerTTL         = 2 * time.Minute
	DefaultVoiceCommand    = "say"
	DefaultLogLevel        = "info"
)

// Scheduling modes.
const (
	ModeFreeForm = "free_form"
	ModeDebate   = "debate"
)

// Config represents the complete conclave agent configuration.
type Config struct {
	Agent        AgentConfig        `yaml:"agent"`
	Network      NetworkConfig      `yaml:"network"`
	LLM          LLMConfig          `yaml:"llm"`
	Conversation ConversationConfig `yaml:"conversation"`
	Schedule     ScheduleConfig     `yaml:"schedule"`
	Debate       DebateConfig       `yaml:"debate"`
	Heartbeat    HeartbeatConfig    `yaml:"heartbeat"`
	Archive      ArchiveConfig      `yaml:"archive"`
	Voice        VoiceConfig        `yaml:"voice"`
	LogLevel     string             `yaml:"log_level"`
}

// AgentConfig holds identity configuration.
type AgentConfig struct {
	ID              string `yaml:"id"`
	Personality     string `yaml:"personality"`
	PersonalityFile string `yaml:"personality_file"`
	Role            string `yaml:"role"`
}

// NetworkConfig holds multicast group configuration.
type NetworkConfig struct {
	Group     string `yaml:"group"`
	Interface string `yaml:"interface"`
}

// LLMConfig holds backend selection and request limits.
type LLMConfig struct {
	Backend    string `yaml:"backend"`
	Model      string `yaml:"model"`
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	MaxRetries *int   `yaml:"max_retries"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout"`
}

// ConversationConfig bounds the in-memory history window.
type ConversationConfig struct {
	MaxEntries      int `yaml:"max_entries"`
	MaxContentChars int `yaml:"max_content_chars"`
}

// ScheduleConfig holds turn-taking behavior.
type ScheduleConfig struct {
	Mode                string   `yaml:"mode"`
	ResponseProbability *float64 `yaml:"response_probability"`
	FailureNotice       bool     `yaml:"failure_notice"`

	QuietWindow     time.Duration `yaml:"-"`
	Cooldown        time.Duration `yaml:"-"`
	ProcessingDelay time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	QuietWindowRaw     string `yaml:"quiet_window"`
	CooldownRaw        string `yaml:"cooldown"`
	ProcessingDelayRaw string `yaml:"processing_delay"`
}

// DebateConfig points at the structured running order.
type DebateConfig struct {
	Script string `yaml:"script"`
}

// HeartbeatConfig holds presence timing.
type HeartbeatConfig struct {
	Interval time.Duration `yaml:"-"`
	PeerTTL  time.Duration `yaml:"-"`

	IntervalRaw string `yaml:"interval"`
	PeerTTLRaw  string `yaml:"peer_ttl"`
}

// ArchiveConfig holds transcript persistence settings.
type ArchiveConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// VoiceConfig holds the optional speech synthesis hook.
type VoiceConfig struct {
	Enabled bool   `yaml:"enabled"`
	Command string `yaml:"command"`
}

// Load reads a configuration file from the given path and returns a parsed
// Config. Environment variables in the format ${VAR_NAME} are expanded,
// duration strings are parsed, and defaults fill any unset fields.
func Load(path string) (*Config, error) {
	return LoadForAgent(path, "")
}

// LoadForAgent reads the file like Load but substitutes id for agent.id
// before validation. One config file can then serve a whole swarm, with
// each process naming itself on the command line.
func LoadForAgent(path, id string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if id != "" {
		cfg.Agent.ID = id
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding
// environment variable values. Unset variables become empty strings.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Network.Group == "" {
		c.Network.Group = DefaultGroup
	}
	if c.LLM.Backend == "" {
		c.LLM.Backend = DefaultBackend
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = DefaultTimeout
	}
	if c.LLM.MaxRetries == nil {
		n := DefaultMaxRetries
		c.LLM.MaxRetries = &n
	}
	if c.Conversation.MaxEntries == 0 {
		c.Conversation.MaxEntries = DefaultMaxEntries
	}
	if c.Conversation.MaxContentChars == 0 {
		c.Conversation.MaxContentChars = DefaultMaxContentChars
	}
	if c.Schedule.Mode == "" {
		c.Schedule.Mode = ModeFreeForm
	}
	if c.Schedule.QuietWindow == 0 {
		c.Schedule.QuietWindow = DefaultQuietWindow
	}
	if c.Schedule.Cooldown == 0 {
		c.Schedule.Cooldown = DefaultCooldown
	}
	if c.Schedule.ResponseProbability == nil {
		p := 1.0
		c.Schedule.ResponseProbability = &p
	}
	if c.Heartbeat.Interval == 0 {
		c.Heartbeat.Interval = DefaultHeartbeat
	}
	if c.Heartbeat.PeerTTL == 0 {
		c.Heartbeat.PeerTTL = DefaultPeerTTL
	}
	if c.Archive.Enabled == nil {
		off := false
		c.Archive.Enabled = &off
	}
	if c.Archive.Path == "" {
		c.Archive.Path = filepath.Join(DataDir(), "transcript.db")
	}
	if c.Voice.Command == "" {
		c.Voice.Command = DefaultVoiceCommand
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate checks that all required configuration fields are present and
// valid. Returns an error describing the first failure encountered.
func (c *Config) Validate() error {
	if err := identity.ValidateID(c.Agent.ID); err != nil {
		return fmt.Errorf("agent.id: %w", err)
	}
	if c.Agent.Personality != "" && c.Agent.PersonalityFile != "" {
		return fmt.Errorf("agent.personality and agent.personality_file are mutually exclusive")
	}

	if c.Network.Group == "" {
		return fmt.Errorf("network.group is required")
	}

	switch c.LLM.Backend {
	case "openai", "openrouter", "anthropic", "google", "local":
	default:
		return fmt.Errorf("llm.backend %q is not one of openai, openrouter, anthropic, google, local", c.LLM.Backend)
	}
	if c.LLM.Timeout < time.Second || c.LLM.Timeout > 5*time.Minute {
		return fmt.Errorf("llm.timeout must be between 1s and 5m, got %s", c.LLM.Timeout)
	}
	if *c.LLM.MaxRetries < 0 || *c.LLM.MaxRetries > 10 {
		return fmt.Errorf("llm.max_retries must be between 0 and 10, got %d", *c.LLM.MaxRetries)
	}

	if c.Conversation.MaxEntries < 2 {
		return fmt.Errorf("conversation.max_entries must be at least 2, got %d", c.Conversation.MaxEntries)
	}
	if c.Conversation.MaxContentChars < 1 {
		return fmt.Errorf("conversation.max_content_chars must be positive, got %d", c.Conversation.MaxContentChars)
	}

	switch c.Schedule.Mode {
	case ModeFreeForm, ModeDebate:
	default:
		return fmt.Errorf("schedule.mode %q is not one of %s, %s", c.Schedule.Mode, ModeFreeForm, ModeDebate)
	}
	if c.Schedule.Mode == ModeDebate && c.Debate.Script == "" {
		return fmt.Errorf("debate.script is required when schedule.mode is %s", ModeDebate)
	}
	if c.Schedule.QuietWindow <= 0 {
		return fmt.Errorf("schedule.quiet_window must be positive, got %s", c.Schedule.QuietWindow)
	}
	if c.Schedule.Cooldown < 0 {
		return fmt.Errorf("schedule.cooldown must not be negative, got %s", c.Schedule.Cooldown)
	}
	if c.Schedule.ProcessingDelay < 0 || c.Schedule.ProcessingDelay > time.Minute {
		return fmt.Errorf("schedule.processing_delay must be between 0 and 60 seconds, got %s", c.Schedule.ProcessingDelay)
	}
	if p := *c.Schedule.ResponseProbability; p < 0 || p > 1 {
		return fmt.Errorf("schedule.response_probability must be in [0, 1], got %g", p)
	}

	if c.Heartbeat.Interval <= 0 {
		return fmt.Errorf("heartbeat.interval must be positive, got %s", c.Heartbeat.Interval)
	}
	if c.Heartbeat.PeerTTL <= c.Heartbeat.Interval {
		return fmt.Errorf("heartbeat.peer_ttl (%s) must exceed heartbeat.interval (%s)",
			c.Heartbeat.PeerTTL, c.Heartbeat.Interval)
	}

	if c.Voice.Enabled && c.Voice.Command == "" {
		return fmt.Errorf("voice.command is required when voice is enabled")
	}

	return nil
}

// APIKeyEnv names the environment variable conventionally holding the
// given backend's key. Empty for backends that need none.
func APIKeyEnv(backend string) string {
	switch backend {
	case "openai":
		return "OPENAI_API_KEY"
	case "openrouter":
		return "OPENROUTER_API_KEY"
	case "anthropic":
		return "ANTHROPIC_API_KEY"
	case "google":
		return "GEMINI_API_KEY"
	}
	return ""
}

// ResolveAPIKey returns the configured API key, falling back to the
// conventional environment variable for the selected backend.
func (c *Config) ResolveAPIKey() string {
	if c.LLM.APIKey != "" {
		return c.LLM.APIKey
	}
	if env := APIKeyEnv(c.LLM.Backend); env != "" {
		return os.Getenv(env)
	}
	return ""
}

// parseDurations converts the raw duration strings into time.Duration values.
func parseDurations(cfg *Config) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"llm.timeout", cfg.LLM.TimeoutRaw, &cfg.LLM.Timeout},
		{"schedule.quiet_window", cfg.Schedule.QuietWindowRaw, &cfg.Schedule.QuietWindow},
		{"schedule.cooldown", cfg.Schedule.CooldownRaw, &cfg.Schedule.Cooldown},
		{"schedule.processing_delay", cfg.Schedule.ProcessingDelayRaw, &cfg.Schedule.ProcessingDelay},
		{"heartbeat.interval", cfg.Heartbeat.IntervalRaw, &cfg.Heartbeat.Interval},
		{"heartbeat.peer_ttl", cfg.Heartbeat.PeerTTLRaw, &cfg.Heartbeat.PeerTTL},
	}

	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}

	return nil
}

// DefaultPath resolves the config file location: $CONCLAVE_CONFIG wins,
// then $XDG_CONFIG_HOME/conclave/config.yaml, then ~/.config/conclave.
func DefaultPath() string {
	if p := os.Getenv("CONCLAVE_CONFIG"); p != "" {
		return p
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml"
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "conclave", "config.yaml")
}

// DataDir resolves where transcripts live: $XDG_DATA_HOME/conclave or
// ~/.local/share/conclave.
func DataDir() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "."
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "conclave")
}
