// Package config handles configuration loading for conclave agents.
//
// # Overview
//
// Configuration is loaded from YAML files with environment variable expansion.
// The package provides validation and sensible defaults; a minimal file only
// needs an agent id.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from CONCLAVE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/conclave/config.yaml
//  3. ~/.config/conclave/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	llm:
//	  api_key: "${OPENAI_API_KEY}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to the empty string. API keys
// left empty fall back to the conventional variable for the chosen backend
// (OPENAI_API_KEY, ANTHROPIC_API_KEY, GEMINI_API_KEY, OPENROUTER_API_KEY).
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	schedule:
//	  quiet_window: "2s"
//	  cooldown: "5s"
//
// Supported units: ns, us, ms, s, m, h
//
// # Configuration Sections
//
// Identity:
//
//	agent:
//	  id: "socrates"                  # letters, digits, hyphens, underscores
//	  personality: "You ask questions."
//	  personality_file: ""            # mutually exclusive with personality
//	  role: "affirmative"             # debate mode only
//
// Network:
//
//	network:
//	  group: "239.255.255.250:8080"   # IPv4 multicast group
//	  interface: ""                   # name or local IP, default interface if empty
//
// Language model backend:
//
//	llm:
//	  backend: "openai"               # openai, openrouter, anthropic, google, local
//	  model: ""                       # backend default when empty
//	  api_key: "${OPENAI_API_KEY}"
//	  endpoint: ""                    # base URL override
//	  timeout: "30s"                  # per attempt, 1s to 5m
//	  max_retries: 3                  # 0 to 10
//
// Conversation window:
//
//	conversation:
//	  max_entries: 50
//	  max_content_chars: 8000
//
// Turn taking:
//
//	schedule:
//	  mode: "free_form"               # free_form or debate
//	  quiet_window: "2s"
//	  cooldown: "5s"
//	  processing_delay: "0s"          # up to 60s
//	  response_probability: 1.0       # free_form only
//	  failure_notice: false           # broadcast a notice when generation fails
//
// Debate running order (TOML script, required in debate mode):
//
//	debate:
//	  script: "./debate.toml"
//
// Presence:
//
//	heartbeat:
//	  interval: "30s"
//	  peer_ttl: "2m"                  # must exceed the interval
//
// Transcript archive:
//
//	archive:
//	  enabled: true
//	  path: ""                        # default: $XDG_DATA_HOME/conclave/transcript.db
//
// Speech synthesis:
//
//	voice:
//	  enabled: false
//	  command: "say"                  # espeak on linux
//
// # Usage
//
// Load configuration from a specific path:
//
//	cfg, err := config.Load(config.DefaultPath())
//	if err != nil {
//	    log.Fatal(err)
//	}
package config
