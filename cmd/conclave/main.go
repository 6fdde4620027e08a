// ABOUTME: Entry point for the conclave swarm agent.
// ABOUTME: Joins a multicast group and converses through the configured LLM backend.

package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/yuin/goldmark"

	"github.com/2389/conclave/internal/agent"
	"github.com/2389/conclave/internal/config"
	"github.com/2389/conclave/internal/console"
	"github.com/2389/conclave/internal/dedupe"
	"github.com/2389/conclave/internal/identity"
	"github.com/2389/conclave/internal/llm"
	"github.com/2389/conclave/internal/memory"
	"github.com/2389/conclave/internal/peers"
	"github.com/2389/conclave/internal/scheduler"
	"github.com/2389/conclave/internal/store"
	"github.com/2389/conclave/internal/transport"
	"github.com/2389/conclave/internal/voice"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                           _
  ___   ___   _ __    ___ | |  __ _ __   __  ___
 / __| / _ \ | '_ \  / __|| | / _' |\ \ / / / _ \
| (__ | (_) || | | || (__ | || (_| | \ V / |  __/
 \___| \___/ |_| |_| \___||_| \__,_|  \_/   \___|
`

const (
	// seenTTL and seenCapacity bound the duplicate-suppression window. Ten
	// minutes outlives any plausible multicast retransmit.
	seenTTL      = 10 * time.Minute
	seenCapacity = 4096

	transcriptDefaultLimit = 50
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, os.Args[2:])
	case "init":
		err = runInit()
	case "transcript":
		err = runTranscript(ctx, os.Args[2:])
	case "version":
		fmt.Printf("conclave %s\n", version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Usage: conclave <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve [--id name]         Join the group and start conversing")
	fmt.Println("  init                      Create a config file interactively")
	fmt.Println("  transcript [n]            Print the last n archived messages")
	fmt.Println("  transcript export [file]  Render the archive to HTML")
	fmt.Println("  version                   Print the version")
	fmt.Println()
	fmt.Println("serve and transcript accept --config PATH; CONCLAVE_CONFIG works too.")
	fmt.Println("serve --id overrides agent.id, so one config can run a whole swarm.")
}

// splitFlag pulls one "name value" or "name=value" flag out of args,
// returning its value and the remaining arguments.
func splitFlag(args []string, long, short string) (string, []string, error) {
	value := ""
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == long || (short != "" && arg == short):
			if i+1 >= len(args) {
				return "", nil, fmt.Errorf("%s requires a value", long)
			}
			value = args[i+1]
			i++
		case strings.HasPrefix(arg, long+"="):
			value = strings.TrimPrefix(arg, long+"=")
		default:
			rest = append(rest, arg)
		}
	}
	return value, rest, nil
}

func splitConfigFlag(args []string) (string, []string, error) {
	path, rest, err := splitFlag(args, "--config", "-c")
	if err != nil {
		return "", nil, err
	}
	if path == "" {
		path = config.DefaultPath()
	}
	return path, rest, nil
}

func runServe(ctx context.Context, args []string) error {
	configPath, rest, err := splitConfigFlag(args)
	if err != nil {
		return err
	}
	idFlag, rest, err := splitFlag(rest, "--id", "")
	if err != nil {
		return err
	}
	if len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.LoadForAgent(configPath, idFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.LogLevel)

	ident, err := identity.New(cfg.Agent.ID, cfg.Agent.Personality, cfg.Agent.PersonalityFile, cfg.Agent.Role)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)

	green.Print("    ▶ ")
	fmt.Printf("Config:  %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Agent:   %s", ident.ID)
	if ident.Role != "" {
		gray.Printf(" (role: %s)", ident.Role)
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("Group:   %s\n", cfg.Network.Group)
	green.Print("    ▶ ")
	fmt.Printf("Backend: %s", cfg.LLM.Backend)
	if cfg.LLM.Model != "" {
		gray.Printf(" (%s)", cfg.LLM.Model)
	}
	fmt.Println()
	green.Print("    ▶ ")
	fmt.Printf("Mode:    %s", cfg.Schedule.Mode)
	if cfg.Schedule.Mode == config.ModeDebate {
		gray.Printf(" (%s)", cfg.Debate.Script)
	}
	fmt.Println()
	if *cfg.Archive.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Archive: %s\n", cfg.Archive.Path)
	}
	if cfg.Voice.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Voice:   %s\n", cfg.Voice.Command)
	}
	fmt.Println()

	key := cfg.ResolveAPIKey()
	if key == "" && cfg.LLM.Backend != "local" {
		return fmt.Errorf("llm backend %q needs an api key: set llm.api_key or %s",
			cfg.LLM.Backend, config.APIKeyEnv(cfg.LLM.Backend))
	}
	provider, err := llm.NewProvider(llm.Options{
		Backend:  cfg.LLM.Backend,
		Model:    cfg.LLM.Model,
		APIKey:   key,
		Endpoint: cfg.LLM.Endpoint,
	})
	if err != nil {
		return err
	}
	gateway := llm.NewGateway(provider, cfg.LLM.Timeout, *cfg.LLM.MaxRetries, logger)

	policy, err := buildPolicy(cfg, ident)
	if err != nil {
		return err
	}

	conn, err := transport.Join(ctx, cfg.Network.Group, cfg.Network.Interface, logger)
	if err != nil {
		return fmt.Errorf("joining group: %w", err)
	}

	registry := peers.NewRegistry(ident.ID, cfg.Heartbeat.PeerTTL, dedupe.New(seenTTL, seenCapacity), logger)
	defer registry.Close()

	var archiver agent.Archiver
	var archive *store.Archive
	if *cfg.Archive.Enabled {
		archive, err = store.NewArchive(cfg.Archive.Path, logger)
		if err != nil {
			conn.Close()
			return fmt.Errorf("opening archive: %w", err)
		}
		defer archive.Close()
		archiver = archive
	}

	var speaker voice.Speaker
	if cfg.Voice.Enabled {
		speaker, err = voice.NewCommandSpeaker(cfg.Voice.Command, logger)
		if err != nil {
			conn.Close()
			return err
		}
	}

	a, err := agent.New(agent.Options{
		Identity:        ident,
		Transport:       conn,
		Registry:        registry,
		Window:          memory.NewWindow(ident.Personality, cfg.Conversation.MaxEntries, cfg.Conversation.MaxContentChars),
		Scheduler:       scheduler.New(cfg.Schedule.QuietWindow, cfg.Schedule.Cooldown, policy),
		Generator:       gateway,
		Archive:         archiver,
		Printer:         console.NewPrinter(os.Stdout, ident.ID),
		Speaker:         speaker,
		Logger:          logger,
		ProcessingDelay: cfg.Schedule.ProcessingDelay,
		HeartbeatEvery:  cfg.Heartbeat.Interval,
		FailureNotice:   cfg.Schedule.FailureNotice,
		Greeting:        cfg.Schedule.Mode == config.ModeFreeForm,
	})
	if err != nil {
		conn.Close()
		return err
	}

	logger.Info("starting conclave agent",
		"agent_id", ident.ID,
		"group", cfg.Network.Group,
		"backend", cfg.LLM.Backend,
		"mode", cfg.Schedule.Mode,
	)

	return a.Run(ctx)
}

// buildPolicy picks the speaking policy for the configured mode.
func buildPolicy(cfg *config.Config, ident identity.Identity) (scheduler.Policy, error) {
	if cfg.Schedule.Mode == config.ModeDebate {
		script, err := scheduler.LoadScript(cfg.Debate.Script)
		if err != nil {
			return nil, err
		}
		return script.Policy(ident.Role)
	}
	if p := *cfg.Schedule.ResponseProbability; p < 1.0 {
		return scheduler.NewProbabilisticPolicy(p, nil), nil
	}
	return scheduler.AlwaysPolicy{}, nil
}

func setupLogger(level string) *slog.Logger {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}

	return slog.New(&colorHandler{level: l})
}

// colorHandler provides colorized log output with thread-safe writes. Logs
// go to stderr so the conversation on stdout stays readable.
type colorHandler struct {
	mu     sync.Mutex
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
	}

	r.Attrs(func(a slog.Attr) bool {
		buf.WriteString(color.HiBlackString(" " + a.Key + "="))
		buf.WriteString(a.Value.String())
		return true
	})

	buf.WriteString("\n")
	fmt.Fprint(os.Stderr, buf.String())
	return nil
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("conclave configuration setup")
	fmt.Println("============================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", config.DefaultPath())

	if _, err := os.Stat(outputFile); err == nil {
		overwrite := prompt(reader, "File exists. Overwrite?", "no")
		if strings.ToLower(overwrite) != "yes" && strings.ToLower(overwrite) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Agent ---")
	agentID := prompt(reader, "Agent id", "agent-1")
	personality := prompt(reader, "Personality", identity.DefaultPersonality)

	fmt.Println("\n--- Network ---")
	group := prompt(reader, "Multicast group", config.DefaultGroup)

	fmt.Println("\n--- LLM Backend ---")
	backend := prompt(reader, "Backend (openai/anthropic/google/openrouter/local)", config.DefaultBackend)
	model := prompt(reader, "Model (empty for the backend default)", "")

	fmt.Println("\n--- Conversation ---")
	mode := prompt(reader, "Mode (free_form/debate)", config.ModeFreeForm)
	script := ""
	if mode == config.ModeDebate {
		script = prompt(reader, "Debate script (TOML path)", "debate.toml")
	}

	fmt.Println("\n--- Extras ---")
	archiveStr := prompt(reader, "Archive the transcript?", "no")
	archiveEnabled := strings.ToLower(archiveStr) == "yes" || strings.ToLower(archiveStr) == "y"
	voiceStr := prompt(reader, "Speak messages aloud?", "no")
	voiceEnabled := strings.ToLower(voiceStr) == "yes" || strings.ToLower(voiceStr) == "y"

	var cfg strings.Builder
	cfg.WriteString("# conclave configuration\n")
	cfg.WriteString("# Generated by conclave init\n\n")

	cfg.WriteString("agent:\n")
	cfg.WriteString(fmt.Sprintf("  id: %q\n", agentID))
	cfg.WriteString(fmt.Sprintf("  personality: %q\n", personality))
	cfg.WriteString("\n")

	cfg.WriteString("network:\n")
	cfg.WriteString(fmt.Sprintf("  group: %q\n", group))
	cfg.WriteString("\n")

	cfg.WriteString("llm:\n")
	cfg.WriteString(fmt.Sprintf("  backend: %q\n", backend))
	if model != "" {
		cfg.WriteString(fmt.Sprintf("  model: %q\n", model))
	}
	if env := config.APIKeyEnv(backend); env != "" {
		cfg.WriteString(fmt.Sprintf("  api_key: \"${%s}\"\n", env))
	}
	cfg.WriteString("\n")

	cfg.WriteString("schedule:\n")
	cfg.WriteString(fmt.Sprintf("  mode: %q\n", mode))
	cfg.WriteString("  quiet_window: \"2s\"\n")
	cfg.WriteString("  cooldown: \"5s\"\n")
	cfg.WriteString("\n")

	if script != "" {
		cfg.WriteString("debate:\n")
		cfg.WriteString(fmt.Sprintf("  script: %q\n", script))
		cfg.WriteString("\n")
	}

	cfg.WriteString("archive:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", archiveEnabled))
	cfg.WriteString("\n")

	cfg.WriteString("voice:\n")
	cfg.WriteString(fmt.Sprintf("  enabled: %t\n", voiceEnabled))
	if voiceEnabled {
		cfg.WriteString(fmt.Sprintf("  command: %q\n", config.DefaultVoiceCommand))
	}
	cfg.WriteString("\n")

	cfg.WriteString("log_level: \"info\"\n")

	configDir := filepath.Dir(outputFile)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nTo start the agent:")
	fmt.Printf("  conclave serve\n")

	return nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func runTranscript(ctx context.Context, args []string) error {
	configPath, rest, err := splitConfigFlag(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// The archive opens quietly here; log lines would bleed into the
	// transcript output.
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	archive, err := store.NewArchive(cfg.Archive.Path, quiet)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer archive.Close()

	if len(rest) > 0 && rest[0] == "export" {
		out := "transcript.html"
		if len(rest) > 1 {
			out = rest[1]
		}
		return exportTranscript(ctx, archive, out)
	}

	limit := transcriptDefaultLimit
	if len(rest) > 0 {
		limit, err = strconv.Atoi(rest[0])
		if err != nil || limit < 1 {
			return fmt.Errorf("transcript wants a positive count, got %q", rest[0])
		}
	}

	count, err := archive.Count(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		fmt.Println("transcript is empty")
		return nil
	}
	participants, err := archive.Participants(ctx)
	if err != nil {
		return err
	}
	entries, err := archive.Recent(ctx, limit)
	if err != nil {
		return err
	}

	gray := color.New(color.FgHiBlack)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	gray.Printf("%d messages from %s\n\n", count, strings.Join(participants, ", "))
	for _, e := range entries {
		gray.Printf("%s ", e.ReceivedAt.Local().Format("2006-01-02 15:04:05"))
		cyan.Printf("%s", e.Envelope.SenderID)
		if e.Envelope.HasTurn {
			yellow.Printf(" [turn %d]", e.Envelope.TurnSeq)
		}
		fmt.Printf(": %s\n", e.Envelope.Content)
	}
	return nil
}

// exportTranscript renders the whole archive as a standalone HTML page.
func exportTranscript(ctx context.Context, archive *store.Archive, out string) error {
	count, err := archive.Count(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("transcript is empty, nothing to export")
	}
	entries, err := archive.Recent(ctx, count)
	if err != nil {
		return err
	}

	var md strings.Builder
	md.WriteString("# Conclave transcript\n\n")
	fmt.Fprintf(&md, "%d messages, %s to %s.\n\n",
		len(entries),
		entries[0].ReceivedAt.Local().Format("2006-01-02 15:04"),
		entries[len(entries)-1].ReceivedAt.Local().Format("2006-01-02 15:04"))
	for _, e := range entries {
		fmt.Fprintf(&md, "**%s**", e.Envelope.SenderID)
		if e.Envelope.HasTurn {
			fmt.Fprintf(&md, " *(turn %d)*", e.Envelope.TurnSeq)
		}
		fmt.Fprintf(&md, " · %s\n\n", e.ReceivedAt.Local().Format("2006-01-02 15:04:05"))
		md.WriteString(e.Envelope.Content)
		md.WriteString("\n\n")
	}

	var htmlBuf bytes.Buffer
	if err := goldmark.Convert([]byte(md.String()), &htmlBuf); err != nil {
		return fmt.Errorf("rendering transcript: %w", err)
	}

	page := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Conclave transcript</title>
<style>
body { font-family: system-ui, sans-serif; max-width: 46rem; margin: 2rem auto; padding: 0 1rem; line-height: 1.5; }
</style>
</head>
<body>
%s</body>
</html>
`, htmlBuf.String())

	if err := os.WriteFile(out, []byte(page), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	fmt.Printf("Wrote %d messages to %s\n", len(entries), out)
	return nil
}
