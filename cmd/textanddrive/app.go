package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ahtavarasmus/TextAndDrive/internal/agent"
	"github.com/ahtavarasmus/TextAndDrive/internal/chatdata"
	"github.com/ahtavarasmus/TextAndDrive/internal/config"
	"github.com/ahtavarasmus/TextAndDrive/internal/history"
	"github.com/ahtavarasmus/TextAndDrive/internal/metrics"
	"github.com/ahtavarasmus/TextAndDrive/internal/model"
	"github.com/ahtavarasmus/TextAndDrive/internal/speech"
	"github.com/ahtavarasmus/TextAndDrive/internal/tools"
	"github.com/ahtavarasmus/TextAndDrive/internal/tools/stdio"
	"github.com/ahtavarasmus/TextAndDrive/internal/voice"
)

// app holds everything built from one config. Components are created on
// demand so commands that never talk to the LLM do not need a key.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics

	chats    *chatdata.Store
	accessor *chatdata.Accessor
	tools    tools.Client

	historyStore history.Store
	sessions     *history.Manager
	agent        *agent.Agent

	closers []io.Closer
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// loadApp reads the config and sets up logging and metrics.
func loadApp(logOut io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log, logOut)
	slog.SetDefault(logger)

	reg := prometheus.NewRegistry()
	return &app{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  metrics.New(reg),
	}, nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	a.closers = nil
	return errors.Join(errs...)
}

// openChats opens the chat store. An in-memory store is seeded from the
// configured fixture, since it starts empty every run.
func (a *app) openChats(ctx context.Context) (*chatdata.Accessor, error) {
	if a.accessor != nil {
		return a.accessor, nil
	}
	cfg := a.cfg.ChatData

	var store *chatdata.Store
	var err error
	inMemory := cfg.DBPath == "" || cfg.DBPath == ":memory:"
	if inMemory {
		store, err = chatdata.OpenInMemory()
	} else {
		store, err = chatdata.Open(cfg.DBPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open chat store: %w", err)
	}
	a.closers = append(a.closers, store)

	if inMemory && cfg.Fixture != "" {
		fixture, err := chatdata.LoadFixture(cfg.Fixture)
		if err != nil {
			return nil, fmt.Errorf("load chat fixture: %w", err)
		}
		if err := store.Seed(ctx, fixture); err != nil {
			return nil, fmt.Errorf("seed chat store: %w", err)
		}
		a.logger.Info("chat store seeded", "fixture", cfg.Fixture, "chats", len(fixture.Chats),
			"messages", len(fixture.Messages))
	}

	loc, err := cfg.Location()
	if err != nil {
		return nil, fmt.Errorf("chat timezone: %w", err)
	}
	a.chats = store
	a.accessor = chatdata.NewAccessor(store,
		chatdata.WithLogger(a.logger.With("component", "chatdata")),
		chatdata.WithLocation(loc),
		chatdata.WithIdentity(chatdata.Identity{SenderID: cfg.SelfID, DisplayName: cfg.SelfName}))
	return a.accessor, nil
}

// toolClient connects to the chat tools in-process or through the stdio server.
func (a *app) toolClient(ctx context.Context) (tools.Client, error) {
	if a.tools != nil {
		return a.tools, nil
	}
	cfg := a.cfg.Tools

	var client tools.Client
	switch {
	case !cfg.Enabled:
		client = &tools.NoopClient{}
	case cfg.Transport == "stdio":
		c, err := stdio.Start(cfg.ServerBinary, cfg.ServerArgs...)
		if err != nil {
			return nil, fmt.Errorf("start tool server: %w", err)
		}
		client = c
	default:
		accessor, err := a.openChats(ctx)
		if err != nil {
			return nil, err
		}
		client = tools.NewLocalClient(tools.NewChatCatalog(accessor), a.logger.With("component", "tools"))
	}
	a.closers = append(a.closers, client)
	a.tools = client
	return client, nil
}

func (a *app) sessionManager() (*history.Manager, error) {
	if a.sessions != nil {
		return a.sessions, nil
	}
	cfg := a.cfg.Context

	var store history.Store
	switch cfg.Store {
	case "badger":
		bs, err := history.OpenBadgerStore(cfg.BadgerPath, a.logger.With("component", "history"))
		if err != nil {
			return nil, err
		}
		store = bs
	default:
		store = history.NewMemoryStore()
	}
	a.closers = append(a.closers, store)
	a.historyStore = store
	a.sessions = history.NewManager(store, cfg.MaxBackAndForth)
	return a.sessions, nil
}

func (a *app) buildAgent(ctx context.Context) (*agent.Agent, error) {
	if a.agent != nil {
		return a.agent, nil
	}
	llm := a.cfg.LLM
	m, err := model.NewClient(model.Config{
		Endpoint:    llm.Endpoint,
		APIKey:      llm.APIKey,
		Model:       llm.Model,
		Temperature: llm.Temperature,
		Timeout:     llm.Timeout,
		ToolMode:    model.ToolMode(llm.ToolMode),
	}, a.logger.With("component", "llm"))
	if err != nil {
		return nil, fmt.Errorf("initialize model: %w", err)
	}
	a.logger.Debug("LLM client ready", "endpoint", llm.Endpoint, "model", llm.Model, "api_key", config.Mask(llm.APIKey))

	tc, err := a.toolClient(ctx)
	if err != nil {
		return nil, err
	}
	ag, err := agent.NewAgent(m, tc, agent.Config{
		ChatContextLimit: a.cfg.Context.ChatLimit,
		EmptyPolicy:      agent.EmptyPolicy(a.cfg.Confirmation.EmptyPolicy),
		CannedPhrase:     a.cfg.Confirmation.CannedPhrase,
	}, agent.WithLogger(a.logger.With("component", "agent")), agent.WithMetrics(a.metrics))
	if err != nil {
		return nil, err
	}
	a.agent = ag
	return ag, nil
}

func (a *app) transcriber() (speech.Transcriber, error) {
	cfg := a.cfg.STT
	logger := a.logger.With("component", "stt")
	if cfg.Provider == "elevenlabs" {
		return speech.NewElevenLabsTranscriber(speech.ElevenLabsConfig{
			BaseURL:  cfg.BaseURL,
			APIKey:   cfg.APIKey,
			STTModel: cfg.Model,
			Timeout:  cfg.Timeout,
		}, logger)
	}
	return speech.NewWhisperTranscriber(speech.WhisperConfig{
		BaseURL:  cfg.BaseURL,
		APIKey:   cfg.APIKey,
		Model:    cfg.Model,
		Language: cfg.Language,
		Timeout:  cfg.Timeout,
	}, logger)
}

// synthesizer returns nil when speech output is turned off.
func (a *app) synthesizer() (speech.Synthesizer, error) {
	cfg := a.cfg.TTS
	logger := a.logger.With("component", "tts")
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "openai":
		return speech.NewOpenAISynthesizer(speech.OpenAITTSConfig{
			BaseURL:  cfg.BaseURL,
			APIKey:   cfg.APIKey,
			Model:    cfg.Model,
			Voice:    cfg.VoiceID,
			CacheDir: cfg.CacheDir,
			Timeout:  cfg.Timeout,
		}, logger)
	default:
		return speech.NewElevenLabsSynthesizer(speech.ElevenLabsConfig{
			BaseURL:      cfg.BaseURL,
			APIKey:       cfg.APIKey,
			VoiceID:      cfg.VoiceID,
			Model:        cfg.Model,
			OutputFormat: cfg.OutputFormat,
			CacheDir:     cfg.CacheDir,
			Timeout:      cfg.Timeout,
		}, logger)
	}
}

// pipeline wires speech around the agent. withPlayer enables local playback
// when a player command is configured.
func (a *app) pipeline(ctx context.Context, withPlayer bool) (*voice.Pipeline, error) {
	ag, err := a.buildAgent(ctx)
	if err != nil {
		return nil, err
	}
	stt, err := a.transcriber()
	if err != nil {
		return nil, err
	}
	opts := []voice.Option{
		voice.WithLogger(a.logger.With("component", "voice")),
		voice.WithMetrics(a.metrics),
	}
	tts, err := a.synthesizer()
	if err != nil {
		return nil, err
	}
	if tts != nil {
		opts = append(opts, voice.WithSynthesizer(tts))
	}
	if player := a.cfg.TTS.Player; withPlayer && len(player) > 0 {
		opts = append(opts, voice.WithPlayer(speech.CommandPlayer{Command: player[0], Args: player[1:]}))
	}
	return voice.NewPipeline(stt, ag, voice.Config{RemoveRecordings: a.cfg.Voice.RemoveRecordings}, opts...), nil
}

// describeTools renders the catalog for terminal output.
func describeTools(defs []tools.Definition) string {
	var b strings.Builder
	for _, def := range defs {
		fmt.Fprintf(&b, "%s: %s\n", def.Name, def.Description)
		for _, p := range def.Params {
			req := ""
			if p.Required {
				req = " [required]"
			}
			fmt.Fprintf(&b, "  - %s (%s)%s: %s\n", p.Name, p.Type, req, p.Description)
		}
	}
	return b.String()
}
