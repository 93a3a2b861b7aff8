package speech

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	DefaultWhisperBaseURL = "https://inference.tinfoil.sh/v1"
	DefaultWhisperModel   = "whisper-large-v3-turbo"
)

// WhisperConfig configures an OpenAI-compatible transcription endpoint.
type WhisperConfig struct {
	BaseURL  string
	APIKey   string
	Model    string
	Language string
	Timeout  time.Duration
}

// WhisperTranscriber posts audio to {BaseURL}/audio/transcriptions.
type WhisperTranscriber struct {
	client *openai.Client
	cfg    WhisperConfig
	logger *slog.Logger
}

func NewWhisperTranscriber(cfg WhisperConfig, logger *slog.Logger) (*WhisperTranscriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("transcription API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultWhisperBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultWhisperModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = cfg.BaseURL
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &WhisperTranscriber{client: openai.NewClientWithConfig(clientCfg), cfg: cfg, logger: logger}, nil
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	start := time.Now()
	info, err := os.Stat(audioPath)
	if err != nil {
		return "", fmt.Errorf("audio file: %w", err)
	}
	w.logger.Info("transcription request", "model", w.cfg.Model, "file_size", info.Size())

	resp, err := w.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    w.cfg.Model,
		FilePath: audioPath,
		Language: w.cfg.Language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		err = fromOpenAI("transcription", err)
		w.logger.Error("transcription failed", "duration", time.Since(start), "error", err)
		return "", err
	}

	text := strings.TrimSpace(resp.Text)
	w.logger.Info("transcription completed", "duration", time.Since(start), "text_length", len(text))
	return text, nil
}
