package speech

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// OpenAITTSConfig configures an OpenAI-compatible /audio/speech endpoint.
type OpenAITTSConfig struct {
	BaseURL  string
	APIKey   string
	Model    string
	Voice    string
	CacheDir string
	Timeout  time.Duration
}

// OpenAISynthesizer renders speech through go-openai's CreateSpeech.
type OpenAISynthesizer struct {
	client *openai.Client
	cfg    OpenAITTSConfig
	logger *slog.Logger
}

func NewOpenAISynthesizer(cfg OpenAITTSConfig, logger *slog.Logger) (*OpenAISynthesizer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("TTS API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = string(openai.TTSModel1)
	}
	if cfg.Voice == "" {
		cfg.Voice = string(openai.VoiceAlloy)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAISynthesizer{client: openai.NewClientWithConfig(clientCfg), cfg: cfg, logger: logger}, nil
}

func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	start := time.Now()
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.cfg.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(s.cfg.Voice),
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		err = fromOpenAI("TTS", err)
		s.logger.Error("speech synthesis failed", "duration", time.Since(start), "error", err)
		return "", err
	}
	defer resp.Close()

	path, err := writeTemp(ctx, s.cfg.CacheDir, "tts-*.mp3", resp)
	if err != nil {
		return "", err
	}
	s.logger.Info("speech synthesized", "duration", time.Since(start), "text_length", len(text), "file", path)
	return path, nil
}
