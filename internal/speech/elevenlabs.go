package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ahtavarasmus/TextAndDrive/internal/httperr"
)

const (
	DefaultElevenLabsBaseURL = "https://api.elevenlabs.io"
	DefaultElevenLabsVoice   = "5kMbtRSEKIkRZSdXxrZg"
	DefaultElevenLabsModel   = "eleven_multilingual_v2"
	DefaultElevenLabsFormat  = "mp3_44100_128"
	DefaultScribeModel       = "scribe_v1"
)

// ElevenLabsConfig configures both ElevenLabs adapters.
type ElevenLabsConfig struct {
	BaseURL      string
	APIKey       string
	VoiceID      string
	Model        string
	OutputFormat string
	STTModel     string
	CacheDir     string
	Timeout      time.Duration
}

func (c *ElevenLabsConfig) applyDefaults() error {
	if c.APIKey == "" {
		return fmt.Errorf("ElevenLabs API key is required")
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultElevenLabsBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.VoiceID == "" {
		c.VoiceID = DefaultElevenLabsVoice
	}
	if c.Model == "" {
		c.Model = DefaultElevenLabsModel
	}
	if c.OutputFormat == "" {
		c.OutputFormat = DefaultElevenLabsFormat
	}
	if c.STTModel == "" {
		c.STTModel = DefaultScribeModel
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
	return nil
}

// ElevenLabsSynthesizer renders speech with /v1/text-to-speech/{voice}.
type ElevenLabsSynthesizer struct {
	cfg        ElevenLabsConfig
	httpClient *http.Client
	logger     *slog.Logger
}

func NewElevenLabsSynthesizer(cfg ElevenLabsConfig, logger *slog.Logger) (*ElevenLabsSynthesizer, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ElevenLabsSynthesizer{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}, logger: logger}, nil
}

func (s *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string) (string, error) {
	start := time.Now()
	payload, err := json.Marshal(map[string]string{
		"text":          text,
		"model_id":      s.cfg.Model,
		"output_format": s.cfg.OutputFormat,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s", s.cfg.BaseURL, s.cfg.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.logger.Error("speech synthesis failed", "duration", time.Since(start), "error", err)
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		apiErr := httperr.New("ElevenLabs TTS", resp.StatusCode, body)
		s.logger.Error("speech synthesis failed", "duration", time.Since(start), "status", resp.StatusCode, "error", apiErr)
		return "", apiErr
	}

	path, err := writeTemp(ctx, s.cfg.CacheDir, "tts-*.mp3", resp.Body)
	if err != nil {
		return "", err
	}
	s.logger.Info("speech synthesized", "duration", time.Since(start), "text_length", len(text), "file", path)
	return path, nil
}

// ElevenLabsTranscriber transcribes with /v1/speech-to-text.
type ElevenLabsTranscriber struct {
	cfg        ElevenLabsConfig
	httpClient *http.Client
	logger     *slog.Logger
}

func NewElevenLabsTranscriber(cfg ElevenLabsConfig, logger *slog.Logger) (*ElevenLabsTranscriber, error) {
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ElevenLabsTranscriber{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}, logger: logger}, nil
}

func (t *ElevenLabsTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	start := time.Now()
	f, err := os.Open(audioPath)
	if err != nil {
		return "", fmt.Errorf("audio file: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read audio file: %w", err)
	}
	if err := mw.WriteField("model_id", t.cfg.STTModel); err != nil {
		return "", err
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.BaseURL+"/v1/speech-to-text", &body)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("xi-api-key", t.cfg.APIKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	t.logger.Info("transcription request", "model", t.cfg.STTModel, "file_size", body.Len())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		t.logger.Error("transcription failed", "duration", time.Since(start), "error", err)
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := httperr.New("ElevenLabs STT", resp.StatusCode, respBody)
		t.logger.Error("transcription failed", "duration", time.Since(start), "status", resp.StatusCode, "error", apiErr)
		return "", apiErr
	}

	var out struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return "", fmt.Errorf("failed to parse transcription: %w", err)
	}
	text := strings.TrimSpace(out.Text)
	t.logger.Info("transcription completed", "duration", time.Since(start), "text_length", len(text))
	return text, nil
}
