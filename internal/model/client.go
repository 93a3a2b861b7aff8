package model

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ahtavarasmus/TextAndDrive/internal/httperr"
	"github.com/ahtavarasmus/TextAndDrive/internal/protocol"
)

const (
	DefaultEndpoint    = "https://inference.tinfoil.sh/v1/chat/completions"
	DefaultModel       = "qwen3-coder-480b"
	DefaultTemperature = 0.2
	DefaultTimeout     = 60 * time.Second
)

// Config configures a chat-completions client.
type Config struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
	ToolMode    ToolMode
}

// Client calls an OpenAI-compatible chat-completions endpoint. The response
// body is parsed by ParseCompletion rather than decoded into typed structs,
// since models return calls in shapes the typed structs reject.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client, filling unset fields with defaults.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM API key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ToolMode == "" {
		cfg.ToolMode = ToolModeFunctions
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

// buildRequest maps a Request onto the chat-completions wire format.
func (c *Client) buildRequest(req Request) openai.ChatCompletionRequest {
	temperature := c.cfg.Temperature
	if temperature == 0 {
		// go-openai omits a zero temperature; the smallest float32 still marshals.
		temperature = math.SmallestNonzeroFloat32
	}
	out := openai.ChatCompletionRequest{
		Model:       c.cfg.Model,
		Temperature: temperature,
		Messages:    toWireMessages(req.Messages),
	}
	if len(req.Tools) == 0 {
		return out
	}

	switch c.cfg.ToolMode {
	case ToolModeTools:
		for _, def := range req.Tools {
			fn := def.OpenAIFunction()
			out.Tools = append(out.Tools, openai.Tool{Type: openai.ToolTypeFunction, Function: &fn})
		}
		out.ToolChoice = "auto"
	default:
		for _, def := range req.Tools {
			out.Functions = append(out.Functions, def.OpenAIFunction())
		}
		out.FunctionCall = "auto"
	}
	return out
}

func toWireMessages(msgs []protocol.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// Complete sends one chat-completion request and parses the first choice.
func (c *Client) Complete(ctx context.Context, req Request) (Reply, error) {
	start := time.Now()
	bodyBytes, err := json.Marshal(c.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	c.logger.Debug("sending LLM request", "model", c.cfg.Model, "messages", len(req.Messages),
		"tools", len(req.Tools), "tool_mode", c.cfg.ToolMode)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error("LLM request failed", "duration", time.Since(start), "error", err)
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := httperr.New("LLM API", resp.StatusCode, respBody)
		c.logger.Error("LLM request failed", "duration", time.Since(start), "status", resp.StatusCode, "error", apiErr)
		return nil, apiErr
	}

	reply, err := ParseCompletion(respBody)
	if err != nil {
		c.logger.Error("LLM response unreadable", "duration", time.Since(start), "error", err)
		return nil, err
	}

	kind := "text"
	if _, ok := reply.(FunctionCall); ok {
		kind = "function_call"
	}
	c.logger.Info("LLM response", "duration", time.Since(start), "status", resp.StatusCode, "reply", kind)
	return reply, nil
}
