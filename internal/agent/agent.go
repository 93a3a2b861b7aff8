package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ahtavarasmus/TextAndDrive/internal/history"
	"github.com/ahtavarasmus/TextAndDrive/internal/metrics"
	"github.com/ahtavarasmus/TextAndDrive/internal/model"
	"github.com/ahtavarasmus/TextAndDrive/internal/protocol"
	"github.com/ahtavarasmus/TextAndDrive/internal/tools"
)

// DefaultChatContextLimit is how many recent chats are put in front of the model.
const DefaultChatContextLimit = 35

// DefaultCannedPhrase is spoken under EmptyCanned when nothing else is usable.
const DefaultCannedPhrase = "Sorry, I couldn't complete that."

// EmptyPolicy decides what happens when no confirmation candidate survives.
type EmptyPolicy string

const (
	EmptySilent EmptyPolicy = "silent"
	EmptyCanned EmptyPolicy = "canned"
)

// Source names the rung of the fallback ladder that produced the confirmation.
type Source string

const (
	SourceConfirm    Source = "confirm"
	SourceSendResult Source = "send_result"
	SourceDecide     Source = "decide"
	SourceCanned     Source = "canned"
	SourceNone       Source = "none"
)

// Config tunes a turn.
type Config struct {
	ChatContextLimit int
	EmptyPolicy      EmptyPolicy
	CannedPhrase     string
}

// TurnRequest is one user utterance. ChatContext, when set, replaces the chat
// listing the agent would otherwise fetch.
type TurnRequest struct {
	Transcript  string
	ChatContext string
}

// TurnResult records everything a turn produced. Confirmation is empty when
// nothing should be spoken.
type TurnResult struct {
	Transcript   string
	Decision     model.Reply
	ToolName     string
	SendResult   string
	ConfirmReply model.Reply
	Confirmation string
	Source       Source
}

// Agent drives turns: decide, dispatch, confirm.
type Agent struct {
	model   model.Model
	tools   tools.Client
	defs    []tools.Definition
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// Option configures an Agent.
type Option func(*Agent)

func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Agent) { a.metrics = m }
}

// NewAgent lists the client's tools once; the catalog is fixed from then on.
func NewAgent(m model.Model, tc tools.Client, cfg Config, opts ...Option) (*Agent, error) {
	if cfg.ChatContextLimit <= 0 {
		cfg.ChatContextLimit = DefaultChatContextLimit
	}
	if cfg.EmptyPolicy == "" {
		cfg.EmptyPolicy = EmptySilent
	}
	if cfg.CannedPhrase == "" {
		cfg.CannedPhrase = DefaultCannedPhrase
	}

	defs, err := tc.List()
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	a := &Agent{
		model:  m,
		tools:  tc,
		defs:   defs,
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Tools returns the catalog advertised to the model.
func (a *Agent) Tools() []tools.Definition {
	return a.defs
}

// ProcessTurn runs one turn against sess. Only a failing LLM call is returned
// as an error; every other failure degrades that step. When the confirm call
// fails the partial result is returned with the error, since the tool may
// already have run.
func (a *Agent) ProcessTurn(ctx context.Context, sess *history.Session, req TurnRequest) (res *TurnResult, err error) {
	start := time.Now()
	defer func() { a.metrics.ObserveTurn(time.Since(start), err) }()

	transcript := strings.TrimSpace(req.Transcript)
	res = &TurnResult{Transcript: transcript, Source: SourceNone}
	if transcript == "" {
		a.logger.Warn("empty transcript, nothing to do", "session", sess.ID)
		return res, nil
	}
	a.logger.Info("turn started", "session", sess.ID, "transcript_length", len(transcript))

	// Context assembly.
	chatContext := a.chatContext(ctx, req.ChatContext)

	// Decide.
	window := a.snapshot(sess)
	decision, err := a.complete(ctx, "decide", model.Request{
		Messages: a.decideMessages(window, chatContext, transcript),
		Tools:    a.defs,
	})
	if err != nil {
		return res, fmt.Errorf("decide call: %w", err)
	}
	res.Decision = decision

	// Dispatch.
	res.SendResult, res.ToolName = a.dispatch(ctx, decision)

	// History.
	if err := sess.AddExchange(transcript, strings.TrimSpace(decision.Raw())); err != nil {
		a.logger.Warn("failed to record turn", "session", sess.ID, "error", err)
	}

	// Confirm.
	prompt := confirmationPrompt(res.SendResult, transcript)
	confirmReply, err := a.complete(ctx, "confirm", model.Request{
		Messages: confirmMessages(a.snapshot(sess), prompt),
	})
	if err != nil {
		return res, fmt.Errorf("confirm call: %w", err)
	}
	res.ConfirmReply = confirmReply
	confirmText := strings.TrimSpace(confirmationText(confirmReply))
	if err := sess.AddExchange(prompt, confirmText); err != nil {
		a.logger.Warn("failed to record confirmation", "session", sess.ID, "error", err)
	}

	// Fallback ladder.
	res.Confirmation, res.Source = selectConfirmation(confirmText, res.SendResult, decision.Raw())
	if res.Source == SourceNone && a.cfg.EmptyPolicy == EmptyCanned {
		res.Confirmation, res.Source = a.cfg.CannedPhrase, SourceCanned
	}
	a.metrics.ObserveConfirmation(string(res.Source))
	a.logger.Info("turn completed", "session", sess.ID, "duration", time.Since(start),
		"tool", res.ToolName, "source", res.Source, "confirmation_length", len(res.Confirmation))
	return res, nil
}

// chatContext returns the system message text carrying the chat listing, or
// "" when no listing tool is available.
func (a *Agent) chatContext(ctx context.Context, supplied string) string {
	if s := strings.TrimSpace(supplied); s != "" {
		return contextHeader + s
	}
	if knownTool(a.defs, tools.GetChats) == "unknown" {
		return ""
	}

	start := time.Now()
	out, err := a.tools.Call(ctx, tools.GetChats, tools.Arguments{"limit": a.cfg.ChatContextLimit})
	if err == nil && strings.HasPrefix(out, "Error") {
		err = errors.New(strings.TrimPrefix(out, "Error: "))
	}
	if err != nil {
		a.logger.Warn("chat context unavailable", "duration", time.Since(start), "error", err)
		return "Available chats context unavailable: " + err.Error()
	}
	a.logger.Debug("chat context fetched", "duration", time.Since(start), "length", len(out))
	return contextHeader + out
}

func (a *Agent) snapshot(sess *history.Session) []protocol.Message {
	window, err := sess.Snapshot()
	if err != nil {
		a.logger.Warn("history unavailable", "session", sess.ID, "error", err)
		return nil
	}
	return window
}

func (a *Agent) complete(ctx context.Context, stage string, req model.Request) (model.Reply, error) {
	start := time.Now()
	reply, err := a.model.Complete(ctx, req)
	kind := "text"
	switch {
	case err != nil:
		kind = "error"
	case isCall(reply):
		kind = "function_call"
	}
	a.metrics.ObserveLLMCall(stage, kind, time.Since(start))
	if err != nil {
		a.logger.Error("LLM call failed", "stage", stage, "duration", time.Since(start), "error", err)
		return nil, err
	}
	a.logger.Info("LLM call completed", "stage", stage, "duration", time.Since(start), "reply", kind)
	return reply, nil
}

// dispatch turns the decision into the text the confirmation is based on.
func (a *Agent) dispatch(ctx context.Context, decision model.Reply) (string, string) {
	call, ok := decision.(model.FunctionCall)
	if !ok {
		return decision.Raw(), ""
	}

	start := time.Now()
	out, err := a.tools.Call(ctx, call.Name, call.Arguments)
	if err != nil {
		out = "Error: " + err.Error()
	}
	failed := strings.HasPrefix(out, "Error")
	a.metrics.ObserveToolCall(knownTool(a.defs, call.Name), failed)
	a.logger.Info("tool dispatched", "tool", call.Name, "duration", time.Since(start),
		"failed", failed, "result_length", len(out))
	return out, call.Name
}

func isCall(r model.Reply) bool {
	_, ok := r.(model.FunctionCall)
	return ok
}

// confirmationText pulls speakable text out of the confirm reply. A model that
// wrongly answers with a call usually puts the sentence in one of a few
// argument names.
func confirmationText(r model.Reply) string {
	switch r := r.(type) {
	case model.FunctionCall:
		return r.FirstText("text", "message", "content", "raw")
	case model.TextReply:
		return r.Content
	}
	return ""
}

// selectConfirmation walks the fallback ladder: confirm output, then the tool
// result, then the decide text. Blank and JSON-shaped candidates are skipped
// so raw JSON is never spoken.
func selectConfirmation(confirm, sendResult, decide string) (string, Source) {
	for _, c := range []struct {
		text   string
		source Source
	}{
		{confirm, SourceConfirm},
		{sendResult, SourceSendResult},
		{decide, SourceDecide},
	} {
		if speakable(c.text) {
			return strings.TrimSpace(c.text), c.source
		}
	}
	return "", SourceNone
}

func speakable(s string) bool {
	s = strings.TrimSpace(s)
	return s != "" && !strings.HasPrefix(s, "{")
}
