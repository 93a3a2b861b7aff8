package model

import (
	"context"

	"github.com/ahtavarasmus/TextAndDrive/internal/protocol"
	"github.com/ahtavarasmus/TextAndDrive/internal/tools"
)

// ToolMode selects how tools are advertised to the endpoint.
type ToolMode string

const (
	// ToolModeFunctions sends the legacy "functions" list with function_call "auto".
	ToolModeFunctions ToolMode = "functions"
	// ToolModeTools sends "tools" with tool_choice "auto".
	ToolModeTools ToolMode = "tools"
)

// Request is one chat-completion call. It is built fresh for every call.
type Request struct {
	Messages []protocol.Message
	Tools    []tools.Definition
}

// Model is the unified interface for all LLM backends.
type Model interface {
	// Complete sends the conversation and returns exactly one of FunctionCall
	// or TextReply. Transport failures and non-2xx responses are errors.
	Complete(ctx context.Context, req Request) (Reply, error)
}
