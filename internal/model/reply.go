package model

import (
	"encoding/json"
	"strings"

	"github.com/ahtavarasmus/TextAndDrive/internal/tools"
)

// Reply is the parsed outcome of a completion: either a FunctionCall or a
// TextReply, never both.
type Reply interface {
	// Raw renders the reply the way it is kept in conversation history.
	Raw() string
	isReply()
}

// FunctionCall is a request from the model to run one tool.
type FunctionCall struct {
	Name      string
	Arguments tools.Arguments
}

// TextReply is a plain answer.
type TextReply struct {
	Content string
}

func (FunctionCall) isReply() {}
func (TextReply) isReply()    {}

// Raw renders the call as {"function_call":{"name":...,"arguments":{...}}}.
func (c FunctionCall) Raw() string {
	args := c.Arguments
	if args == nil {
		args = tools.Arguments{}
	}
	wrapper := map[string]any{
		"function_call": map[string]any{
			"name":      c.Name,
			"arguments": args,
		},
	}
	// Arguments come from decoded JSON, so they always encode.
	data, _ := json.Marshal(wrapper)
	return string(data)
}

func (t TextReply) Raw() string { return t.Content }

// FirstText returns the first non-blank string argument among keys.
func (c FunctionCall) FirstText(keys ...string) string {
	for _, k := range keys {
		if s, ok := c.Arguments[k].(string); ok && strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
