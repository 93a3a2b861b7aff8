package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ahtavarasmus/TextAndDrive/internal/tools"
)

// ErrNoChoices means the completion carried no choices to parse.
var ErrNoChoices = errors.New("no choices in response")

// ParseCompletion extracts the reply from a chat-completions response body.
// It only fails when the body is not a completion envelope at all.
func ParseCompletion(body []byte) (Reply, error) {
	var env struct {
		Choices []struct {
			Message json.RawMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse completion: %w", err)
	}
	if len(env.Choices) == 0 {
		return nil, ErrNoChoices
	}
	return ParseMessage(env.Choices[0].Message), nil
}

// ParseMessage turns a choice's message into a Reply. Rules, in order:
//
//  1. a non-null function_call is the call; a string is parsed as JSON and on
//     failure the message is treated as plain text
//  2. otherwise the first element of a non-empty tool_calls array is the call
//  3. otherwise content is the text; null and "null" become ""; content that
//     is itself a JSON object wrapping function_call or tool_calls is parsed
//     with rules 1 and 2
//
// String arguments are parsed as JSON; anything that is not an object ends up
// as {"raw": <string>}.
func ParseMessage(raw json.RawMessage) Reply {
	var msg map[string]json.RawMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return TextReply{}
	}

	if call, present, ok := functionCallField(msg["function_call"]); present {
		if ok {
			return call
		}
		return TextReply{Content: contentText(msg["content"])}
	}
	if call, ok := firstToolCall(msg["tool_calls"]); ok {
		return call
	}

	text := contentText(msg["content"])
	if call, ok := wrappedCall(text); ok {
		return call
	}
	return TextReply{Content: text}
}

// functionCallField reports whether a non-null function_call is present and
// whether it could be read as a call.
func functionCallField(raw json.RawMessage) (FunctionCall, bool, bool) {
	if isNull(raw) {
		return FunctionCall{}, false, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		call, ok := callObject(json.RawMessage(s))
		return call, true, ok
	}
	call, ok := callObject(raw)
	return call, true, ok
}

func firstToolCall(raw json.RawMessage) (FunctionCall, bool) {
	var calls []json.RawMessage
	if isNull(raw) || json.Unmarshal(raw, &calls) != nil || len(calls) == 0 {
		return FunctionCall{}, false
	}
	var first struct {
		Function json.RawMessage `json:"function"`
	}
	if err := json.Unmarshal(calls[0], &first); err != nil || isNull(first.Function) {
		return FunctionCall{}, false
	}
	return callObject(first.Function)
}

// wrappedCall handles models that put the whole call into content, e.g.
// {"function_call": {...}}, {"tool_calls": [...]} or {"tools": [{"name", "arguments"}]}.
func wrappedCall(text string) (FunctionCall, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") {
		return FunctionCall{}, false
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text), &wrapper); err != nil {
		return FunctionCall{}, false
	}
	if call, present, ok := functionCallField(wrapper["function_call"]); present {
		return call, ok
	}
	if call, ok := firstToolCall(wrapper["tool_calls"]); ok {
		return call, true
	}
	var list []json.RawMessage
	if json.Unmarshal(wrapper["tools"], &list) == nil && len(list) > 0 {
		return callObject(list[0])
	}
	return FunctionCall{}, false
}

func callObject(raw json.RawMessage) (FunctionCall, bool) {
	if !bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		return FunctionCall{}, false
	}
	var obj struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(raw, &obj); err != nil {
		return FunctionCall{}, false
	}
	return FunctionCall{Name: obj.Name, Arguments: parseArguments(obj.Arguments)}, true
}

func parseArguments(raw json.RawMessage) tools.Arguments {
	if isNull(raw) {
		return tools.Arguments{}
	}
	var args tools.Arguments
	if err := json.Unmarshal(raw, &args); err == nil {
		return args
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return tools.Arguments{"raw": string(raw)}
	}
	if strings.TrimSpace(s) == "" {
		return tools.Arguments{}
	}
	if err := json.Unmarshal([]byte(s), &args); err == nil && args != nil {
		return args
	}
	return tools.Arguments{"raw": s}
}

func contentText(raw json.RawMessage) string {
	if isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	if strings.TrimSpace(s) == "null" {
		return ""
	}
	return s
}

func isNull(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}
