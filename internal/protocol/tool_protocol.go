package protocol

import "github.com/ahtavarasmus/TextAndDrive/internal/tools"

// Tool server methods. Requests and responses are exchanged as one JSON
// object per line over the server's stdin and stdout.
const (
	MethodListTools = "list_tools"
	MethodCallTool  = "call_tool"
)

type ListToolsRequest struct {
	Method string `json:"method"` // must be "list_tools"
}

type ToolCallRequest struct {
	Method string          `json:"method"` // must be "call_tool"
	Name   string          `json:"name"`
	Args   tools.Arguments `json:"arguments"`
}

type ListToolsResponse struct {
	Tools []tools.Definition `json:"tools"`
	Error string             `json:"error,omitempty"`
}

type ToolCallResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}
