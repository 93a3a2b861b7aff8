package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/ahtavarasmus/TextAndDrive/internal/protocol"
	"github.com/ahtavarasmus/TextAndDrive/internal/tools"
)

// Server answers tool protocol requests from a registry.
type Server struct {
	reg    *tools.Registry
	logger *slog.Logger
}

func NewServer(reg *tools.Registry, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{reg: reg, logger: logger}
}

// Serve reads requests line by line from r and writes one response line per
// request to w until r is exhausted.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	for scanner.Scan() {
		resp := s.HandleRequest(ctx, scanner.Bytes())
		if _, err := w.Write(append(resp, '\n')); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	return nil
}

// HandleRequest handles a single request and returns the raw JSON response.
func (s *Server) HandleRequest(ctx context.Context, requestBytes []byte) []byte {
	var req struct {
		Method string          `json:"method"`
		Name   string          `json:"name"`
		Args   json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(requestBytes, &req); err != nil {
		return s.errorResponse(fmt.Sprintf("invalid JSON: %v", err))
	}

	switch req.Method {
	case protocol.MethodListTools:
		return s.marshal(protocol.ListToolsResponse{Tools: s.reg.ListAll()})
	case protocol.MethodCallTool:
		if req.Name == "" {
			return s.errorResponse("missing or invalid name field for call_tool")
		}
		args := tools.Arguments{}
		if len(req.Args) > 0 && string(req.Args) != "null" {
			if err := json.Unmarshal(req.Args, &args); err != nil {
				return s.errorResponse("arguments must be an object")
			}
		}
		result := tools.Dispatch(ctx, s.reg, s.logger, req.Name, args)
		return s.marshal(protocol.ToolCallResponse{Result: result})
	case "":
		return s.errorResponse("missing or invalid method field")
	default:
		return s.errorResponse(fmt.Sprintf("unknown method: %s", req.Method))
	}
}

func (s *Server) marshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return s.errorResponse(fmt.Sprintf("failed to marshal response: %v", err))
	}
	return data
}

func (s *Server) errorResponse(message string) []byte {
	s.logger.Warn("tool server request rejected", "error", message)
	data, err := json.Marshal(protocol.ToolCallResponse{Error: message})
	if err != nil {
		return []byte(`{"error":"failed to create error response"}`)
	}
	return data
}
