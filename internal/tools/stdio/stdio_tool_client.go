package stdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/ahtavarasmus/TextAndDrive/internal/protocol"
	"github.com/ahtavarasmus/TextAndDrive/internal/tools"
)

// maxLine bounds one response line; message listings can be long.
const maxLine = 4 << 20

// ErrAbandoned is returned once a call was cancelled mid-exchange; the stream
// is out of step after that and the client cannot be reused.
var ErrAbandoned = errors.New("tool server connection abandoned after a cancelled call")

// Client talks to a chat tool server subprocess over NDJSON.
type Client struct {
	cmd    *exec.Cmd
	stdin  *json.Encoder
	stdout *bufio.Scanner
	writer io.Closer
	reader io.Reader
	mu     sync.Mutex // one request in flight at a time
	broken bool

	closeOnce sync.Once
	closeErr  error
}

// Start launches the server binary and sets up communication.
func Start(serverBinary string, args ...string) (*Client, error) {
	cmd := exec.Command(serverBinary, args...)

	stdinPipe, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start tool server: %w", err)
	}

	c := NewClient(stdinPipe, stdoutPipe)
	c.cmd = cmd
	return c, nil
}

// NewClient speaks the protocol over an existing pair of streams.
func NewClient(w io.WriteCloser, r io.Reader) *Client {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLine)
	return &Client{
		stdin:  json.NewEncoder(w),
		stdout: scanner,
		writer: w,
		reader: r,
	}
}

// roundTrip sends a request and reads one line of response. The exchange runs
// in its own goroutine so ctx can interrupt a server that never answers.
func (c *Client) roundTrip(ctx context.Context, req any, resp any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return ErrAbandoned
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan exchange, 1)
	go func() { done <- c.exchange(req) }()

	select {
	case ex := <-done:
		if ex.err != nil {
			return ex.err
		}
		if err := json.Unmarshal(ex.line, resp); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		return nil
	case <-ctx.Done():
		c.abandon()
		return ctx.Err()
	}
}

type exchange struct {
	line []byte
	err  error
}

func (c *Client) exchange(req any) exchange {
	if err := c.stdin.Encode(req); err != nil {
		return exchange{err: fmt.Errorf("failed to send request: %w", err)}
	}
	if !c.stdout.Scan() {
		if err := c.stdout.Err(); err != nil {
			return exchange{err: fmt.Errorf("error reading response: %w", err)}
		}
		return exchange{err: errors.New("tool server closed stdout unexpectedly")}
	}
	return exchange{line: append([]byte(nil), c.stdout.Bytes()...)}
}

// abandon tears the connection down so the pending exchange goroutine unblocks.
func (c *Client) abandon() {
	c.broken = true
	c.closeWriter()
	if rc, ok := c.reader.(io.Closer); ok {
		_ = rc.Close()
	}
	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
}

func (c *Client) closeWriter() error {
	c.closeOnce.Do(func() { c.closeErr = c.writer.Close() })
	return c.closeErr
}

// Call invokes a tool by name. The server already renders tool failures as
// "Error: ..." results; a returned error means the server itself failed.
func (c *Client) Call(ctx context.Context, name string, args tools.Arguments) (string, error) {
	req := protocol.ToolCallRequest{
		Method: protocol.MethodCallTool,
		Name:   name,
		Args:   args,
	}

	var resp protocol.ToolCallResponse
	if err := c.roundTrip(ctx, req, &resp); err != nil {
		return "", err
	}
	if resp.Error != "" {
		return "", fmt.Errorf("tool server error: %s", resp.Error)
	}
	return resp.Result, nil
}

// List retrieves all available tools from the server. Handlers are nil.
func (c *Client) List() ([]tools.Definition, error) {
	req := protocol.ListToolsRequest{Method: protocol.MethodListTools}

	var resp protocol.ListToolsResponse
	if err := c.roundTrip(context.Background(), req, &resp); err != nil {
		return nil, fmt.Errorf("list_tools: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("tool server error: %s", resp.Error)
	}
	return resp.Tools, nil
}

func (c *Client) Close() error {
	err := c.closeWriter()
	if c.cmd == nil {
		return err
	}
	// Closing stdin lets the server exit on EOF; kill it if it is still around.
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
	}
	_ = c.cmd.Wait()
	return nil
}
