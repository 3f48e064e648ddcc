package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agentrt/miroflow-go/agent/model"
	"github.com/agentrt/miroflow-go/agent/toolerrors"
)

// StdioOptions configures a subprocess-backed tool server connection.
type StdioOptions struct {
	Command string
	Args    []string
	Env     map[string]string
	Dir     string

	ProtocolVersion string
	ClientName      string
	ClientVersion   string
	InitTimeout     time.Duration
}

const defaultProtocolVersion = "2024-11-05"

type callResult struct {
	result json.RawMessage
	err    *rpcError
}

// StdioCaller implements Caller over a length-delimited JSON-RPC stream to a
// spawned child process's stdin/stdout, per the MCP stdio transport.
type StdioCaller struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *stderrRing

	pendingMu sync.Mutex
	pending   map[uint64]chan callResult
	nextID    uint64

	writeMu sync.Mutex

	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
	closeErrMu sync.Mutex
}

// NewStdioCaller spawns the child process, wires its stdin/stdout, and
// performs the MCP initialize handshake. Failures to spawn the process or to
// complete the handshake in time are returned as a KindTransport error; a
// JSON-RPC error reply to initialize is returned as KindToolExecution.
func NewStdioCaller(ctx context.Context, opts StdioOptions) (*StdioCaller, error) {
	if opts.Command == "" {
		return nil, toolerrors.NewKind(toolerrors.KindTransport, "stdio tool server: command is required")
	}
	initTimeout := opts.InitTimeout
	if initTimeout <= 0 {
		initTimeout = DefaultConnectTimeout
	}

	cmd := exec.CommandContext(ctx, opts.Command, opts.Args...)
	cmd.Dir = opts.Dir
	if len(opts.Env) > 0 {
		env := cmd.Environ()
		for k, v := range opts.Env {
			env = append(env, k+"="+v)
		}
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, toolerrors.NewKindWithCause(toolerrors.KindTransport, "stdio tool server: stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, toolerrors.NewKindWithCause(toolerrors.KindTransport, "stdio tool server: stdout pipe", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, toolerrors.NewKindWithCause(toolerrors.KindTransport, "stdio tool server: stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, toolerrors.NewKindWithCause(toolerrors.KindTransport, "stdio tool server: failed to start", err)
	}

	ring := newStderrRing(4096)
	go ring.drain(stderrPipe)

	c := &StdioCaller{
		cmd:     cmd,
		stdin:   stdin,
		stderr:  ring,
		pending: make(map[uint64]chan callResult),
		closed:  make(chan struct{}),
	}
	go c.readLoop(stdout)

	initCtx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	if err := c.initialize(initCtx, opts); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *StdioCaller) initialize(ctx context.Context, opts StdioOptions) error {
	protocolVersion := opts.ProtocolVersion
	if protocolVersion == "" {
		protocolVersion = defaultProtocolVersion
	}
	clientName := opts.ClientName
	if clientName == "" {
		clientName = "miroflow-go"
	}
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": opts.ClientVersion,
		},
		"capabilities": map[string]any{},
	}
	var result initializeResult
	return c.call(ctx, "initialize", params, &result)
}

// ListTools implements Caller.
func (c *StdioCaller) ListTools(ctx context.Context) ([]model.ToolDefinition, error) {
	var raw json.RawMessage
	if err := c.call(ctx, "tools/list", map[string]any{}, &raw); err != nil {
		return nil, err
	}
	schemas, err := decodeToolSchemas(raw)
	if err != nil {
		return nil, err
	}
	defs := make([]model.ToolDefinition, 0, len(schemas))
	for _, s := range schemas {
		defs = append(defs, model.ToolDefinition{
			ToolName:    s.Name,
			Description: s.Description,
			InputSchema: s.InputSchema,
		})
	}
	return defs, nil
}

// CallTool implements Caller.
func (c *StdioCaller) CallTool(ctx context.Context, toolName string, arguments map[string]any) (string, error) {
	params := map[string]any{"name": toolName, "arguments": arguments}
	callCtx, cancel := context.WithTimeout(ctx, DefaultCallTimeout)
	defer cancel()
	var raw json.RawMessage
	if err := c.call(callCtx, "tools/call", params, &raw); err != nil {
		return "", err
	}
	return normalizeToolResult(raw)
}

func (c *StdioCaller) call(ctx context.Context, method string, params any, result any) error {
	id := atomic.AddUint64(&c.nextID, 1)
	ch := make(chan callResult, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	req := rpcRequest{JSONRPC: "2.0", Method: method, ID: id, Params: params}
	if err := c.writeMessage(req); err != nil {
		return toolerrors.NewKindWithCause(toolerrors.KindTransport, "stdio tool server: write failed", err)
	}

	select {
	case res := <-ch:
		if res.err != nil {
			return toolerrors.NewKindWithCause(toolerrors.KindToolExecution, fmt.Sprintf("%s failed", method), res.err)
		}
		if result == nil || len(res.result) == 0 {
			return nil
		}
		if raw, ok := result.(*json.RawMessage); ok {
			*raw = res.result
			return nil
		}
		if err := json.Unmarshal(res.result, result); err != nil {
			return toolerrors.NewKindWithCause(toolerrors.KindToolExecution, fmt.Sprintf("%s: malformed result", method), err)
		}
		return nil
	case <-ctx.Done():
		return toolerrors.NewKindWithCause(toolerrors.KindTransport, fmt.Sprintf("%s: context done", method), ctx.Err())
	case <-c.closed:
		return toolerrors.NewKind(toolerrors.KindTransport, fmt.Sprintf("%s: connection closed: %s", method, c.stderr.String()))
	}
}

func (c *StdioCaller) writeMessage(req rpcRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := fmt.Fprintf(c.stdin, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	_, err = c.stdin.Write(body)
	return err
}

func (c *StdioCaller) readLoop(stdout io.Reader) {
	reader := bufio.NewReader(stdout)
	for {
		raw, err := readFrame(reader)
		if err != nil {
			c.failAllPending()
			return
		}
		var resp rpcResponse
		if err := json.Unmarshal(raw, &resp); err != nil {
			continue
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[resp.ID]
		c.pendingMu.Unlock()
		if ok {
			ch <- callResult{result: resp.Result, err: resp.Error}
		}
	}
}

func (c *StdioCaller) failAllPending() {
	c.pendingMu.Lock()
	pending := c.pending
	c.pending = make(map[uint64]chan callResult)
	c.pendingMu.Unlock()
	for _, ch := range pending {
		ch <- callResult{err: &rpcError{Message: "connection closed: " + c.stderr.String()}}
	}
}

func readFrame(r *bufio.Reader) ([]byte, error) {
	contentLength := -1
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		if strings.HasPrefix(strings.ToLower(line), "content-length:") {
			v := strings.TrimSpace(line[len("content-length:"):])
			n, err := strconv.Atoi(v)
			if err != nil {
				return nil, fmt.Errorf("invalid Content-Length header %q: %w", v, err)
			}
			contentLength = n
		}
	}
	if contentLength < 0 {
		return nil, fmt.Errorf("missing Content-Length header")
	}
	buf := make([]byte, contentLength)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close terminates the subprocess and releases resources. Safe to call
// multiple times.
func (c *StdioCaller) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		_ = c.stdin.Close()
		if c.cmd.Process != nil {
			_ = c.cmd.Process.Kill()
		}
		c.closeErrMu.Lock()
		c.closeErr = c.cmd.Wait()
		c.closeErrMu.Unlock()
	})
	c.closeErrMu.Lock()
	defer c.closeErrMu.Unlock()
	return c.closeErr
}

// stderrRing captures the tail of a tool server's stderr output so transport
// errors can be reported with useful context even when the server never
// wrote anything informative to stdout before dying.
type stderrRing struct {
	mu  sync.Mutex
	buf bytes.Buffer
	cap int
}

func newStderrRing(capacity int) *stderrRing {
	return &stderrRing{cap: capacity}
}

func (r *stderrRing) drain(rd io.Reader) {
	scanner := bufio.NewScanner(rd)
	for scanner.Scan() {
		r.mu.Lock()
		r.buf.WriteString(scanner.Text())
		r.buf.WriteByte('\n')
		if r.buf.Len() > r.cap {
			excess := r.buf.Len() - r.cap
			r.buf.Next(excess)
		}
		r.mu.Unlock()
	}
}

func (r *stderrRing) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}
