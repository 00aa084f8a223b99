// Package mcp reaches a calendar backend that runs as a Model Context
// Protocol server over stdio. Every calendar operation is a tool call.
package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/guilherme-santos/calcmd/calendar"
	"github.com/guilherme-santos/calcmd/internal"
)

const (
	jsonRPCVersion  = "2.0"
	protocolVersion = "2024-11-05"
	maxMessageSize  = 12 * 1024 * 1024
)

type Config struct {
	Command string
	Args    []string
	// Env is added to the environment of the current process.
	Env []string
	Dir string
}

type Transport struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	pending map[int]chan response
	nextID  int
	tools   []string
}

var _ calendar.Transport = (*Transport)(nil)

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id"`
	Method  string          `json:"method,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type response struct {
	result json.RawMessage
	err    error
}

func New(cfg Config, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = internal.NopLogger()
	}
	return &Transport{
		cfg:     cfg,
		logger:  logger,
		pending: make(map[int]chan response),
		nextID:  1,
	}
}

// Open starts the server process and runs the initialize handshake. The
// process is killed when ctx ends before the handshake completes.
func (t *Transport) Open(ctx context.Context) error {
	if strings.TrimSpace(t.cfg.Command) == "" {
		return errors.New("mcp: no server command configured")
	}
	// A previous server, if any, is gone for good.
	_ = t.Close()
	if err := t.start(); err != nil {
		return err
	}

	var init struct {
		ProtocolVersion string `json:"protocolVersion"`
		ServerInfo      struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	raw, err := t.request(ctx, "initialize", map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo":      map[string]any{"name": "calcmd", "version": "1.0.0"},
	})
	if err == nil {
		err = json.Unmarshal(raw, &init)
	}
	if err == nil {
		err = t.notify("notifications/initialized")
	}
	if err != nil {
		_ = t.Close()
		return fmt.Errorf("mcp: initialize: %w", err)
	}

	t.logger.Debug("mcp.initialized", "server", init.ServerInfo.Name, "version", init.ServerInfo.Version, "protocol", init.ProtocolVersion)

	if raw, err := t.request(ctx, "tools/list", map[string]any{}); err == nil {
		var list struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		}
		if json.Unmarshal(raw, &list) == nil {
			t.mu.Lock()
			t.tools = t.tools[:0]
			for _, tool := range list.Tools {
				t.tools = append(t.tools, tool.Name)
			}
			t.mu.Unlock()
		}
	} else {
		t.logger.Debug("mcp.tools_list_failed", "error", err.Error())
	}
	return nil
}

// Tools returns the tool names the server listed during Open.
func (t *Transport) Tools() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.tools...)
}

// Invoke calls the tool named op. The raw tool result, isError included, is
// returned as is.
func (t *Transport) Invoke(ctx context.Context, op string, args internal.Args) (json.RawMessage, error) {
	if args == nil {
		args = internal.Args{}
	}
	return t.request(ctx, "tools/call", map[string]any{
		"name":      op,
		"arguments": args,
	})
}

// Close stops the server. Calls still in flight fail with calendar.ErrClosed.
func (t *Transport) Close() error {
	t.mu.Lock()
	cmd, stdin := t.cmd, t.stdin
	t.cmd, t.stdin = nil, nil
	pending := t.pending
	t.pending = make(map[int]chan response)
	t.mu.Unlock()

	for _, ch := range pending {
		ch <- response{err: calendar.ErrClosed}
	}
	if cmd == nil {
		return nil
	}
	_ = stdin.Close()
	t.kill(cmd)
	t.logger.Debug("mcp.closed")
	return nil
}

func (t *Transport) start() error {
	cmd := exec.Command(t.cfg.Command, t.cfg.Args...)
	cmd.Env = append(append([]string{}, os.Environ()...), t.cfg.Env...)
	cmd.Dir = t.cfg.Dir

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return err
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("mcp: starting %s: %w", t.cfg.Command, err)
	}

	t.mu.Lock()
	t.cmd = cmd
	t.stdin = stdin
	t.mu.Unlock()

	t.logger.Debug("mcp.started", "cmd", t.cfg.Command, "pid", cmd.Process.Pid)

	done := make(chan struct{})
	go t.readLoop(cmd, bufio.NewReaderSize(stdout, 64*1024), done)
	go t.stderrLoop(stderr)
	go t.waitLoop(cmd, done)
	return nil
}

func (t *Transport) request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	t.mu.Lock()
	stdin := t.stdin
	if stdin == nil {
		t.mu.Unlock()
		return nil, calendar.ErrClosed
	}
	id := t.nextID
	t.nextID++
	ch := make(chan response, 1)
	t.pending[id] = ch
	t.mu.Unlock()

	payload, err := json.Marshal(rpcRequest{JSONRPC: jsonRPCVersion, ID: id, Method: method, Params: params})
	if err != nil {
		t.removePending(id)
		return nil, err
	}
	if _, err := stdin.Write(append(payload, '\n')); err != nil {
		t.removePending(id)
		return nil, fmt.Errorf("%w: %v", calendar.ErrClosed, err)
	}

	select {
	case resp := <-ch:
		return resp.result, resp.err
	case <-ctx.Done():
		t.removePending(id)
		return nil, ctx.Err()
	}
}

func (t *Transport) notify(method string) error {
	t.mu.Lock()
	stdin := t.stdin
	t.mu.Unlock()
	if stdin == nil {
		return calendar.ErrClosed
	}
	payload, err := json.Marshal(rpcRequest{JSONRPC: jsonRPCVersion, Method: method})
	if err != nil {
		return err
	}
	_, err = stdin.Write(append(payload, '\n'))
	return err
}

func (t *Transport) readLoop(cmd *exec.Cmd, reader *bufio.Reader, done chan<- struct{}) {
	defer close(done)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		if len(line) > maxMessageSize {
			t.logger.Warn("mcp.message_too_large", "size", len(line))
			t.kill(cmd)
			return
		}
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			t.logger.Warn("mcp.invalid_json", "error", err.Error())
			continue
		}
		// Server notifications and requests are not answers to us.
		if resp.ID == 0 || resp.Method != "" {
			continue
		}
		t.mu.Lock()
		ch := t.pending[resp.ID]
		delete(t.pending, resp.ID)
		t.mu.Unlock()
		if ch == nil {
			continue
		}
		if resp.Error != nil {
			ch <- response{err: &calendar.RemoteError{Code: strconv.Itoa(resp.Error.Code), Message: resp.Error.Message}}
		} else {
			ch <- response{result: resp.Result}
		}
	}
}

func (t *Transport) stderrLoop(stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			t.logger.Debug("mcp.stderr", "message", line)
		}
	}
}

// waitLoop fails every pending call once the process is gone and its
// output fully read.
func (t *Transport) waitLoop(cmd *exec.Cmd, done <-chan struct{}) {
	<-done
	err := cmd.Wait()

	t.mu.Lock()
	if t.cmd != cmd {
		t.mu.Unlock()
		return
	}
	t.cmd = nil
	t.stdin = nil
	pending := t.pending
	t.pending = make(map[int]chan response)
	t.mu.Unlock()

	for _, ch := range pending {
		ch <- response{err: calendar.ErrClosed}
	}
	if err != nil {
		t.logger.Warn("mcp.exited", "error", err.Error())
	} else {
		t.logger.Debug("mcp.exited")
	}
}

func (t *Transport) kill(cmd *exec.Cmd) {
	if cmd == nil || cmd.Process == nil {
		return
	}
	_ = cmd.Process.Kill()
}

func (t *Transport) removePending(id int) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}
