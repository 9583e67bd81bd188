// Package mcpstdio implements the usecase.ToolInvoker against an MCP
// capability provider reached over a duplexed stdio byte stream. The provider
// subprocess is spawned lazily on first use and one connection serves all
// sequential and concurrent invocations: requests are correlated to responses
// by JSON-RPC ID through a pending-response map, so concurrent run() calls
// multiplex safely over the shared stream. Frames are newline-delimited
// JSON-RPC 2.0, the format MCP stdio servers speak.
package mcpstdio

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/i2y/mcprouter/internal/domain"
	"github.com/i2y/mcprouter/pkg/shared/mcpjsonrpc"
)

const (
	protocolVersion = "2025-03-26"
	clientName      = "mcprouter"
	clientVersion   = "0.1.0"

	// DefaultTimeout bounds how long one invocation waits for the
	// provider's response when no timeout is configured.
	DefaultTimeout = 30 * time.Second

	// maxFrameBytes caps a single response frame; anything larger is a
	// protocol violation, not a legitimate tool result.
	maxFrameBytes = 4 * 1024 * 1024
)

// Config holds the provider process settings.
type Config struct {
	Command string
	Args    []string
	Env     []string // extra environment entries for the provider process
	Timeout time.Duration
}

// Invoker is the stdio invocation client. Safe for concurrent use.
type Invoker struct {
	cfg      Config
	registry *domain.Registry
	logger   *slog.Logger

	mu   sync.Mutex // guards conn lifecycle
	conn *providerConn

	// dial is swapped out in tests to run against an in-memory provider.
	dial func() (io.WriteCloser, io.ReadCloser, func() error, error)
}

// New creates an invoker for the configured provider command. No process is
// started until the first Invoke.
func New(cfg Config, registry *domain.Registry, logger *slog.Logger) *Invoker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	inv := &Invoker{
		cfg:      cfg,
		registry: registry,
		logger:   logger.With("component", "mcpstdio_invoker"),
	}
	inv.dial = inv.spawn
	return inv
}

// Invoke serializes one (capability, arguments) pair into a tools/call
// request and maps every failure mode to a distinct invocation error kind.
// On success the provider's text content is returned unmodified.
func (inv *Invoker) Invoke(ctx context.Context, capability domain.Capability, args map[string]interface{}) (string, error) {
	desc, ok := inv.registry.Lookup(capability)
	if !ok {
		return "", domain.NewInvocationError(domain.ErrUnknownCapability,
			"capability %q is not registered", capability)
	}

	conn, err := inv.connection(ctx)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, inv.cfg.Timeout)
	defer cancel()

	resp, err := conn.call(ctx, mcpjsonrpc.MethodToolsCall, mcpjsonrpc.CallToolParams{
		Name:      desc.Tool,
		Arguments: args,
	})
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return "", &domain.InvocationError{
				Kind:    domain.ErrTimeout,
				Message: fmt.Sprintf("provider did not respond within %s for tool %q", inv.cfg.Timeout, desc.Tool),
				Err:     err,
			}
		case errors.Is(err, context.Canceled):
			// Caller abandoned the request; the pending slot has already
			// been dropped, so the late response cannot block the
			// connection for other requests.
			return "", &domain.InvocationError{
				Kind:    domain.ErrTimeout,
				Message: fmt.Sprintf("request for tool %q abandoned by caller", desc.Tool),
				Err:     err,
			}
		default:
			return "", &domain.InvocationError{
				Kind:    domain.ErrProviderUnavailable,
				Message: fmt.Sprintf("provider connection failed during %q: %v", desc.Tool, err),
				Err:     err,
			}
		}
	}

	if resp.Error != nil {
		return "", mapRPCError(desc.Tool, resp.Error)
	}

	var result mcpjsonrpc.CallToolResult
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return "", domain.NewInvocationError(domain.ErrProviderError,
			"malformed tool result for %q: %v", desc.Tool, err)
	}

	text := joinText(result.Content)
	if result.IsError {
		return "", domain.NewInvocationError(domain.ErrProviderError, "%s", text)
	}
	return text, nil
}

// Close tears down the provider connection. Safe to call when no connection
// was ever established.
func (inv *Invoker) Close() error {
	inv.mu.Lock()
	conn := inv.conn
	inv.conn = nil
	inv.mu.Unlock()

	if conn == nil {
		return nil
	}
	inv.logger.Info("Closing provider connection")
	return conn.shutdown()
}

// connection returns the live provider connection, establishing it (spawn,
// MCP initialize handshake) on first use or after the previous one died.
func (inv *Invoker) connection(ctx context.Context) (*providerConn, error) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.conn != nil {
		select {
		case <-inv.conn.done:
			// Reader exited; the process is gone. Drop the dead connection
			// so this request dials a fresh one.
			inv.conn = nil
		default:
			return inv.conn, nil
		}
	}

	in, out, shutdown, err := inv.dial()
	if err != nil {
		return nil, &domain.InvocationError{
			Kind:    domain.ErrProviderUnavailable,
			Message: fmt.Sprintf("cannot start provider %q: %v", inv.cfg.Command, err),
			Err:     err,
		}
	}

	conn := &providerConn{
		in:       in,
		shutdown: shutdown,
		pending:  make(map[int64]chan *mcpjsonrpc.Response),
		done:     make(chan struct{}),
	}
	go inv.readLoop(conn, out)

	if err := inv.handshake(ctx, conn); err != nil {
		_ = in.Close()
		go func() { _ = shutdown() }() // reap without blocking this request
		return nil, &domain.InvocationError{
			Kind:    domain.ErrProviderUnavailable,
			Message: fmt.Sprintf("provider handshake failed: %v", err),
			Err:     err,
		}
	}

	inv.logger.Info("Provider connection established", slog.String("command", inv.cfg.Command))
	inv.conn = conn
	return conn, nil
}

// handshake performs the MCP initialize exchange followed by the initialized
// notification.
func (inv *Invoker) handshake(ctx context.Context, conn *providerConn) error {
	ctx, cancel := context.WithTimeout(ctx, inv.cfg.Timeout)
	defer cancel()

	resp, err := conn.call(ctx, mcpjsonrpc.MethodInitialize, mcpjsonrpc.InitializeParams{
		ProtocolVersion: protocolVersion,
		Capabilities:    map[string]interface{}{},
		ClientInfo:      mcpjsonrpc.Implementation{Name: clientName, Version: clientVersion},
	})
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("initialize rejected: %d %s", resp.Error.Code, resp.Error.Message)
	}
	return conn.notify(mcpjsonrpc.MethodNotificationInitialized, nil)
}

// spawn starts the provider subprocess. Stderr is passed through so provider
// logs stay visible; stdout carries JSON-RPC frames only.
func (inv *Invoker) spawn() (io.WriteCloser, io.ReadCloser, func() error, error) {
	cmd := exec.Command(inv.cfg.Command, inv.cfg.Args...)
	cmd.Env = append(os.Environ(), inv.cfg.Env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, nil, err
	}

	shutdown := func() error {
		// Closing stdin signals EOF; a well-behaved MCP stdio server exits.
		_ = stdin.Close()
		return cmd.Wait()
	}
	return stdin, stdout, shutdown, nil
}

// readLoop consumes response frames and delivers each to the pending request
// it correlates with. Responses whose ID is no longer pending (late replies
// to abandoned requests) are discarded. Exits when the provider closes its
// stdout; all in-flight calls then fail with a connection error and the next
// Invoke dials a fresh connection.
func (inv *Invoker) readLoop(conn *providerConn, out io.ReadCloser) {
	defer out.Close()

	scanner := bufio.NewScanner(out)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue // tolerate stray output on the frame stream
		}
		// Copy before unmarshal: Result aliases the scanner's buffer.
		frame := append([]byte(nil), line...)

		var resp mcpjsonrpc.Response
		if err := json.Unmarshal(frame, &resp); err != nil {
			inv.logger.Warn("Discarding undecodable frame", slog.Any("error", err))
			continue
		}
		if resp.ID == nil {
			// Server-initiated notification; this client subscribes to none.
			continue
		}

		conn.pendingMu.Lock()
		ch, ok := conn.pending[*resp.ID]
		if ok {
			delete(conn.pending, *resp.ID)
		}
		conn.pendingMu.Unlock()

		if !ok {
			inv.logger.Debug("Discarding late or unknown response", slog.Int64("id", *resp.ID))
			continue
		}
		ch <- &resp
	}

	conn.err = scanner.Err() // nil on clean EOF
	close(conn.done)

	inv.mu.Lock()
	if inv.conn == conn {
		inv.conn = nil
	}
	inv.mu.Unlock()

	if conn.err != nil {
		inv.logger.Warn("Provider stream closed", slog.Any("error", conn.err))
	} else {
		inv.logger.Info("Provider stream closed")
	}
}

// providerConn is one live connection to the provider process.
type providerConn struct {
	in       io.WriteCloser
	shutdown func() error

	writeMu sync.Mutex // serializes frame writes
	seq     atomic.Int64

	pendingMu sync.Mutex
	pending   map[int64]chan *mcpjsonrpc.Response

	done chan struct{} // closed by readLoop on stream end
	err  error         // set before done is closed
}

// call sends one request and waits for its correlated response, the caller's
// deadline, or connection death, whichever comes first.
func (c *providerConn) call(ctx context.Context, method string, params interface{}) (*mcpjsonrpc.Response, error) {
	id := c.seq.Add(1)
	ch := make(chan *mcpjsonrpc.Response, 1)

	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()

	if err := c.write(mcpjsonrpc.Request{
		Version: mcpjsonrpc.Version,
		Method:  method,
		Params:  params,
		ID:      &id,
	}); err != nil {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, err
	}

	select {
	case resp := <-ch:
		return resp, nil
	case <-ctx.Done():
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
		return nil, ctx.Err()
	case <-c.done:
		// The response may have been delivered just before the stream died;
		// a delivered result beats the closure.
		select {
		case resp := <-ch:
			return resp, nil
		default:
		}
		if c.err != nil {
			return nil, fmt.Errorf("provider stream closed: %w", c.err)
		}
		return nil, fmt.Errorf("provider stream closed")
	}
}

// notify sends a request without an ID; no response is expected.
func (c *providerConn) notify(method string, params interface{}) error {
	return c.write(mcpjsonrpc.Request{
		Version: mcpjsonrpc.Version,
		Method:  method,
		Params:  params,
	})
}

func (c *providerConn) write(req mcpjsonrpc.Request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.in.Write(data)
	return err
}

// mapRPCError converts a protocol-level error into the invocation taxonomy.
// Unknown-tool responses indicate a registry/provider mismatch and are kept
// distinct from runtime provider failures; invalid-argument rejections carry
// the provider's message verbatim.
func mapRPCError(tool string, rpcErr *mcpjsonrpc.Error) *domain.InvocationError {
	switch {
	case rpcErr.Code == mcpjsonrpc.CodeMethodNotFound,
		rpcErr.Code == mcpjsonrpc.CodeServerErrorToolNotFound,
		strings.Contains(strings.ToLower(rpcErr.Message), "not found"):
		return domain.NewInvocationError(domain.ErrUnknownCapability,
			"provider does not recognize tool %q: %s", tool, rpcErr.Message)
	case rpcErr.Code == mcpjsonrpc.CodeInvalidParams:
		return domain.NewInvocationError(domain.ErrInvalidArguments,
			"provider rejected arguments for %q: %s", tool, rpcErr.Message)
	default:
		return domain.NewInvocationError(domain.ErrProviderError,
			"provider error %d on %q: %s", rpcErr.Code, tool, rpcErr.Message)
	}
}

// joinText concatenates the text blocks of a tool result.
func joinText(content []mcpjsonrpc.Content) string {
	parts := make([]string, 0, len(content))
	for _, c := range content {
		if c.Type == "text" {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, "\n")
}
