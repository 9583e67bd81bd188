package mcpstdio

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/mcprouter/internal/domain"
	"github.com/i2y/mcprouter/pkg/shared/mcpjsonrpc"
)

// fakeProvider scripts the far side of the stdio stream: it reads
// newline-delimited requests and answers each through the handler. A nil
// handler response means "never answer", which is how the timeout paths are
// exercised. closeAfter > 0 closes the outbound stream after that many
// answered calls, simulating a provider crash.
type fakeProvider struct {
	handler    func(req mcpjsonrpc.Request) *mcpjsonrpc.Response
	closeAfter int

	mu       sync.Mutex
	requests []mcpjsonrpc.Request
	dials    int
}

func (f *fakeProvider) dial() (io.WriteCloser, io.ReadCloser, func() error, error) {
	f.mu.Lock()
	f.dials++
	f.mu.Unlock()

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()

	go func() {
		defer respW.Close()
		answered := 0
		scanner := bufio.NewScanner(reqR)
		for scanner.Scan() {
			var req mcpjsonrpc.Request
			if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
				continue
			}
			f.mu.Lock()
			f.requests = append(f.requests, req)
			f.mu.Unlock()

			if req.ID == nil {
				continue // notification, nothing to answer
			}
			resp := f.handler(req)
			if resp == nil {
				continue
			}
			resp.Version = mcpjsonrpc.Version
			resp.ID = req.ID
			data, _ := json.Marshal(resp)
			if _, err := respW.Write(append(data, '\n')); err != nil {
				return
			}
			answered++
			if f.closeAfter > 0 && answered >= f.closeAfter {
				return
			}
		}
	}()

	shutdown := func() error {
		_ = reqR.Close()
		return nil
	}
	return reqW, respR, shutdown, nil
}

func (f *fakeProvider) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeProvider) callsTo(method string) []mcpjsonrpc.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []mcpjsonrpc.Request
	for _, r := range f.requests {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

func initResult(t *testing.T) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(map[string]interface{}{
		"protocolVersion": protocolVersion,
		"serverInfo":      map[string]string{"name": "fake", "version": "0.0.0"},
	})
	require.NoError(t, err)
	return data
}

func toolResult(t *testing.T, text string, isError bool) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(mcpjsonrpc.CallToolResult{
		Content: []mcpjsonrpc.Content{{Type: "text", Text: text}},
		IsError: isError,
	})
	require.NoError(t, err)
	return data
}

// respondWith builds a handler that completes the initialize handshake and
// answers every tools/call with the given response.
func respondWith(t *testing.T, call func(req mcpjsonrpc.Request) *mcpjsonrpc.Response) func(mcpjsonrpc.Request) *mcpjsonrpc.Response {
	t.Helper()
	return func(req mcpjsonrpc.Request) *mcpjsonrpc.Response {
		switch req.Method {
		case mcpjsonrpc.MethodInitialize:
			return &mcpjsonrpc.Response{Result: initResult(t)}
		case mcpjsonrpc.MethodToolsCall:
			return call(req)
		default:
			return &mcpjsonrpc.Response{Error: &mcpjsonrpc.Error{
				Code: mcpjsonrpc.CodeMethodNotFound, Message: "unexpected method"}}
		}
	}
}

func newTestInvoker(t *testing.T, fake *fakeProvider, timeout time.Duration) *Invoker {
	t.Helper()
	registry, err := domain.NewRegistry(domain.DefaultDescriptors())
	require.NoError(t, err)

	inv := New(Config{Command: "fake-provider", Timeout: timeout}, registry,
		slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	inv.dial = fake.dial
	t.Cleanup(func() { _ = inv.Close() })
	return inv
}

func callToolParams(t *testing.T, req mcpjsonrpc.Request) mcpjsonrpc.CallToolParams {
	t.Helper()
	data, err := json.Marshal(req.Params)
	require.NoError(t, err)
	var params mcpjsonrpc.CallToolParams
	require.NoError(t, json.Unmarshal(data, &params))
	return params
}

func TestInvoker_Success(t *testing.T) {
	fake := &fakeProvider{}
	fake.handler = respondWith(t, func(req mcpjsonrpc.Request) *mcpjsonrpc.Response {
		return &mcpjsonrpc.Response{Result: toolResult(t, "Current weather in Paris: 18 C", false)}
	})
	inv := newTestInvoker(t, fake, time.Second)

	got, err := inv.Invoke(context.Background(), domain.CapabilityWeather,
		map[string]interface{}{"city": "Paris"})

	require.NoError(t, err)
	assert.Equal(t, "Current weather in Paris: 18 C", got)

	calls := fake.callsTo(mcpjsonrpc.MethodToolsCall)
	require.Len(t, calls, 1)
	params := callToolParams(t, calls[0])
	assert.Equal(t, "get_current_weather", params.Name)
	assert.Equal(t, "Paris", params.Arguments["city"])

	// Handshake ran exactly once and in order: initialize then initialized.
	require.Len(t, fake.callsTo(mcpjsonrpc.MethodInitialize), 1)
	require.Len(t, fake.callsTo(mcpjsonrpc.MethodNotificationInitialized), 1)
}

func TestInvoker_UnregisteredCapability(t *testing.T) {
	fake := &fakeProvider{}
	inv := newTestInvoker(t, fake, time.Second)

	_, err := inv.Invoke(context.Background(), domain.Capability("bogus"), nil)

	var invErr *domain.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, domain.ErrUnknownCapability, invErr.Kind)
	// Registry misses never touch the provider.
	assert.Equal(t, 0, fake.dialCount())
}

func TestInvoker_RPCErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		rpcErr   *mcpjsonrpc.Error
		wantKind domain.InvocationErrorKind
	}{
		{
			name:     "method not found maps to unknown capability",
			rpcErr:   &mcpjsonrpc.Error{Code: mcpjsonrpc.CodeMethodNotFound, Message: "no such tool"},
			wantKind: domain.ErrUnknownCapability,
		},
		{
			name:     "tool not found server error maps to unknown capability",
			rpcErr:   &mcpjsonrpc.Error{Code: mcpjsonrpc.CodeServerErrorToolNotFound, Message: "tool missing"},
			wantKind: domain.ErrUnknownCapability,
		},
		{
			name:     "not-found message maps to unknown capability regardless of code",
			rpcErr:   &mcpjsonrpc.Error{Code: mcpjsonrpc.CodeInternalError, Message: "tool Not Found in registry"},
			wantKind: domain.ErrUnknownCapability,
		},
		{
			name:     "invalid params maps to invalid arguments",
			rpcErr:   &mcpjsonrpc.Error{Code: mcpjsonrpc.CodeInvalidParams, Message: "city must be a string"},
			wantKind: domain.ErrInvalidArguments,
		},
		{
			name:     "anything else maps to provider error",
			rpcErr:   &mcpjsonrpc.Error{Code: mcpjsonrpc.CodeInternalError, Message: "boom"},
			wantKind: domain.ErrProviderError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeProvider{}
			fake.handler = respondWith(t, func(req mcpjsonrpc.Request) *mcpjsonrpc.Response {
				return &mcpjsonrpc.Response{Error: tt.rpcErr}
			})
			inv := newTestInvoker(t, fake, time.Second)

			_, err := inv.Invoke(context.Background(), domain.CapabilityWeather,
				map[string]interface{}{"city": "Paris"})

			var invErr *domain.InvocationError
			require.ErrorAs(t, err, &invErr)
			assert.Equal(t, tt.wantKind, invErr.Kind)
			assert.Contains(t, invErr.Message, tt.rpcErr.Message)
		})
	}
}

func TestInvoker_ToolLevelErrorResult(t *testing.T) {
	fake := &fakeProvider{}
	fake.handler = respondWith(t, func(req mcpjsonrpc.Request) *mcpjsonrpc.Response {
		return &mcpjsonrpc.Response{Result: toolResult(t, "Error fetching weather: upstream 503", true)}
	})
	inv := newTestInvoker(t, fake, time.Second)

	_, err := inv.Invoke(context.Background(), domain.CapabilityWeather,
		map[string]interface{}{"city": "Paris"})

	var invErr *domain.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, domain.ErrProviderError, invErr.Kind)
	assert.Equal(t, "Error fetching weather: upstream 503", invErr.Message)
}

func TestInvoker_Timeout(t *testing.T) {
	fake := &fakeProvider{}
	fake.handler = respondWith(t, func(req mcpjsonrpc.Request) *mcpjsonrpc.Response {
		return nil // swallow the call
	})
	inv := newTestInvoker(t, fake, 50*time.Millisecond)

	_, err := inv.Invoke(context.Background(), domain.CapabilityWeather,
		map[string]interface{}{"city": "Paris"})

	var invErr *domain.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, domain.ErrTimeout, invErr.Kind)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestInvoker_CallerCancellation(t *testing.T) {
	fake := &fakeProvider{}
	fake.handler = respondWith(t, func(req mcpjsonrpc.Request) *mcpjsonrpc.Response {
		return nil
	})
	inv := newTestInvoker(t, fake, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := inv.Invoke(ctx, domain.CapabilityWeather, map[string]interface{}{"city": "Paris"})

	var invErr *domain.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, domain.ErrTimeout, invErr.Kind)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestInvoker_DialFailure(t *testing.T) {
	registry, err := domain.NewRegistry(domain.DefaultDescriptors())
	require.NoError(t, err)
	inv := New(Config{Command: "missing-provider"}, registry,
		slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	inv.dial = func() (io.WriteCloser, io.ReadCloser, func() error, error) {
		return nil, nil, nil, errors.New("executable file not found")
	}

	_, err = inv.Invoke(context.Background(), domain.CapabilityWeather,
		map[string]interface{}{"city": "Paris"})

	var invErr *domain.InvocationError
	require.ErrorAs(t, err, &invErr)
	assert.Equal(t, domain.ErrProviderUnavailable, invErr.Kind)
	assert.Contains(t, invErr.Message, "missing-provider")
}

func TestInvoker_ConnectionReuse(t *testing.T) {
	fake := &fakeProvider{}
	fake.handler = respondWith(t, func(req mcpjsonrpc.Request) *mcpjsonrpc.Response {
		return &mcpjsonrpc.Response{Result: toolResult(t, "ok", false)}
	})
	inv := newTestInvoker(t, fake, time.Second)

	for i := 0; i < 3; i++ {
		_, err := inv.Invoke(context.Background(), domain.CapabilityPosts,
			map[string]interface{}{"limit": 5})
		require.NoError(t, err)
	}

	assert.Equal(t, 1, fake.dialCount())
	// One handshake, three tool calls over the same stream.
	assert.Len(t, fake.callsTo(mcpjsonrpc.MethodInitialize), 1)
	assert.Len(t, fake.callsTo(mcpjsonrpc.MethodToolsCall), 3)
}

func TestInvoker_RedialsAfterProviderExit(t *testing.T) {
	fake := &fakeProvider{closeAfter: 2} // initialize + first tools/call, then EOF
	fake.handler = respondWith(t, func(req mcpjsonrpc.Request) *mcpjsonrpc.Response {
		return &mcpjsonrpc.Response{Result: toolResult(t, "ok", false)}
	})
	inv := newTestInvoker(t, fake, time.Second)

	_, err := inv.Invoke(context.Background(), domain.CapabilityAgriInfo,
		map[string]interface{}{"query": "soil"})
	require.NoError(t, err)

	// Wait for the read loop to notice the dead stream and clear the
	// connection slot.
	require.Eventually(t, func() bool {
		inv.mu.Lock()
		defer inv.mu.Unlock()
		return inv.conn == nil
	}, time.Second, 5*time.Millisecond)

	_, err = inv.Invoke(context.Background(), domain.CapabilityAgriInfo,
		map[string]interface{}{"query": "soil"})
	require.NoError(t, err)

	assert.Equal(t, 2, fake.dialCount())
}

// A timed-out request must not poison the connection: the late reply is
// discarded when it finally arrives and the next invocation runs over the
// same stream, with no redial.
func TestInvoker_LateResponseDiscardedConnectionReused(t *testing.T) {
	toolCalls := 0 // touched only by the fake's serve goroutine
	fake := &fakeProvider{}
	fake.handler = respondWith(t, func(req mcpjsonrpc.Request) *mcpjsonrpc.Response {
		toolCalls++
		if toolCalls == 1 {
			time.Sleep(150 * time.Millisecond) // answer well past the caller's deadline
		}
		return &mcpjsonrpc.Response{Result: toolResult(t, "ok", false)}
	})
	inv := newTestInvoker(t, fake, 5*time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := inv.Invoke(ctx, domain.CapabilityWeather,
		map[string]interface{}{"city": "Paris"})
	var invErr *domain.InvocationError
	require.ErrorAs(t, err, &invErr)
	require.Equal(t, domain.ErrTimeout, invErr.Kind)

	// The fake is still asleep on the abandoned request; this call queues
	// behind the late reply and must still come back clean.
	got, err := inv.Invoke(context.Background(), domain.CapabilityWeather,
		map[string]interface{}{"city": "Oslo"})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, fake.dialCount())
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// A response delivered just before the stream dies is a success, not a
// stream-closed failure, regardless of which event the caller observes first.
func TestCall_DeliveredResponseWinsOverStreamClose(t *testing.T) {
	conn := &providerConn{
		in:      nopWriteCloser{io.Discard},
		pending: make(map[int64]chan *mcpjsonrpc.Response),
		done:    make(chan struct{}),
	}
	payload := toolResult(t, "ok", false)

	// Mimic the read loop's last gasp: deliver the pending response, then
	// close the stream.
	go func() {
		for {
			conn.pendingMu.Lock()
			ch, ok := conn.pending[1]
			if ok {
				delete(conn.pending, 1)
			}
			conn.pendingMu.Unlock()
			if ok {
				id := int64(1)
				ch <- &mcpjsonrpc.Response{Version: mcpjsonrpc.Version, ID: &id, Result: payload}
				close(conn.done)
				return
			}
			time.Sleep(time.Millisecond)
		}
	}()

	resp, err := conn.call(context.Background(), mcpjsonrpc.MethodToolsCall, nil)

	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Nil(t, resp.Error)
}

func TestInvoker_CloseWithoutConnection(t *testing.T) {
	registry, err := domain.NewRegistry(domain.DefaultDescriptors())
	require.NoError(t, err)
	inv := New(Config{Command: "fake-provider"}, registry,
		slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))

	assert.NoError(t, inv.Close())
}
