package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket implements Transport over a WebSocket connection. Server-push
// notifications are routed to their subscription channel by the remote
// subscription id; request/response calls are routed by request id.
type WebSocket struct {
	url     string
	timeout time.Duration

	writeMu sync.Mutex
	conn    *websocket.Conn

	connOnce sync.Once
	connErr  error

	nextID atomic.Uint64

	callMu sync.Mutex
	calls  map[uint64]chan jsonRPCResponse

	subMu sync.Mutex
	subs  map[string]chan []byte

	closed    chan struct{}
	closeOnce sync.Once
}

// NewWebSocket creates a WebSocket transport. The connection is established
// lazily on the first Call or Subscribe.
func NewWebSocket(url string, timeout time.Duration) *WebSocket {
	return &WebSocket{
		url:     url,
		timeout: timeout,
		calls:   make(map[uint64]chan jsonRPCResponse),
		subs:    make(map[string]chan []byte),
		closed:  make(chan struct{}),
	}
}

// connect establishes the WebSocket connection (at most once).
func (ws *WebSocket) connect(ctx context.Context) error {
	ws.connOnce.Do(func() {
		dialer := websocket.Dialer{}
		conn, _, err := dialer.DialContext(ctx, ws.url, nil)
		if err != nil {
			ws.connErr = fmt.Errorf("transport/ws: dial: %w", err)
			return
		}
		ws.conn = conn
		go ws.readLoop()
	})
	return ws.connErr
}

// Call sends a JSON-RPC request over the WebSocket and waits for its response.
func (ws *WebSocket) Call(ctx context.Context, method string, params ...interface{}) ([]byte, error) {
	if err := ws.connect(ctx); err != nil {
		return nil, err
	}
	if params == nil {
		params = []interface{}{}
	}
	if ws.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, ws.timeout)
		defer cancel()
	}

	id := ws.nextID.Add(1)
	req := jsonRPCRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	}

	ch := make(chan jsonRPCResponse, 1)
	ws.callMu.Lock()
	ws.calls[id] = ch
	ws.callMu.Unlock()
	defer func() {
		ws.callMu.Lock()
		delete(ws.calls, id)
		ws.callMu.Unlock()
	}()

	ws.writeMu.Lock()
	err := ws.conn.WriteJSON(req)
	ws.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("transport/ws: write: %w", err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-ws.closed:
		return nil, fmt.Errorf("transport/ws: connection closed")
	}
}

// Subscribe issues the subscription request and returns a channel carrying
// the raw notification payloads for the returned subscription id.
func (ws *WebSocket) Subscribe(ctx context.Context, method string, params ...interface{}) (<-chan []byte, func(), error) {
	result, err := ws.Call(ctx, method, params...)
	if err != nil {
		return nil, nil, err
	}

	var subID string
	if err := json.Unmarshal(result, &subID); err != nil {
		return nil, nil, fmt.Errorf("transport/ws: parse subscription id: %w", err)
	}

	ch := make(chan []byte, 64)
	ws.subMu.Lock()
	ws.subs[subID] = ch
	ws.subMu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			ws.subMu.Lock()
			delete(ws.subs, subID)
			ws.subMu.Unlock()
			close(ch)
			// Best effort; the remote drops the subscription with the
			// connection anyway.
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_, _ = ws.Call(ctx, "eth_unsubscribe", subID)
		})
	}

	return ch, unsub, nil
}

// Close terminates the WebSocket connection.
func (ws *WebSocket) Close() error {
	ws.closeOnce.Do(func() {
		close(ws.closed)
	})
	if ws.conn != nil {
		return ws.conn.Close()
	}
	return nil
}

// Closed reports a channel that is closed when the connection dies,
// allowing supervisors to trigger reconnection.
func (ws *WebSocket) Closed() <-chan struct{} {
	return ws.closed
}

// readLoop reads messages from the WebSocket and routes them to waiting
// callers or subscription channels.
func (ws *WebSocket) readLoop() {
	defer ws.closeOnce.Do(func() { close(ws.closed) })

	for {
		select {
		case <-ws.closed:
			return
		default:
		}

		_, message, err := ws.conn.ReadMessage()
		if err != nil {
			return
		}

		var envelope struct {
			ID     uint64 `json:"id"`
			Method string `json:"method"`
			Error  *jsonRPCError   `json:"error"`
			Result json.RawMessage `json:"result"`
			Params struct {
				Subscription string          `json:"subscription"`
				Result       json.RawMessage `json:"result"`
			} `json:"params"`
		}
		if err := json.Unmarshal(message, &envelope); err != nil {
			continue
		}

		if envelope.Method == "eth_subscription" {
			ws.subMu.Lock()
			ch, ok := ws.subs[envelope.Params.Subscription]
			ws.subMu.Unlock()
			if ok {
				select {
				case ch <- []byte(envelope.Params.Result):
				case <-ws.closed:
					return
				}
			}
			continue
		}

		if envelope.ID != 0 {
			ws.callMu.Lock()
			ch, ok := ws.calls[envelope.ID]
			ws.callMu.Unlock()
			if ok {
				ch <- jsonRPCResponse{
					ID:     envelope.ID,
					Result: envelope.Result,
					Error:  envelope.Error,
				}
			}
		}
	}
}
