package subrpc

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	maxMessageSize = 32 << 20
	writeTimeout   = 10 * time.Second
)

var ErrTransportClosed = errors.New("transport closed")

// wsTransport multiplexes concurrent calls over one websocket. Responses are
// matched to callers by request id.
type wsTransport struct {
	conn      *websocket.Conn
	idCounter uint64
	writeMu   sync.Mutex

	mu      sync.Mutex
	pending map[uint64]chan rpcResponse
	err     error
	done    chan struct{}

	closeOnce   sync.Once
	shutdownErr error
}

func dialWebsocket(ctx context.Context, endpoint string) (*wsTransport, error) {
	dialer := *websocket.DefaultDialer
	if strings.HasPrefix(strings.ToLower(endpoint), "wss://") {
		dialer.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	conn.SetReadLimit(maxMessageSize)

	t := &wsTransport{
		conn:    conn,
		pending: make(map[uint64]chan rpcResponse),
		done:    make(chan struct{}),
	}
	go t.readLoop()
	return t, nil
}

func (t *wsTransport) Call(ctx context.Context, method string, params []any, result any) error {
	id := atomic.AddUint64(&t.idCounter, 1)
	payload, err := encodeRequest(id, method, params)
	if err != nil {
		return err
	}

	reply := make(chan rpcResponse, 1)
	t.mu.Lock()
	if t.err != nil {
		err := t.err
		t.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	t.pending[id] = reply
	t.mu.Unlock()
	defer t.forget(id)

	if err := t.write(ctx, payload); err != nil {
		return err
	}

	select {
	case resp := <-reply:
		return decodeResult(resp, result)
	case <-ctx.Done():
		return ctx.Err()
	case <-t.done:
		select {
		case resp := <-reply:
			return decodeResult(resp, result)
		default:
		}
		return fmt.Errorf("%w: %v", ErrTransportClosed, t.closeErr())
	}
}

func (t *wsTransport) Close() error {
	t.fail(ErrTransportClosed)
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return t.shutdown(true)
}

// shutdown closes the socket once. The caller holds writeMu.
func (t *wsTransport) shutdown(graceful bool) error {
	t.closeOnce.Do(func() {
		if graceful {
			_ = t.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
		}
		t.shutdownErr = t.conn.Close()
	})
	return t.shutdownErr
}

// write sends one request. Call enforces the caller's deadline; the socket
// only gets a fixed timeout because a failed write leaves it unusable, and
// the transport is closed on any write error.
func (t *wsTransport) write(ctx context.Context, payload []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		t.fail(err)
		_ = t.shutdown(false)
		return err
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		t.fail(err)
		_ = t.shutdown(false)
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return nil
}

func (t *wsTransport) readLoop() {
	for {
		_, message, err := t.conn.ReadMessage()
		if err != nil {
			t.fail(err)
			return
		}
		var resp rpcResponse
		if err := json.Unmarshal(message, &resp); err != nil || resp.ID == 0 {
			// not a reply to one of our calls
			continue
		}
		t.mu.Lock()
		reply, ok := t.pending[resp.ID]
		delete(t.pending, resp.ID)
		t.mu.Unlock()
		if ok {
			reply <- resp
		}
	}
}

func (t *wsTransport) forget(id uint64) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

func (t *wsTransport) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return
	}
	t.err = err
	close(t.done)
}

func (t *wsTransport) closeErr() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}
