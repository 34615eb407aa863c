package connection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chainreport/internal/application"
	"chainreport/internal/infrastructure/subrpc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeTransport struct {
	handshakeErr error
	storageDelay time.Duration

	active    atomic.Int32
	maxActive atomic.Int32
	storage   atomic.Int32
	closed    atomic.Bool
}

func (f *fakeTransport) Call(ctx context.Context, method string, params []any, result any) error {
	var value any
	switch method {
	case "rpc_methods":
		if f.handshakeErr != nil {
			return f.handshakeErr
		}
		value = map[string]any{"methods": []string{"rpc_methods", "state_getStorage", "system_chain"}}
	case "system_chain":
		value = "Polkadot"
	case "chain_getFinalizedHead":
		value = "0xabc"
	case "chain_getHeader":
		value = map[string]any{"number": "0x10"}
	case "state_getStorage":
		f.storage.Add(1)
		n := f.active.Add(1)
		defer f.active.Add(-1)
		for {
			prev := f.maxActive.Load()
			if n <= prev || f.maxActive.CompareAndSwap(prev, n) {
				break
			}
		}
		if f.storageDelay > 0 {
			select {
			case <-time.After(f.storageDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		value = "0x2a"
	default:
		return &subrpc.Error{Code: -32601, Message: "Method not found"}
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, result)
}

func (f *fakeTransport) Close() error {
	f.closed.Store(true)
	return nil
}

type dialer struct {
	mu         sync.Mutex
	transports map[string]*fakeTransport
	dials      int
	err        error
	// gates hold a dial open until closed
	gates map[string]chan struct{}
}

func (d *dialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *dialer) dial(ctx context.Context, endpoint string) (subrpc.Transport, error) {
	d.mu.Lock()
	d.dials++
	gate := d.gates[endpoint]
	d.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	if d.transports == nil {
		d.transports = make(map[string]*fakeTransport)
	}
	t, ok := d.transports[endpoint]
	if !ok {
		t = &fakeTransport{}
		d.transports[endpoint] = t
	}
	return t, nil
}

func newTestManager(d *dialer, logs *bytes.Buffer, cfg Config) *Manager {
	cfg.Dial = d.dial
	if logs != nil {
		cfg.Logger = slog.New(slog.NewTextHandler(logs, nil))
	}
	return NewManager(cfg)
}

func TestConnectReusesConnectionAndLogsEveryAttempt(t *testing.T) {
	d := &dialer{}
	var logs bytes.Buffer
	m := newTestManager(d, &logs, Config{})
	defer m.CloseAll()
	ctx := context.Background()

	first, err := m.Connect(ctx, "wss://rpc.polkadot.io")
	require.NoError(t, err)
	second, err := m.Connect(ctx, "wss://rpc.polkadot.io")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, d.dials)
	assert.Equal(t, 1, m.Len())
	assert.Equal(t, 2, strings.Count(logs.String(), "endpoint=wss://rpc.polkadot.io"))

	value, ok, err := second.Storage(ctx, []byte{1})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte{0x2a}, value)
}

func TestConnectDistinctEndpoints(t *testing.T) {
	d := &dialer{}
	m := newTestManager(d, nil, Config{})
	defer m.CloseAll()

	a, err := m.Connect(context.Background(), "wss://a")
	require.NoError(t, err)
	b, err := m.Connect(context.Background(), "wss://b")
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, "wss://a", a.Endpoint())
	assert.Equal(t, 2, m.Len())
}

func TestSlowDialDoesNotBlockOtherEndpoints(t *testing.T) {
	gate := make(chan struct{})
	d := &dialer{gates: map[string]chan struct{}{"wss://slow": gate}}
	m := newTestManager(d, nil, Config{})
	defer m.CloseAll()
	ctx := context.Background()

	slow := make(chan error, 1)
	go func() {
		_, err := m.Connect(ctx, "wss://slow")
		slow <- err
	}()
	require.Eventually(t, func() bool { return d.dialCount() == 1 }, time.Second, 5*time.Millisecond)

	fast, err := m.Connect(ctx, "wss://fast")
	require.NoError(t, err)
	assert.Equal(t, "wss://fast", fast.Endpoint())
	assert.Equal(t, 1, m.Len())
	require.NoError(t, m.Close("wss://fast"))

	close(gate)
	require.NoError(t, <-slow)
	assert.Equal(t, 1, m.Len())
}

func TestConcurrentConnectsShareOneDial(t *testing.T) {
	gate := make(chan struct{})
	d := &dialer{gates: map[string]chan struct{}{"wss://node": gate}}
	m := newTestManager(d, nil, Config{})
	defer m.CloseAll()

	conns := make(chan *Connection, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := m.Connect(context.Background(), "wss://node")
			assert.NoError(t, err)
			conns <- conn
		}()
	}
	require.Eventually(t, func() bool { return d.dialCount() == 1 }, time.Second, 5*time.Millisecond)
	close(gate)
	wg.Wait()
	close(conns)

	first, second := <-conns, <-conns
	assert.NotNil(t, first)
	assert.Same(t, first, second)
	assert.Equal(t, 1, d.dialCount())
}

func TestConnectDialFailure(t *testing.T) {
	d := &dialer{err: errors.New("dial tcp: connection refused")}
	m := newTestManager(d, nil, Config{})

	conn, err := m.Connect(context.Background(), "wss://down")
	assert.Nil(t, conn)
	assert.ErrorIs(t, err, application.ErrConnection)

	var connErr *application.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "wss://down", connErr.Endpoint)
	assert.Zero(t, m.Len())

	// no implicit retry state: the next attempt dials again
	_, err = m.Connect(context.Background(), "wss://down")
	assert.Error(t, err)
	assert.Equal(t, 2, d.dials)
}

func TestConnectHandshakeFailureClosesTransport(t *testing.T) {
	transport := &fakeTransport{handshakeErr: errors.New("unexpected EOF")}
	d := &dialer{transports: map[string]*fakeTransport{"wss://odd": transport}}
	m := newTestManager(d, nil, Config{})

	_, err := m.Connect(context.Background(), "wss://odd")
	assert.ErrorIs(t, err, application.ErrConnection)
	assert.True(t, transport.closed.Load())
	assert.Zero(t, m.Len())
}

func TestConnectionBoundsInFlightCalls(t *testing.T) {
	transport := &fakeTransport{storageDelay: 20 * time.Millisecond}
	d := &dialer{transports: map[string]*fakeTransport{"wss://node": transport}}
	m := newTestManager(d, nil, Config{MaxInFlight: 2})
	defer m.CloseAll()

	conn, err := m.Connect(context.Background(), "wss://node")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := conn.Storage(context.Background(), []byte{byte(i)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(8), transport.storage.Load())
	assert.LessOrEqual(t, transport.maxActive.Load(), int32(2))
	assert.Positive(t, transport.maxActive.Load())
}

func TestConnectionDiagnostics(t *testing.T) {
	m := newTestManager(&dialer{}, nil, Config{})
	defer m.CloseAll()

	conn, err := m.Connect(context.Background(), "wss://node")
	require.NoError(t, err)

	info, err := conn.Diagnostics().ChainInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Polkadot", info.Name)
	assert.Equal(t, uint64(16), info.FinalizedHeight)
}

type memoryStore struct {
	mu     sync.Mutex
	values map[string][]byte
}

func (m *memoryStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *memoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *memoryStore) Close() error { return nil }

func TestConnectionUsesQueryCache(t *testing.T) {
	transport := &fakeTransport{}
	d := &dialer{transports: map[string]*fakeTransport{"wss://node": transport}}
	m := newTestManager(d, nil, Config{Cache: &memoryStore{values: make(map[string][]byte)}})
	defer m.CloseAll()

	conn, err := m.Connect(context.Background(), "wss://node")
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		value, ok, err := conn.Storage(context.Background(), []byte{9})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, []byte{0x2a}, value)
	}
	assert.Equal(t, int32(1), transport.storage.Load())
}

func TestCloseAllReleasesConnections(t *testing.T) {
	d := &dialer{}
	m := newTestManager(d, nil, Config{})
	for _, endpoint := range []string{"wss://a", "wss://b"} {
		_, err := m.Connect(context.Background(), endpoint)
		require.NoError(t, err)
	}

	require.NoError(t, m.Close("wss://a"))
	assert.True(t, d.transports["wss://a"].closed.Load())
	assert.Equal(t, 1, m.Len())

	require.NoError(t, m.CloseAll())
	assert.True(t, d.transports["wss://b"].closed.Load())
	assert.Zero(t, m.Len())
	assert.NoError(t, m.Close("wss://missing"))
}
