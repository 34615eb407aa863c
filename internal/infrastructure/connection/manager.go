package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"chainreport/internal/application"
	"chainreport/internal/domain"
	"chainreport/internal/infrastructure/querycache"
	"chainreport/internal/infrastructure/subrpc"

	"golang.org/x/sync/semaphore"
)

const defaultMaxInFlight = 8

type DialFunc func(ctx context.Context, endpoint string) (subrpc.Transport, error)

type Config struct {
	MaxInFlight int
	PageSize    int
	Dial        DialFunc
	Logger      *slog.Logger

	// Cache is optional. When set, point lookups go through it.
	Cache         querycache.Store
	CacheTTL      time.Duration
	CacheObserver querycache.Observer
}

// Manager owns the chain connections of a run, at most one per endpoint.
// Connections are never re-established implicitly.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	conns   map[string]*Connection
	dialing map[string]*pendingConn
}

// pendingConn is a connection attempt other callers for the same endpoint
// wait on. done is closed once conn or err is set.
type pendingConn struct {
	done chan struct{}
	conn *Connection
	err  error
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = defaultMaxInFlight
	}
	if cfg.Dial == nil {
		cfg.Dial = subrpc.Dial
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		cfg:     cfg,
		conns:   make(map[string]*Connection),
		dialing: make(map[string]*pendingConn),
	}
}

// Connect returns the connection bound to endpoint, establishing it on first
// use. Concurrent callers for one endpoint share a single attempt; other
// endpoints are not held up by it. Failures are *application.ConnectionError.
func (m *Manager) Connect(ctx context.Context, endpoint string) (*Connection, error) {
	m.cfg.Logger.Info("connecting to endpoint", "endpoint", endpoint)

	m.mu.Lock()
	if conn, ok := m.conns[endpoint]; ok {
		m.mu.Unlock()
		return conn, nil
	}
	if pending, ok := m.dialing[endpoint]; ok {
		m.mu.Unlock()
		select {
		case <-pending.done:
			return pending.conn, pending.err
		case <-ctx.Done():
			return nil, &application.ConnectionError{Endpoint: endpoint, Err: ctx.Err()}
		}
	}
	pending := &pendingConn{done: make(chan struct{})}
	m.dialing[endpoint] = pending
	m.mu.Unlock()

	conn, err := m.establish(ctx, endpoint)

	m.mu.Lock()
	delete(m.dialing, endpoint)
	if err == nil {
		m.conns[endpoint] = conn
	}
	m.mu.Unlock()

	pending.conn, pending.err = conn, err
	close(pending.done)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (m *Manager) establish(ctx context.Context, endpoint string) (*Connection, error) {
	transport, err := m.cfg.Dial(ctx, endpoint)
	if err != nil {
		return nil, &application.ConnectionError{Endpoint: endpoint, Err: err}
	}
	client := subrpc.NewClient(transport, m.cfg.PageSize)
	if err := client.Handshake(ctx); err != nil {
		_ = client.Close()
		return nil, &application.ConnectionError{Endpoint: endpoint, Err: err}
	}
	return newConnection(endpoint, client, m.cfg), nil
}

func (m *Manager) Close(endpoint string) error {
	m.mu.Lock()
	conn, ok := m.conns[endpoint]
	delete(m.conns, endpoint)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return conn.Close()
}

func (m *Manager) CloseAll() error {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]*Connection)
	m.mu.Unlock()

	var errs []error
	for endpoint, conn := range conns {
		if err := conn.Close(); err != nil {
			errs = append(errs, &application.ConnectionError{Endpoint: endpoint, Err: err})
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Connection is a live session to one endpoint. Every call against the node
// holds one slot of the connection's in-flight limit.
type Connection struct {
	endpoint string
	client   *subrpc.Client
	limited  *limitedClient
	storage  application.StorageReader
}

func newConnection(endpoint string, client *subrpc.Client, cfg Config) *Connection {
	limited := &limitedClient{client: client, sem: semaphore.NewWeighted(int64(cfg.MaxInFlight))}
	conn := &Connection{endpoint: endpoint, client: client, limited: limited, storage: limited}
	if cfg.Cache != nil {
		conn.storage = querycache.New(limited, cfg.Cache, querycache.Options{
			Namespace: endpoint,
			TTL:       cfg.CacheTTL,
			Observer:  cfg.CacheObserver,
		})
	}
	return conn
}

func (c *Connection) Endpoint() string {
	return c.endpoint
}

func (c *Connection) Storage(ctx context.Context, key []byte) ([]byte, bool, error) {
	return c.storage.Storage(ctx, key)
}

func (c *Connection) StorageEntries(ctx context.Context, prefix []byte) ([]domain.StorageEntry, error) {
	return c.storage.StorageEntries(ctx, prefix)
}

func (c *Connection) Diagnostics() application.DiagnosticsReader {
	return c.limited
}

func (c *Connection) Close() error {
	return c.client.Close()
}

type limitedClient struct {
	client *subrpc.Client
	sem    *semaphore.Weighted
}

func (l *limitedClient) Storage(ctx context.Context, key []byte) ([]byte, bool, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, false, err
	}
	defer l.sem.Release(1)
	return l.client.Storage(ctx, key)
}

func (l *limitedClient) StorageEntries(ctx context.Context, prefix []byte) ([]domain.StorageEntry, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer l.sem.Release(1)
	return l.client.StorageEntries(ctx, prefix)
}

func (l *limitedClient) ChainInfo(ctx context.Context) (domain.ChainInfo, error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return domain.ChainInfo{}, err
	}
	defer l.sem.Release(1)
	return l.client.ChainInfo(ctx)
}
