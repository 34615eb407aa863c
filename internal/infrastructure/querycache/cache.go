package querycache

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"chainreport/internal/application"
	"chainreport/internal/domain"
	"chainreport/internal/substrate"
)

const (
	keyPrefix  = "chainreport:storage:v1"
	defaultTTL = 5 * time.Minute
)

// Store is a byte-oriented TTL cache backend.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Close() error
}

type Observer interface {
	OnCacheLookup(hit bool)
}

type Options struct {
	Namespace string
	TTL       time.Duration
	Observer  Observer
}

// Storage caches point lookups of the wrapped reader, including confirmed
// absence. Enumeration always goes to the node. Cache failures fall through
// to the node and never fail a lookup.
type Storage struct {
	next     application.StorageReader
	store    Store
	ns       string
	ttl      time.Duration
	observer Observer
}

type cachedValue struct {
	Found bool   `json:"found"`
	Value []byte `json:"value,omitempty"`
}

func New(next application.StorageReader, store Store, opts Options) *Storage {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	return &Storage{
		next:     next,
		store:    store,
		ns:       strings.ToLower(opts.Namespace),
		ttl:      opts.TTL,
		observer: opts.Observer,
	}
}

func (s *Storage) Storage(ctx context.Context, key []byte) ([]byte, bool, error) {
	cacheKey := s.cacheKey(key)
	if raw, ok, err := s.store.Get(ctx, cacheKey); err != nil {
		slog.Debug("query cache read failed", "key", cacheKey, "err", err)
	} else if ok {
		var cached cachedValue
		if err := json.Unmarshal(raw, &cached); err == nil {
			s.observe(true)
			return cached.Value, cached.Found, nil
		}
	}
	s.observe(false)

	value, found, err := s.next.Storage(ctx, key)
	if err != nil {
		return nil, false, err
	}
	payload, err := json.Marshal(cachedValue{Found: found, Value: value})
	if err != nil {
		return value, found, nil
	}
	if err := s.store.Set(ctx, cacheKey, payload, s.ttl); err != nil {
		slog.Debug("query cache write failed", "key", cacheKey, "err", err)
	}
	return value, found, nil
}

func (s *Storage) StorageEntries(ctx context.Context, prefix []byte) ([]domain.StorageEntry, error) {
	return s.next.StorageEntries(ctx, prefix)
}

func (s *Storage) observe(hit bool) {
	if s.observer != nil {
		s.observer.OnCacheLookup(hit)
	}
}

func (s *Storage) cacheKey(key []byte) string {
	var b strings.Builder
	b.Grow(len(keyPrefix) + len(s.ns) + 2*len(key) + 8)
	b.WriteString(keyPrefix)
	b.WriteString(":")
	b.WriteString(s.ns)
	b.WriteString(":")
	b.WriteString(substrate.HexEncode(key))
	return b.String()
}
