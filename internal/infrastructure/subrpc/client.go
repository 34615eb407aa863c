package subrpc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"chainreport/internal/domain"
	"chainreport/internal/substrate"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultPageSize = 1000
	valuesChunkSize = 256
)

// Client speaks the Substrate node RPC surface needed for storage reads and
// chain diagnostics.
type Client struct {
	transport Transport
	pageSize  int

	mu      sync.RWMutex
	methods map[string]struct{}
}

func NewClient(transport Transport, pageSize int) *Client {
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	return &Client{transport: transport, pageSize: pageSize}
}

// Handshake lists the node's RPC methods. It doubles as the liveness check
// that a connection actually speaks the protocol.
func (c *Client) Handshake(ctx context.Context) error {
	var result struct {
		Methods []string `json:"methods"`
	}
	if err := c.call(ctx, "rpc_methods", nil, &result); err != nil {
		return err
	}
	methods := make(map[string]struct{}, len(result.Methods))
	for _, method := range result.Methods {
		methods[method] = struct{}{}
	}
	c.mu.Lock()
	c.methods = methods
	c.mu.Unlock()
	return nil
}

func (c *Client) Supports(method string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.methods[method]
	return ok
}

func (c *Client) Close() error {
	return c.transport.Close()
}

// Storage reads one storage value at the finalized head. A missing value is
// reported as not found rather than as an error.
func (c *Client) Storage(ctx context.Context, key []byte) ([]byte, bool, error) {
	at, err := c.finalizedHead(ctx)
	if err != nil {
		return nil, false, err
	}
	var result *string
	if err := c.call(ctx, "state_getStorage", []any{substrate.HexEncode(key), at}, &result); err != nil {
		return nil, false, err
	}
	if result == nil {
		return nil, false, nil
	}
	value, err := substrate.HexDecode(*result)
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// StorageEntries reads every entry under prefix. Keys are paged and values
// fetched in chunks, all pinned to the block that was finalized when the
// call started so the result is one consistent snapshot.
func (c *Client) StorageEntries(ctx context.Context, prefix []byte) ([]domain.StorageEntry, error) {
	at, err := c.finalizedHead(ctx)
	if err != nil {
		return nil, err
	}

	prefixHex := substrate.HexEncode(prefix)
	var (
		keys     []string
		startKey any
	)
	for {
		var page []string
		if err := c.call(ctx, "state_getKeysPaged", []any{prefixHex, c.pageSize, startKey, at}, &page); err != nil {
			return nil, fmt.Errorf("list keys: %w", err)
		}
		keys = append(keys, page...)
		if len(page) < c.pageSize {
			break
		}
		startKey = page[len(page)-1]
	}

	values := make(map[string]string, len(keys))
	for start := 0; start < len(keys); start += valuesChunkSize {
		end := min(start+valuesChunkSize, len(keys))
		var changeSets []struct {
			Block   string       `json:"block"`
			Changes [][2]*string `json:"changes"`
		}
		if err := c.call(ctx, "state_queryStorageAt", []any{keys[start:end], at}, &changeSets); err != nil {
			return nil, fmt.Errorf("read values: %w", err)
		}
		for _, set := range changeSets {
			for _, change := range set.Changes {
				if change[0] == nil || change[1] == nil {
					continue
				}
				values[strings.ToLower(*change[0])] = *change[1]
			}
		}
	}

	entries := make([]domain.StorageEntry, 0, len(keys))
	for _, keyHex := range keys {
		valueHex, ok := values[strings.ToLower(keyHex)]
		if !ok {
			continue
		}
		key, err := substrate.HexDecode(keyHex)
		if err != nil {
			return nil, err
		}
		value, err := substrate.HexDecode(valueHex)
		if err != nil {
			return nil, err
		}
		entries = append(entries, domain.StorageEntry{Key: key, Value: value})
	}
	return entries, nil
}

// ChainInfo reads the chain name and the finalized head. The chain-spec name
// may come from a node-local cache and is only fit for diagnostics.
func (c *Client) ChainInfo(ctx context.Context) (domain.ChainInfo, error) {
	name, err := c.chainName(ctx)
	if err != nil {
		return domain.ChainInfo{}, fmt.Errorf("chain name: %w", err)
	}

	hash, err := c.finalizedHead(ctx)
	if err != nil {
		return domain.ChainInfo{}, err
	}
	var header struct {
		Number string `json:"number"`
	}
	if err := c.call(ctx, "chain_getHeader", []any{hash}, &header); err != nil {
		return domain.ChainInfo{}, fmt.Errorf("finalized header: %w", err)
	}
	height, err := parseHexUint(header.Number)
	if err != nil {
		return domain.ChainInfo{}, fmt.Errorf("finalized header number: %w", err)
	}
	return domain.ChainInfo{Name: name, FinalizedHash: hash, FinalizedHeight: height}, nil
}

func (c *Client) finalizedHead(ctx context.Context) (string, error) {
	var hash string
	if err := c.call(ctx, "chain_getFinalizedHead", nil, &hash); err != nil {
		return "", fmt.Errorf("finalized head: %w", err)
	}
	if hash == "" {
		return "", errors.New("finalized head: empty block hash")
	}
	return hash, nil
}

func (c *Client) chainName(ctx context.Context) (string, error) {
	var name string
	if c.Supports("chainSpec_v1_chainName") {
		err := c.call(ctx, "chainSpec_v1_chainName", nil, &name)
		var rpcErr *Error
		if err == nil || !errors.As(err, &rpcErr) || rpcErr.Code != codeMethodNotFound {
			return name, err
		}
	}
	err := c.call(ctx, "system_chain", nil, &name)
	return name, err
}

func (c *Client) call(ctx context.Context, method string, params []any, result any) error {
	ctx, span := otel.Tracer("chainreport/rpc").Start(ctx, "rpc.call", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.String("rpc.method", method))

	if err := c.transport.Call(ctx, method, params, result); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func parseHexUint(value string) (uint64, error) {
	trimmed := strings.TrimPrefix(value, "0x")
	if trimmed == "" {
		return 0, errors.New("empty hex value")
	}
	return strconv.ParseUint(trimmed, 16, 64)
}
