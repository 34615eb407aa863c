package subrpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Transport carries JSON-RPC calls to one node endpoint. Implementations are
// safe for concurrent use.
type Transport interface {
	Call(ctx context.Context, method string, params []any, result any) error
	Close() error
}

// Error is an error object returned by the node.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

const codeMethodNotFound = -32601

var ErrUnsupportedScheme = errors.New("unsupported endpoint scheme")

// Dial opens a transport for the endpoint. ws/wss endpoints get a persistent
// websocket session, http/https endpoints one POST per call.
func Dial(ctx context.Context, endpoint string) (Transport, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "ws", "wss":
		t, err := dialWebsocket(ctx, endpoint)
		if err != nil {
			return nil, err
		}
		return t, nil
	case "http", "https":
		return newHTTPTransport(endpoint), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, parsed.Scheme)
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *Error          `json:"error"`
}

func encodeRequest(id uint64, method string, params []any) ([]byte, error) {
	if params == nil {
		params = []any{}
	}
	return json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  params,
	})
}

func decodeResult(resp rpcResponse, result any) error {
	if resp.Error != nil {
		return resp.Error
	}
	if result == nil {
		return nil
	}
	if len(resp.Result) == 0 {
		return errors.New("rpc result is empty")
	}
	return json.Unmarshal(resp.Result, result)
}
