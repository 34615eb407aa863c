package subrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
)

type httpTransport struct {
	url        string
	httpClient *http.Client
	idCounter  uint64
}

func newHTTPTransport(url string) *httpTransport {
	return &httpTransport{url: url, httpClient: &http.Client{}}
}

func (t *httpTransport) Call(ctx context.Context, method string, params []any, result any) error {
	id := atomic.AddUint64(&t.idCounter, 1)
	payload, err := encodeRequest(id, method, params)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("rpc status %d", resp.StatusCode)
	}

	var decoded rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	return decodeResult(decoded, result)
}

func (t *httpTransport) Close() error {
	t.httpClient.CloseIdleConnections()
	return nil
}
