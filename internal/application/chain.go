package application

import (
	"context"

	"chainreport/internal/domain"
)

// StorageReader is the raw storage surface of one chain connection.
type StorageReader interface {
	Storage(ctx context.Context, key []byte) ([]byte, bool, error)
	StorageEntries(ctx context.Context, prefix []byte) ([]domain.StorageEntry, error)
}

// DiagnosticsReader exposes chain identity reads that are not fit for
// business decisions. It is only reachable through ChainClient.Diagnostics
// and its results only flow into Probe.
type DiagnosticsReader interface {
	ChainInfo(ctx context.Context) (domain.ChainInfo, error)
}

type ChainClient interface {
	StorageReader
	Endpoint() string
	Diagnostics() DiagnosticsReader
}

type Connector interface {
	Connect(ctx context.Context, endpoint string) (ChainClient, error)
}

type ConnectorFunc func(ctx context.Context, endpoint string) (ChainClient, error)

func (f ConnectorFunc) Connect(ctx context.Context, endpoint string) (ChainClient, error) {
	return f(ctx, endpoint)
}

// Presenter receives the finished report.
type Presenter interface {
	Present(ctx context.Context, report domain.Report) error
}
