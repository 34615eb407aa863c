package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ProbeReport is the diagnostic identity of a connected chain. It can only
// be logged or printed.
type ProbeReport struct {
	endpoint        string
	chainName       string
	finalizedHeight uint64
}

func (p ProbeReport) String() string {
	return fmt.Sprintf("%s at block %d (%s)", p.chainName, p.finalizedHeight, p.endpoint)
}

func (p ProbeReport) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("endpoint", p.endpoint),
		slog.String("chain", p.chainName),
		slog.Uint64("finalized_height", p.finalizedHeight),
	)
}

var errNoDiagnostics = errors.New("connection exposes no diagnostics")

// Probe reads the chain name and finalized height of a connection.
func Probe(ctx context.Context, client ChainClient) (ProbeReport, error) {
	diag := client.Diagnostics()
	if diag == nil {
		return ProbeReport{}, errNoDiagnostics
	}
	info, err := diag.ChainInfo(ctx)
	if err != nil {
		return ProbeReport{}, fmt.Errorf("probe %s: %w", client.Endpoint(), err)
	}
	return ProbeReport{
		endpoint:        client.Endpoint(),
		chainName:       info.Name,
		finalizedHeight: info.FinalizedHeight,
	}, nil
}
