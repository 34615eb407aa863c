package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chainreport/internal/domain"
	"chainreport/internal/substrate"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConnectTimeout   = 30 * time.Second
	defaultProbeTimeout     = 10 * time.Second
	defaultQueryTimeout     = 15 * time.Second
	defaultEnumerateTimeout = 2 * time.Minute
	defaultJoinWorkers      = 16

	// Polkadot relay chain address format.
	DefaultSS58Prefix uint16 = 0
)

type Endpoints struct {
	Ledger     string
	Identity   string
	Collective string
}

type PipelineConfig struct {
	Endpoints        Endpoints
	SS58Prefix       uint16
	MembershipPallet string
	IdentityLayout   IdentityLayout
	ConnectTimeout   time.Duration
	ProbeTimeout     time.Duration
	QueryTimeout     time.Duration
	EnumerateTimeout time.Duration
	Workers          int
}

type PipelineObserver interface {
	ObserveQuery(module string, elapsed time.Duration, err error)
	OnRow(row domain.ReportRow)
}

type noopObserver struct{}

func (noopObserver) ObserveQuery(string, time.Duration, error) {}
func (noopObserver) OnRow(domain.ReportRow)                    {}

// Pipeline builds the membership report: connect, enumerate the collective,
// join balances and identities per member, sort by rank, emit.
type Pipeline struct {
	connector  Connector
	presenters []Presenter
	observer   PipelineObserver
	cfg        PipelineConfig

	balances   Descriptor[domain.AccountID, domain.AccountBalance]
	identity   Descriptor[domain.AccountID, IdentityRecord]
	membership Descriptor[domain.AccountID, uint16]
}

func NewPipeline(connector Connector, presenters []Presenter, observer PipelineObserver, cfg PipelineConfig) (*Pipeline, error) {
	if connector == nil {
		return nil, errors.New("pipeline connector is required")
	}
	if cfg.Endpoints.Ledger == "" || cfg.Endpoints.Identity == "" || cfg.Endpoints.Collective == "" {
		return nil, errors.New("ledger, identity and collective endpoints are required")
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	if cfg.EnumerateTimeout <= 0 {
		cfg.EnumerateTimeout = defaultEnumerateTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultJoinWorkers
	}
	return &Pipeline{
		connector:  connector,
		presenters: presenters,
		observer:   observer,
		cfg:        cfg,
		balances:   BalancesModule(),
		identity:   IdentityModule(cfg.IdentityLayout),
		membership: MembershipModule(cfg.MembershipPallet),
	}, nil
}

type connections struct {
	ledger     ChainClient
	identity   ChainClient
	collective ChainClient
}

// Run executes one pass. On a connect or enumerate failure it returns a
// *PipelineError and emits nothing. When the context is cancelled before
// emission it returns the context error and emits nothing. A presenter
// failure is a *PipelineError with StageEmit; the finished report is still
// returned.
func (p *Pipeline) Run(ctx context.Context) (domain.Report, error) {
	tracer := otel.Tracer("chainreport/pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.run")
	defer span.End()

	report, err := p.run(ctx, tracer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return report, err
}

func (p *Pipeline) run(ctx context.Context, tracer trace.Tracer) (domain.Report, error) {
	conns, err := p.connect(ctx, tracer)
	if err != nil {
		return domain.Report{}, err
	}

	members, err := p.enumerate(ctx, tracer, conns.collective)
	if err != nil {
		return domain.Report{}, err
	}

	rows := p.join(ctx, tracer, conns, members)
	if err := ctx.Err(); err != nil {
		return domain.Report{}, err
	}
	domain.SortByRank(rows)

	report := domain.Report{
		RunID:       uuid.NewString(),
		GeneratedAt: time.Now().UTC(),
		Rows:        rows,
	}
	slog.Info("generating report", "run_id", report.RunID, "rows", len(rows), "unresolved", report.UnresolvedCount())

	if err := p.emit(ctx, report); err != nil {
		return report, err
	}
	slog.Info("report complete", "run_id", report.RunID)
	return report, nil
}

func (p *Pipeline) connect(ctx context.Context, tracer trace.Tracer) (connections, error) {
	ctx, span := tracer.Start(ctx, "pipeline.connect")
	defer span.End()

	var conns connections
	targets := []struct {
		endpoint string
		dst      *ChainClient
	}{
		{p.cfg.Endpoints.Ledger, &conns.ledger},
		{p.cfg.Endpoints.Identity, &conns.identity},
		{p.cfg.Endpoints.Collective, &conns.collective},
	}
	probed := make(map[string]bool, len(targets))
	for _, target := range targets {
		connectCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
		client, err := p.connector.Connect(connectCtx, target.endpoint)
		cancel()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return connections{}, &PipelineError{Stage: StageConnect, Endpoint: target.endpoint, Err: err}
		}
		*target.dst = client

		if probed[target.endpoint] {
			continue
		}
		probed[target.endpoint] = true
		p.probe(ctx, client)
	}
	return conns, nil
}

// probe only logs; its result never feeds the report.
func (p *Pipeline) probe(ctx context.Context, client ChainClient) {
	probeCtx, cancel := context.WithTimeout(ctx, p.cfg.ProbeTimeout)
	defer cancel()
	info, err := Probe(probeCtx, client)
	if err != nil {
		slog.Warn("chain probe failed", "endpoint", client.Endpoint(), "err", err)
		return
	}
	slog.Info("connected", "chain", info)
}

func (p *Pipeline) enumerate(ctx context.Context, tracer trace.Tracer, collective ChainClient) ([]domain.Member, error) {
	ctx, span := tracer.Start(ctx, "pipeline.enumerate")
	defer span.End()
	span.SetAttributes(attribute.String("module", p.membership.Name()))

	enumCtx, cancel := context.WithTimeout(ctx, p.cfg.EnumerateTimeout)
	defer cancel()

	started := time.Now()
	entries, err := EnumerateEntries(enumCtx, collective, p.membership)
	p.observer.ObserveQuery(p.membership.Kind.String(), time.Since(started), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &PipelineError{
			Stage:    StageEnumerate,
			Endpoint: collective.Endpoint(),
			Err:      fmt.Errorf("%w: %w", ErrEnumerationFailed, err),
		}
	}

	members := make([]domain.Member, 0, len(entries))
	for _, entry := range entries {
		address, err := substrate.EncodeAddress(entry.Key.Bytes(), p.cfg.SS58Prefix)
		if err != nil {
			return nil, &PipelineError{
				Stage:    StageEnumerate,
				Endpoint: collective.Endpoint(),
				Err:      fmt.Errorf("%w: address of %s: %w", ErrEnumerationFailed, entry.Key.Hex(), err),
			}
		}
		members = append(members, domain.Member{Account: entry.Key, Address: address, Rank: int(entry.Value)})
	}
	span.SetAttributes(attribute.Int("members", len(members)))
	slog.Info("membership enumerated", "module", p.membership.Name(), "members", len(members))
	return members, nil
}

// join resolves every member concurrently. Rows land at their member's index
// so completion order does not matter.
func (p *Pipeline) join(ctx context.Context, tracer trace.Tracer, conns connections, members []domain.Member) []domain.ReportRow {
	rows := make([]domain.ReportRow, len(members))
	var g errgroup.Group
	g.SetLimit(p.cfg.Workers)
	for i, member := range members {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			rows[i] = p.resolveMember(ctx, tracer, conns, member)
			return nil
		})
	}
	_ = g.Wait()
	return rows
}

func (p *Pipeline) resolveMember(ctx context.Context, tracer trace.Tracer, conns connections, member domain.Member) domain.ReportRow {
	ctx, span := tracer.Start(ctx, "pipeline.join_member")
	defer span.End()
	span.SetAttributes(
		attribute.String("member.address", member.Address),
		attribute.Int("member.rank", member.Rank),
	)

	row := domain.ReportRow{
		Rank:        member.Rank,
		Address:     member.Address,
		Balance:     p.lookupBalance(ctx, conns.ledger, member.Account),
		DisplayName: p.lookupDisplayName(ctx, conns.identity, member.Account),
	}
	if row.Unresolved() {
		span.SetStatus(codes.Error, "unresolved fields")
		attrs := []any{"address", member.Address, "rank", member.Rank}
		if row.Balance.State == domain.FieldUnresolved {
			attrs = append(attrs, "balance", row.Balance.Reason)
		}
		if row.DisplayName.State == domain.FieldUnresolved {
			attrs = append(attrs, "display_name", row.DisplayName.Reason)
		}
		slog.Warn("member row unresolved", attrs...)
	}
	p.observer.OnRow(row)
	return row
}

func (p *Pipeline) lookupBalance(ctx context.Context, ledger ChainClient, account domain.AccountID) domain.BalanceField {
	queryCtx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()

	started := time.Now()
	balance, found, err := PointQuery(queryCtx, ledger, p.balances, account)
	p.observer.ObserveQuery(p.balances.Kind.String(), time.Since(started), err)
	switch {
	case err != nil:
		return domain.UnresolvedBalance(err.Error())
	case !found:
		return domain.UnresolvedBalance("no account record")
	default:
		return domain.ResolvedBalance(balance.Total())
	}
}

func (p *Pipeline) lookupDisplayName(ctx context.Context, identity ChainClient, account domain.AccountID) domain.NameField {
	queryCtx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()

	started := time.Now()
	record, found, err := PointQuery(queryCtx, identity, p.identity, account)
	p.observer.ObserveQuery(p.identity.Kind.String(), time.Since(started), err)
	if err != nil {
		return domain.UnresolvedName(err.Error())
	}
	if !found {
		return domain.AbsentName()
	}
	name, ok := record.DisplayName()
	if !ok {
		return domain.AbsentName()
	}
	return domain.ResolvedName(name)
}

func (p *Pipeline) emit(ctx context.Context, report domain.Report) error {
	var errs []error
	for _, presenter := range p.presenters {
		if err := presenter.Present(ctx, report); err != nil {
			slog.Error("report sink failed", "run_id", report.RunID, "err", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return &PipelineError{Stage: StageEmit, Err: errors.Join(errs...)}
	}
	return nil
}
