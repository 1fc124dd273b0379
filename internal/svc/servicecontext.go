package svc

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx driver
	"github.com/redis/go-redis/v9"
	"github.com/zeromicro/go-zero/core/logx"
	"github.com/zeromicro/go-zero/core/stores/sqlx"

	"autopilot-engine/internal/cache"
	"autopilot-engine/internal/config"
	"autopilot-engine/internal/metrics"
	auditpersist "autopilot-engine/internal/persistence/engine"
	marketpersist "autopilot-engine/internal/persistence/market"
	"autopilot-engine/internal/repo"
	"autopilot-engine/internal/store/redisstore"
	"autopilot-engine/pkg/approval"
	"autopilot-engine/pkg/autopilot"
	"autopilot-engine/pkg/exchange"
	_ "autopilot-engine/pkg/exchange/rest"
	"autopilot-engine/pkg/exchange/sim"
	"autopilot-engine/pkg/journal"
	llmpkg "autopilot-engine/pkg/llm"
	"autopilot-engine/pkg/market"
	_ "autopilot-engine/pkg/market/csvfeed"
	_ "autopilot-engine/pkg/market/exchanges/twelvedata"
	"autopilot-engine/pkg/notify"
	"autopilot-engine/pkg/portfolio"
	"autopilot-engine/pkg/signal"
	_ "autopilot-engine/pkg/signal/sentiment"
)

type ServiceContext struct {
	Config    config.Config
	Autopilot *autopilot.Config

	Series    *market.SeriesStore
	Archive   *marketpersist.Service
	Ledger    *portfolio.Ledger
	Executor  exchange.Executor
	Scheduler *autopilot.Scheduler
	Journal   *journal.Writer
	Metrics   *metrics.Metrics

	// Optional stores, nil when not configured.
	Redis     *redis.Client
	Reports   *redisstore.ReportStore
	Portfolio *redisstore.PortfolioStore
	DBConn    sqlx.SqlConn
	Audit     *auditpersist.Service
	Repos     *repo.Set
}

// NewServiceContext wires every collaborator and exits on failure.
func NewServiceContext(c config.Config) *ServiceContext {
	svc, err := Build(context.Background(), c)
	if err != nil {
		log.Fatalf("failed to build service context: %v", err)
	}
	return svc
}

// Build wires the scheduler from c. Sections must already be hydrated.
func Build(ctx context.Context, c config.Config) (*ServiceContext, error) {
	if !c.Autopilot.Loaded() {
		return nil, errors.New("autopilot config is required")
	}
	if !c.Market.Loaded() {
		return nil, errors.New("market config is required")
	}
	apCfg := c.Autopilot.Value
	svc := &ServiceContext{
		Config:    c,
		Autopilot: apCfg,
		Metrics:   metrics.New(),
	}

	rdb, err := redisstore.NewClient(c.Redis)
	if err != nil {
		return nil, err
	}
	svc.Redis = rdb

	series, err := svc.buildSeries(ctx, c.Market.Value, apCfg)
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.Series = series

	svc.Ledger, err = svc.buildLedger(ctx, apCfg)
	if err != nil {
		svc.Close()
		return nil, err
	}

	signals, err := svc.buildSignals(apCfg)
	if err != nil {
		svc.Close()
		return nil, err
	}

	svc.Executor, err = svc.buildExecutor(apCfg)
	if err != nil {
		svc.Close()
		return nil, err
	}

	sinks, err := svc.buildSinks(ctx)
	if err != nil {
		svc.Close()
		return nil, err
	}

	var gate approval.Gate
	if c.Approval.Loaded() {
		gate = c.Approval.Value.Build()
	}
	var notifier notify.Notifier
	topN := 0
	if c.Notify.Loaded() {
		notifier = c.Notify.Value.Build()
		topN = c.Notify.Value.TopN
	}

	svc.Scheduler, err = autopilot.New(apCfg, autopilot.Deps{
		Series:   series,
		Signals:  signals,
		Ledger:   svc.Ledger,
		Gate:     gate,
		Executor: svc.Executor,
		Notifier: notifier,
		Sinks:    sinks,
		Metrics:  svc.Metrics,
		TopN:     topN,
	}, autopilot.WithObserver(svc.Metrics.Observe))
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("build scheduler: %w", err)
	}
	return svc, nil
}

func (s *ServiceContext) buildSeries(ctx context.Context, mcfg *market.Config, apCfg *autopilot.Config) (*market.SeriesStore, error) {
	provider, err := mcfg.BuildDefault()
	if err != nil {
		return nil, fmt.Errorf("build market provider: %w", err)
	}
	if s.Redis != nil {
		ttl := cache.BarsTTL(cache.NewTTLSet(s.Config.TTL))
		provider = redisstore.NewCachingProvider(s.Redis, ttl, provider)
	}

	opts := []market.StoreOption{market.WithServeStale(mcfg.ServeStale)}
	if s.Config.Archive.Path != "" {
		archive, err := marketpersist.Open(ctx, s.Config.Archive.Path)
		if err != nil {
			return nil, fmt.Errorf("open bar archive: %w", err)
		}
		s.Archive = archive
		opts = append(opts, market.WithArchive(archive))
	}
	store := market.NewSeriesStore(provider, mcfg.Retention, opts...)
	if s.Archive != nil {
		if err := store.Warm(ctx, apCfg.Autopilot.Watchlist, apCfg.Autopilot.Interval); err != nil {
			logx.WithContext(ctx).Errorf("warm series from archive: %v", err)
		}
	}
	return store, nil
}

func (s *ServiceContext) buildLedger(ctx context.Context, apCfg *autopilot.Config) (*portfolio.Ledger, error) {
	if s.Redis == nil {
		return portfolio.NewLedger(apCfg.Autopilot.StartingCash), nil
	}
	s.Portfolio = redisstore.NewPortfolioStore(s.Redis)
	st, ok, err := s.Portfolio.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore portfolio: %w", err)
	}
	var ledger *portfolio.Ledger
	if ok {
		ledger = portfolio.Restore(st)
		logx.WithContext(ctx).Infof("portfolio restored: cash=%s positions=%d", st.Cash.String(), st.OpenPositions())
	} else {
		ledger = portfolio.NewLedger(apCfg.Autopilot.StartingCash)
	}
	s.Portfolio.Attach(context.Background(), ledger)
	return ledger, nil
}

func (s *ServiceContext) buildSignals(apCfg *autopilot.Config) ([]signal.Provider, error) {
	deps := signal.Deps{Series: s.Series, Interval: apCfg.Autopilot.Interval}
	if s.Config.LLM.Loaded() {
		llmCfg := s.Config.LLM.Value.Clone()
		client, err := llmpkg.NewClient(llmCfg)
		if err != nil {
			return nil, fmt.Errorf("build llm client: %w", err)
		}
		deps.LLM = client
	}
	providers, err := apCfg.Signals.Build(deps)
	if err != nil {
		return nil, fmt.Errorf("build signal sources: %w", err)
	}
	return providers, nil
}

func (s *ServiceContext) buildExecutor(apCfg *autopilot.Config) (exchange.Executor, error) {
	simExecutor := func() exchange.Executor {
		return sim.New(s.Ledger,
			sim.WithFeeBps(apCfg.Backtest.FeeBps),
			sim.WithSlippageBps(apCfg.Backtest.SlippageBps),
		)
	}
	if !s.Config.Exchange.Loaded() {
		return simExecutor(), nil
	}
	ecfg := s.Config.Exchange.Value
	// Test environment never reaches a live broker.
	if s.Config.IsTestEnv() {
		if p := ecfg.Providers[ecfg.Default]; p != nil && !strings.EqualFold(p.Type, sim.TypeName) {
			logx.Infof("env=test: replacing %s executor %q with sim", p.Type, ecfg.Default)
			return simExecutor(), nil
		}
	}
	executor, err := ecfg.BuildDefault(exchange.Deps{Ledger: s.Ledger})
	if err != nil {
		return nil, fmt.Errorf("build executor: %w", err)
	}
	return executor, nil
}

func (s *ServiceContext) buildSinks(ctx context.Context) ([]autopilot.ReportSink, error) {
	var sinks []autopilot.ReportSink
	if s.Config.JournalDir != "" {
		s.Journal = journal.NewWriter(s.Config.JournalDir)
		sinks = append(sinks, s.Journal)
	}
	if s.Redis != nil {
		s.Reports = redisstore.NewReportStore(s.Redis, s.Config.Redis.HistoryLimit)
		sinks = append(sinks, s.Reports)
	}
	if s.Config.Postgres.DSN != "" {
		conn := sqlx.NewSqlConn("pgx", s.Config.Postgres.DSN)
		if db, err := conn.RawDB(); err == nil {
			db.SetMaxOpenConns(s.Config.Postgres.MaxOpen)
			db.SetMaxIdleConns(s.Config.Postgres.MaxIdle)
		}
		s.DBConn = conn
		s.Audit = auditpersist.NewService(auditpersist.Config{SQLConn: conn})
		if err := s.Audit.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("ensure audit schema: %w", err)
		}
		repos, err := repo.New(repo.Dependencies{DBConn: conn})
		if err != nil {
			return nil, err
		}
		s.Repos = repos
		sinks = append(sinks, s.Audit)
	}
	return sinks, nil
}

// Close releases the archive and store connections.
func (s *ServiceContext) Close() {
	if s.Archive != nil {
		if err := s.Archive.Close(); err != nil {
			logx.Errorf("close bar archive: %v", err)
		}
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logx.Errorf("close redis: %v", err)
		}
	}
}
