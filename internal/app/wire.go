// Package app assembles the engine's collaborators from configuration.
// The API server, worker, and CLI share this wiring so they always agree
// on which backends are active: Postgres, BigQuery, Redis, and GCS each
// switch to an in-memory or no-op stand-in when unconfigured, which keeps
// local development credential-free.
package app

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/storage"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/dvloznov/savings-autopilot/internal/clock"
	"github.com/dvloznov/savings-autopilot/internal/config"
	"github.com/dvloznov/savings-autopilot/internal/engine"
	"github.com/dvloznov/savings-autopilot/internal/income"
	infraBQ "github.com/dvloznov/savings-autopilot/internal/infra/bigquery"
	infraGCS "github.com/dvloznov/savings-autopilot/internal/infra/gcs"
	"github.com/dvloznov/savings-autopilot/internal/infra/inmemory"
	infraPG "github.com/dvloznov/savings-autopilot/internal/infra/postgres"
	infraRedis "github.com/dvloznov/savings-autopilot/internal/infra/redis"
	"github.com/dvloznov/savings-autopilot/internal/notify"
	"github.com/dvloznov/savings-autopilot/internal/surplus"
	"github.com/dvloznov/savings-autopilot/internal/transfer"
)

// Deps holds every wired collaborator plus the assembled engine components.
type Deps struct {
	Rules        engine.RuleRepository
	Records      engine.RecordRepository
	Transactions engine.TransactionProvider
	Goals        engine.GoalLedger
	Reports      engine.ReportStore
	Cache        engine.PatternCache
	Archiver     engine.ReportArchiver
	Notifier     engine.NotificationDispatcher
	Provider     engine.TransferProvider

	Detector  *income.Detector
	Surplus   *surplus.Calculator
	Amounts   *engine.AmountCalculator
	Executor  *engine.Executor
	Batch     *engine.BatchProcessor
	Analytics *engine.Analytics
	Retention *engine.Retention

	closers []func() error
}

// Close releases every backend connection opened by Build.
func (d *Deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

// Build wires all components from cfg.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Deps, error) {
	d := &Deps{}
	clk := clock.Real{}

	if err := d.wireRuleStore(cfg, log); err != nil {
		return nil, err
	}
	if err := d.wireAuditStores(ctx, cfg, log); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.wireCache(cfg, log); err != nil {
		d.Close()
		return nil, err
	}
	if err := d.wireArchiver(ctx, cfg, log); err != nil {
		d.Close()
		return nil, err
	}

	d.Reports = inmemory.NewReportStore()

	if cfg.NotionToken != "" && cfg.NotionDatabaseID != "" {
		d.Notifier = notify.NewNotionDispatcher(cfg.NotionToken, cfg.NotionDatabaseID)
		log.Info().Msg("Notifications: Notion dispatcher")
	} else {
		d.Notifier = notify.NewLogDispatcher(log)
		log.Info().Msg("Notifications: log dispatcher")
	}

	if cfg.TransferProvider == "http" {
		d.Provider = transfer.NewHTTPProvider(cfg.TransferEndpoint, nil)
		log.Info().Str("endpoint", cfg.TransferEndpoint).Msg("Transfers: HTTP provider")
	} else {
		d.Provider = transfer.NewVirtualProvider()
		log.Info().Msg("Transfers: virtual provider")
	}

	d.Detector = income.NewDetector(income.Config{
		MinAmount:     cfg.MinIncomeAmount,
		MinConfidence: cfg.MinConfidence,
	})
	d.Surplus = surplus.NewCalculator(d.Detector)

	d.Amounts = engine.NewAmountCalculator(d.Transactions, d.Detector, d.Surplus, d.Cache, engine.AmountCalculatorConfig{
		SurplusWindowDays:   cfg.AnalysisWindowDays,
		SafetyBufferPercent: cfg.SafetyBufferPercent,
		CacheTTL:            cfg.PatternCacheTTL,
	})
	d.Executor = engine.NewExecutor(d.Rules, d.Records, d.Provider, d.Goals, d.Notifier, d.Amounts, clk, log, engine.ExecutorConfig{
		BackoffBase:     cfg.BackoffBase,
		BackoffMax:      cfg.BackoffMax,
		ProviderTimeout: cfg.ProviderTimeout,
	})
	d.Batch = engine.NewBatchProcessor(d.Rules, d.Executor, d.Reports, d.Notifier, clk, log, engine.BatchConfig{
		BatchLimit:  cfg.BatchLimit,
		WorkerCount: cfg.WorkerCount,
		ClaimLease:  cfg.ClaimLease,
	})
	d.Analytics = engine.NewAnalytics(d.Records, d.Rules)
	d.Retention = engine.NewRetention(d.Records, d.Reports, d.Archiver, clk, log, cfg.RetentionDays)

	return d, nil
}

// wireRuleStore selects Postgres or in-memory rule and goal storage.
func (d *Deps) wireRuleStore(cfg *config.Config, log zerolog.Logger) error {
	if cfg.PostgresDSN == "" {
		d.Rules = inmemory.NewRuleStore()
		d.Goals = inmemory.NewGoalLedger()
		log.Info().Msg("Rule store: in-memory")
		return nil
	}

	db, err := gorm.Open(gormpg.Open(cfg.PostgresDSN), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("app: open postgres: %w", err)
	}
	d.closers = append(d.closers, func() error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	})

	d.Rules = infraPG.NewRuleRepository(db, clock.Real{})
	d.Goals = infraPG.NewGoalLedger(db, clock.Real{})
	log.Info().Msg("Rule store: postgres")
	return nil
}

// wireAuditStores selects BigQuery or in-memory record and transaction
// storage.
func (d *Deps) wireAuditStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.BigQueryProject == "" {
		d.Records = inmemory.NewRecordStore()
		d.Transactions = inmemory.NewTransactionStore()
		log.Info().Msg("Audit store: in-memory")
		return nil
	}

	client, err := bigquery.NewClient(ctx, cfg.BigQueryProject)
	if err != nil {
		return fmt.Errorf("app: create bigquery client: %w", err)
	}
	d.closers = append(d.closers, client.Close)

	d.Records = infraBQ.NewRecordStore(client, cfg.BigQueryProject, cfg.BigQueryDataset)
	d.Transactions = infraBQ.NewTransactionStore(client, cfg.BigQueryProject, cfg.BigQueryDataset)
	log.Info().Str("project", cfg.BigQueryProject).Str("dataset", cfg.BigQueryDataset).Msg("Audit store: bigquery")
	return nil
}

// wireCache selects the Redis or in-memory income-pattern cache.
func (d *Deps) wireCache(cfg *config.Config, log zerolog.Logger) error {
	if cfg.RedisAddr == "" {
		d.Cache = inmemory.NewPatternCache()
		log.Info().Msg("Pattern cache: in-memory")
		return nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	d.closers = append(d.closers, client.Close)

	d.Cache = infraRedis.NewPatternCache(client, log)
	log.Info().Str("addr", cfg.RedisAddr).Msg("Pattern cache: redis")
	return nil
}

// wireArchiver enables GCS report archival when a bucket is configured.
func (d *Deps) wireArchiver(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if cfg.ReportBucket == "" {
		log.Info().Msg("Report archival: disabled")
		return nil
	}

	client, err := storage.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("app: create storage client: %w", err)
	}
	d.closers = append(d.closers, client.Close)

	d.Archiver = infraGCS.NewReportArchiver(client, cfg.ReportBucket)
	log.Info().Str("bucket", cfg.ReportBucket).Msg("Report archival: gcs")
	return nil
}
