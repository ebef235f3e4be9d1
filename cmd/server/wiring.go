package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"trustline/internal/authz"
	"trustline/internal/community"
	"trustline/internal/platform/config"
	"trustline/internal/platform/httpserver"
	platformmetrics "trustline/internal/platform/metrics"
	"trustline/internal/platform/postgres"
	redisclient "trustline/internal/platform/redis"
	trustmetrics "trustline/internal/trust/metrics"
	"trustline/internal/trust/reconcile"
	trustservice "trustline/internal/trust/service"
	"trustline/internal/trust/store/award"
	"trustline/internal/trust/store/event"
	"trustline/internal/trust/store/grant"
	"trustline/internal/trust/store/history"
	"trustline/internal/trust/store/level"
	"trustline/internal/trust/store/view"
	"trustline/pkg/platform/audit"
	"trustline/pkg/platform/audit/publisher"
	"trustline/pkg/platform/audit/publishers/kafka"
	auditmemory "trustline/pkg/platform/audit/store/memory"
	auditpostgres "trustline/pkg/platform/audit/store/postgres"
	"trustline/pkg/platform/circuit"
)

// infra holds the optional external connections. A nil field means the
// backend is not configured and the in-process fallback is used.
type infra struct {
	db    *sql.DB
	redis *redisclient.Client
	kafka *kafka.Publisher
}

func openInfra(ctx context.Context, cfg *config.Config, log *slog.Logger) (*infra, error) {
	in := &infra{}
	if cfg.Postgres.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		in.db = db
		if cfg.Postgres.Migrate {
			if err := postgres.Migrate(ctx, db); err != nil {
				in.close(log)
				return nil, err
			}
		}
		log.InfoContext(ctx, "postgres connected")
	}

	client, err := redisclient.New(ctx, cfg.Redis)
	if err != nil {
		in.close(log)
		return nil, err
	}
	if client != nil {
		in.redis = client
		log.InfoContext(ctx, "redis connected")
	}

	if len(cfg.Kafka.Brokers) > 0 {
		p, err := kafka.New(kafka.Config{
			Brokers:           cfg.Kafka.Brokers,
			Topic:             cfg.Kafka.Topic,
			ClientID:          cfg.Kafka.ClientID,
			Partitions:        cfg.Kafka.Partitions,
			ReplicationFactor: cfg.Kafka.ReplicationFactor,
		}, log)
		if err != nil {
			in.close(log)
			return nil, err
		}
		in.kafka = p
		if err := p.EnsureTopic(ctx, cfg.Kafka.Partitions, cfg.Kafka.ReplicationFactor); err != nil {
			in.close(log)
			return nil, fmt.Errorf("ensure audit topic: %w", err)
		}
		log.InfoContext(ctx, "kafka audit stream enabled", "topic", cfg.Kafka.Topic)
	}
	return in, nil
}

func (in *infra) readinessChecks() []httpserver.ReadinessCheck {
	var checks []httpserver.ReadinessCheck
	if in.db != nil {
		checks = append(checks, httpserver.ReadinessCheck{Name: "postgres", Check: in.db.PingContext})
	}
	if in.redis != nil {
		checks = append(checks, httpserver.ReadinessCheck{Name: "redis", Check: in.redis.Health})
	}
	if in.kafka != nil {
		checks = append(checks, httpserver.ReadinessCheck{Name: "kafka", Check: in.kafka.Ping})
	}
	return checks
}

func (in *infra) close(log *slog.Logger) {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			log.Warn("closing redis", "error", err)
		}
	}
	if in.db != nil {
		if err := in.db.Close(); err != nil {
			log.Warn("closing postgres", "error", err)
		}
	}
}

// app is the assembled trust engine. An enclosing API mounts its own
// transport over these services.
type app struct {
	communities *community.Service
	trust       *trustservice.Service
	levels      *trustservice.LevelService
	analytics   *trustservice.AnalyticsService
	oracle      *authz.TupleOracle
	reconciler  *reconcile.Job
	audit       *publisher.Publisher
}

type backends struct {
	stores      trustservice.Stores
	history     trustservice.ChronologicalHistory
	levels      level.Store
	communities community.Store
	audit       audit.Store
}

func newBackends(in *infra, cfg *config.Config, log *slog.Logger, cacheMetrics *platformmetrics.Metrics) backends {
	var b backends
	if in.db != nil {
		hist := history.NewPostgres(in.db)
		var views trustservice.ViewStore = view.NewPostgres(in.db)
		if in.redis != nil {
			views = view.NewRedisCache(view.NewPostgres(in.db), in.redis.Client, cfg.Redis.ViewCacheTTL,
				view.WithCacheLogger(log),
				view.WithCacheMetrics(cacheMetrics),
			)
		}
		b.stores = trustservice.Stores{
			Awards:  award.NewPostgres(in.db),
			Grants:  grant.NewPostgres(in.db),
			History: hist,
			Events:  event.NewPostgres(in.db),
			Views:   views,
		}
		b.history = hist
		b.levels = level.NewPostgres(in.db)
		b.communities = community.NewPostgres(in.db)
		b.audit = auditpostgres.New(in.db)
	} else {
		awards := award.NewInMemoryStore()
		grants := grant.NewInMemoryStore()
		hist := history.NewInMemoryStore()
		b.stores = trustservice.Stores{
			Awards:  awards,
			Grants:  grants,
			History: hist,
			Events:  event.NewInMemoryStore(),
			Views:   view.NewInMemoryStore(awards, grants),
		}
		b.history = hist
		b.levels = level.NewInMemoryStore()
		b.communities = community.NewInMemoryStore()
		b.audit = auditmemory.NewInMemoryStore()
	}
	// The stream takes precedence over the table sink when both are configured.
	if in.kafka != nil {
		b.audit = in.kafka
	}
	return b
}

func newApp(in *infra, cfg *config.Config, log *slog.Logger) (*app, error) {
	cacheMetrics := platformmetrics.New(nil)
	b := newBackends(in, cfg, log, cacheMetrics)

	auditPublisher := publisher.NewPublisher(b.audit,
		publisher.WithAsyncBuffer(cfg.Kafka.AsyncBuffer),
		publisher.WithLogger(log),
	)

	communities := community.NewService(b.communities,
		community.WithLogger(log),
		community.WithAuditPublisher(auditPublisher),
	)

	oracleOpts := []authz.Option{authz.WithLogger(log)}
	if in.redis != nil {
		oracleOpts = append(oracleOpts, authz.WithRedis(in.redis.Client))
	}
	oracle, err := authz.NewTupleOracle(communities, oracleOpts...)
	if err != nil {
		return nil, err
	}

	levels := level.NewCachedStore(b.levels, cfg.Trust.LevelCacheTTL, level.WithCacheMetrics(cacheMetrics))
	m := trustmetrics.New()

	opts := []trustservice.Option{
		trustservice.WithLogger(log),
		trustservice.WithAuditPublisher(auditPublisher),
		trustservice.WithMetrics(m),
		trustservice.WithRequirementWriter(communities),
		trustservice.WithSyncBreaker(circuit.New("authz-role-sync",
			circuit.WithFailureThreshold(cfg.Trust.SyncFailureThreshold),
			circuit.WithCooldown(cfg.Trust.SyncCooldown),
		)),
	}
	if in.db != nil {
		opts = append(opts, trustservice.WithTx(newTrustPostgresTx(in.db, b.stores, cfg.Trust.TxTimeout)))
	}
	trust, err := trustservice.New(b.stores, levels, communities, communities, oracle, opts...)
	if err != nil {
		return nil, fmt.Errorf("trust service: %w", err)
	}

	job, err := reconcile.NewJob(communities, trust,
		reconcile.WithLogger(log),
		reconcile.WithAuditPublisher(auditPublisher),
		reconcile.WithMetrics(m),
	)
	if err != nil {
		return nil, err
	}

	return &app{
		communities: communities,
		trust:       trust,
		levels: trustservice.NewLevelService(levels, communities, communities,
			trustservice.WithLevelLogger(log),
			trustservice.WithLevelAuditPublisher(auditPublisher),
			trustservice.WithRoleResync(trust),
		),
		analytics:  trustservice.NewAnalyticsService(b.history, b.stores.Awards, b.stores.Grants),
		oracle:     oracle,
		reconciler: job,
		audit:      auditPublisher,
	}, nil
}

// seedDefaultLevels gives every community without a ladder the default one.
// CreateDefaultLevels leaves communities that already have levels untouched.
func (a *app) seedDefaultLevels(ctx context.Context, log *slog.Logger) error {
	ids, err := a.communities.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing communities: %w", err)
	}
	for _, cid := range ids {
		if _, err := a.levels.CreateDefaultLevels(ctx, cid); err != nil {
			return fmt.Errorf("seeding levels for %s: %w", cid, err)
		}
	}
	log.InfoContext(ctx, "default trust levels ensured", "communities", len(ids))
	return nil
}

// resyncAllRoles pushes every member of every community to the oracle, so
// tuples lost with an in-process oracle or written under old thresholds are
// rebuilt before traffic is served. Failures are logged; the reconciliation
// run retries them.
func (a *app) resyncAllRoles(ctx context.Context, log *slog.Logger) error {
	ids, err := a.communities.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("listing communities: %w", err)
	}
	total := 0
	for _, cid := range ids {
		n, err := a.trust.ResyncCommunityRoles(ctx, cid)
		total += n
		if err != nil {
			log.WarnContext(ctx, "startup trust role resync incomplete",
				"community_id", cid.String(),
				"synced", n,
				"error", err,
			)
		}
	}
	log.InfoContext(ctx, "trust roles resynced", "communities", len(ids), "members", total)
	return nil
}
