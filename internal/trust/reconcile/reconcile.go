// Package reconcile periodically checks every TrustView against the ledgers,
// resyncs every member's trust roles and replays role syncs the oracle could
// not take at mutation time.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"trustline/internal/trust/metrics"
	"trustline/internal/trust/service"
	id "trustline/pkg/domain"
	"trustline/pkg/platform/audit"
	"trustline/pkg/requestcontext"
)

// ErrAlreadyRunning is returned when a run is requested while one is active.
var ErrAlreadyRunning = errors.New("reconciliation already running")

type CommunityLister interface {
	ListIDs(ctx context.Context) ([]id.CommunityID, error)
}

type TrustReconciler interface {
	ReconcileCommunity(ctx context.Context, communityID id.CommunityID) (*service.ReconcileResult, error)
	FlushDeferredSyncs(ctx context.Context) (int, error)
}

// Report sums one run over every community.
type Report struct {
	Communities int
	Checked     int
	Drifted     int
	Synced      int
	Flushed     int
	Failed      int
	Duration    time.Duration
}

type Job struct {
	communities CommunityLister
	trust       TrustReconciler
	timeout     time.Duration

	logger         *slog.Logger
	auditPublisher audit.Emitter
	metrics        *metrics.Metrics

	running atomic.Bool
}

type Option func(*Job)

func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) {
		j.logger = logger
	}
}

func WithAuditPublisher(publisher audit.Emitter) Option {
	return func(j *Job) {
		j.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(j *Job) {
		j.metrics = m
	}
}

// WithTimeout bounds a whole run. Zero means no bound beyond the caller's ctx.
func WithTimeout(d time.Duration) Option {
	return func(j *Job) {
		j.timeout = d
	}
}

func NewJob(communities CommunityLister, trust TrustReconciler, opts ...Option) (*Job, error) {
	if communities == nil {
		return nil, errors.New("community lister is required")
	}
	if trust == nil {
		return nil, errors.New("trust reconciler is required")
	}
	j := &Job{communities: communities, trust: trust}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Run reconciles every community, then flushes deferred role syncs. A failing
// community is logged and counted; the run carries on with the rest.
func (j *Job) Run(ctx context.Context) (*Report, error) {
	if !j.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer j.running.Store(false)

	start := time.Now()
	ctx = requestcontext.WithTime(ctx, start)
	if j.metrics != nil {
		defer j.metrics.ObserveReconcileRun(start)
	}
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	ids, err := j.communities.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing communities: %w", err)
	}

	report := &Report{}
	var errs []error
	for _, cid := range ids {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		result, err := j.trust.ReconcileCommunity(ctx, cid)
		if result != nil {
			report.Checked += result.Checked
			report.Drifted += result.Drifted
			report.Synced += result.Synced
		}
		report.Communities++
		if err != nil {
			report.Failed++
			errs = append(errs, fmt.Errorf("community %s: %w", cid, err))
			if j.logger != nil {
				j.logger.ErrorContext(ctx, "community reconciliation failed",
					"community_id", cid.String(),
					"error", err,
				)
			}
			continue
		}
		j.emit(ctx, result)
	}

	flushed, err := j.trust.FlushDeferredSyncs(ctx)
	report.Flushed = flushed
	if err != nil {
		errs = append(errs, fmt.Errorf("flushing deferred syncs: %w", err))
	}
	report.Duration = time.Since(start)

	if j.logger != nil {
		j.logger.InfoContext(ctx, "reconciliation run finished",
			"communities", report.Communities,
			"checked", report.Checked,
			"drifted", report.Drifted,
			"synced", report.Synced,
			"flushed", report.Flushed,
			"failed", report.Failed,
			"duration", report.Duration,
		)
	}
	return report, errors.Join(errs...)
}

func (j *Job) emit(ctx context.Context, result *service.ReconcileResult) {
	if j.auditPublisher == nil || result == nil {
		return
	}
	event := audit.EventReconciliationCompleted
	_ = j.auditPublisher.Emit(ctx, audit.Event{
		Category:    event.Category(),
		Timestamp:   requestcontext.Now(ctx),
		CommunityID: result.CommunityID,
		Action:      string(event),
		Reason:      fmt.Sprintf("checked=%d drifted=%d synced=%d", result.Checked, result.Drifted, result.Synced),
		PointsDelta: result.Drifted,
	})
}
