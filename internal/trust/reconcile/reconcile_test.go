package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustline/internal/trust/metrics"
	"trustline/internal/trust/service"
	id "trustline/pkg/domain"
	"trustline/pkg/platform/audit"
	"trustline/pkg/platform/audit/publisher"
	auditmemory "trustline/pkg/platform/audit/store/memory"
)

type staticCommunities []id.CommunityID

func (c staticCommunities) ListIDs(context.Context) ([]id.CommunityID, error) {
	return c, nil
}

type fakeReconciler struct {
	results map[id.CommunityID]*service.ReconcileResult
	failing map[id.CommunityID]error
	flushed int
	block   chan struct{}
	calls   int
}

func (f *fakeReconciler) ReconcileCommunity(_ context.Context, communityID id.CommunityID) (*service.ReconcileResult, error) {
	f.calls++
	if f.block != nil {
		<-f.block
	}
	if err := f.failing[communityID]; err != nil {
		return nil, err
	}
	return f.results[communityID], nil
}

func (f *fakeReconciler) FlushDeferredSyncs(context.Context) (int, error) {
	return f.flushed, nil
}

func TestJobRun(t *testing.T) {
	ctx := context.Background()
	a, b, c := id.NewCommunityID(), id.NewCommunityID(), id.NewCommunityID()

	t.Run("aggregates results and keeps going past a failure", func(t *testing.T) {
		store := auditmemory.NewInMemoryStore()
		m := metrics.NewWithRegisterer(prometheus.NewRegistry())
		rec := &fakeReconciler{
			results: map[id.CommunityID]*service.ReconcileResult{
				a: {CommunityID: a, Checked: 3, Drifted: 1, Synced: 1},
				c: {CommunityID: c, Checked: 2},
			},
			failing: map[id.CommunityID]error{b: errors.New("dangling level")},
			flushed: 4,
		}
		job, err := NewJob(staticCommunities{a, b, c}, rec,
			WithAuditPublisher(publisher.NewPublisher(store)),
			WithMetrics(m),
		)
		require.NoError(t, err)

		report, err := job.Run(ctx)
		require.Error(t, err)
		assert.ErrorContains(t, err, "dangling level")
		require.NotNil(t, report)
		assert.Equal(t, 3, report.Communities)
		assert.Equal(t, 5, report.Checked)
		assert.Equal(t, 1, report.Drifted)
		assert.Equal(t, 1, report.Synced)
		assert.Equal(t, 4, report.Flushed)
		assert.Equal(t, 1, report.Failed)
		assert.Equal(t, 3, rec.calls)

		events, err := store.ListAll(ctx)
		require.NoError(t, err)
		require.Len(t, events, 2)
		for _, e := range events {
			assert.Equal(t, string(audit.EventReconciliationCompleted), e.Action)
		}
		assert.Equal(t, 1, testutil.CollectAndCount(m.ReconcileRunDuration))
	})

	t.Run("overlapping runs are refused", func(t *testing.T) {
		rec := &fakeReconciler{
			results: map[id.CommunityID]*service.ReconcileResult{a: {CommunityID: a}},
			block:   make(chan struct{}),
		}
		job, err := NewJob(staticCommunities{a}, rec)
		require.NoError(t, err)

		done := make(chan error, 1)
		go func() {
			_, err := job.Run(ctx)
			done <- err
		}()
		require.Eventually(t, job.running.Load, time.Second, 10*time.Millisecond)

		_, err = job.Run(ctx)
		assert.ErrorIs(t, err, ErrAlreadyRunning)

		close(rec.block)
		require.NoError(t, <-done)
	})

	t.Run("requires collaborators", func(t *testing.T) {
		_, err := NewJob(nil, &fakeReconciler{})
		assert.Error(t, err)
		_, err = NewJob(staticCommunities{}, nil)
		assert.Error(t, err)
	})
}

func TestNewScheduler(t *testing.T) {
	job, err := NewJob(staticCommunities{}, &fakeReconciler{})
	require.NoError(t, err)

	_, err = NewScheduler(job, "not a schedule", nil)
	assert.Error(t, err)

	s, err := NewScheduler(job, "@every 1h", nil)
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}
