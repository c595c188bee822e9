package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/otodealz/otodealz-backend/internal/payments"
	"github.com/otodealz/otodealz-backend/pkg/db/models"
	"github.com/otodealz/otodealz-backend/pkg/logger"
)

type fakeIntentReader struct {
	intents    []models.PaymentIntent
	lastCutoff time.Time
	err        error
}

func (f *fakeIntentReader) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentIntent, error) {
	f.lastCutoff = cutoff
	if f.err != nil {
		return nil, f.err
	}
	return f.intents, nil
}

type fakeReconciler struct {
	calls     map[int64]int
	failUntil map[int64]int
	failWith  error
}

func newFakeReconciler() *fakeReconciler {
	return &fakeReconciler{calls: map[int64]int{}, failUntil: map[int64]int{}}
}

func (f *fakeReconciler) ReconcileWithGateway(ctx context.Context, orderCode int64) (*payments.SettlementResult, error) {
	f.calls[orderCode]++
	if f.calls[orderCode] <= f.failUntil[orderCode] {
		if f.failWith != nil {
			return nil, f.failWith
		}
		return nil, errors.New("gateway timeout")
	}
	return &payments.SettlementResult{}, nil
}

func newSettlementPollJob(t *testing.T, reader *fakeIntentReader, reconciler *fakeReconciler) *settlementPollJob {
	t.Helper()
	jobIface, err := NewSettlementPollJob(SettlementPollJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "test"}),
		Intents:  reader,
		Payments: reconciler,
		Grace:    2 * time.Minute,
	})
	if err != nil {
		t.Fatalf("NewSettlementPollJob: %v", err)
	}
	job, ok := jobIface.(*settlementPollJob)
	if !ok {
		t.Fatalf("expected settlementPollJob, got %T", jobIface)
	}
	return job
}

func TestSettlementPollReconcilesPendingIntents(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reader := &fakeIntentReader{intents: []models.PaymentIntent{
		{OrderCode: 101},
		{OrderCode: 102},
	}}
	reconciler := newFakeReconciler()
	job := newSettlementPollJob(t, reader, reconciler)
	job.now = func() time.Time { return now }

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	expectedCutoff := now.Add(-2 * time.Minute)
	if !reader.lastCutoff.Equal(expectedCutoff) {
		t.Fatalf("expected cutoff %s, got %s", expectedCutoff, reader.lastCutoff)
	}
	if reconciler.calls[101] != 1 || reconciler.calls[102] != 1 {
		t.Fatalf("expected one reconcile per intent, got %v", reconciler.calls)
	}
}

func TestSettlementPollRetriesStatusReadOnce(t *testing.T) {
	reader := &fakeIntentReader{intents: []models.PaymentIntent{{OrderCode: 101}}}
	reconciler := newFakeReconciler()
	reconciler.failUntil[101] = 1
	job := newSettlementPollJob(t, reader, reconciler)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if reconciler.calls[101] != 2 {
		t.Fatalf("expected retry after transient failure, got %d calls", reconciler.calls[101])
	}
}

func TestSettlementPollCollectsPerIntentErrors(t *testing.T) {
	reader := &fakeIntentReader{intents: []models.PaymentIntent{
		{OrderCode: 101},
		{OrderCode: 102},
	}}
	reconciler := newFakeReconciler()
	reconciler.failUntil[101] = 5
	job := newSettlementPollJob(t, reader, reconciler)

	err := job.Run(context.Background())
	if err == nil {
		t.Fatal("expected aggregated error")
	}
	if reconciler.calls[102] != 1 {
		t.Fatalf("expected healthy intent still reconciled, got %d calls", reconciler.calls[102])
	}
}

func TestSettlementPollEmptyFeedIsNoop(t *testing.T) {
	reader := &fakeIntentReader{}
	reconciler := newFakeReconciler()
	job := newSettlementPollJob(t, reader, reconciler)

	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(reconciler.calls) != 0 {
		t.Fatalf("expected no reconciles, got %v", reconciler.calls)
	}
}
