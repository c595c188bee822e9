package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/otodealz/otodealz-backend/internal/payments"
	"github.com/otodealz/otodealz-backend/pkg/db/models"
	"github.com/otodealz/otodealz-backend/pkg/logger"
)

const (
	settlementPollBatch   = 100
	settlementPollGrace   = 2 * time.Minute
	settlementPollTimeout = 10 * time.Second
)

type pendingIntentReader interface {
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PaymentIntent, error)
}

type settlementReconciler interface {
	ReconcileWithGateway(ctx context.Context, orderCode int64) (*payments.SettlementResult, error)
}

// SettlementPollJobParams configure the webhook fallback poller.
type SettlementPollJobParams struct {
	Logger    *logger.Logger
	Intents   pendingIntentReader
	Payments  settlementReconciler
	Grace     time.Duration
	BatchSize int
}

// NewSettlementPollJob builds the job that reconciles pending payment
// intents whose webhook never arrived.
func NewSettlementPollJob(params SettlementPollJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Intents == nil {
		return nil, fmt.Errorf("intent reader required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	grace := params.Grace
	if grace <= 0 {
		grace = settlementPollGrace
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = settlementPollBatch
	}
	return &settlementPollJob{
		logg:     params.Logger,
		intents:  params.Intents,
		payments: params.Payments,
		grace:    grace,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type settlementPollJob struct {
	logg     *logger.Logger
	intents  pendingIntentReader
	payments settlementReconciler
	grace    time.Duration
	batch    int
	now      func() time.Time
}

func (j *settlementPollJob) Name() string { return "settlement-poll" }

func (j *settlementPollJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.grace)
	intents, err := j.intents.ListPendingBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("list pending intents: %w", err)
	}
	if len(intents) == 0 {
		return nil
	}

	var errs error
	settled := 0
	for _, intent := range intents {
		result, reconcileErr := j.reconcile(ctx, intent.OrderCode)
		if reconcileErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %d: %w", intent.OrderCode, reconcileErr))
			continue
		}
		if result != nil && !result.AlreadySettled {
			settled++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":  cutoff,
		"checked": len(intents),
		"settled": settled,
	})
	j.logg.Info(logCtx, "settlement poll complete")
	return errs
}

// reconcile does one bounded status read with a single retry. Status reads
// are idempotent; settlement writes behind them are not retried here.
func (j *settlementPollJob) reconcile(ctx context.Context, orderCode int64) (*payments.SettlementResult, error) {
	attempt := func() (*payments.SettlementResult, error) {
		callCtx, cancel := context.WithTimeout(ctx, settlementPollTimeout)
		defer cancel()
		return j.payments.ReconcileWithGateway(callCtx, orderCode)
	}
	result, err := attempt()
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}
	return attempt()
}
