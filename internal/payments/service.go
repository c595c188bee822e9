package payments

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/otodealz/otodealz-backend/pkg/config"
	"github.com/otodealz/otodealz-backend/pkg/db"
	"github.com/otodealz/otodealz-backend/pkg/db/models"
	"github.com/otodealz/otodealz-backend/pkg/enums"
	pkgerrors "github.com/otodealz/otodealz-backend/pkg/errors"
	"github.com/otodealz/otodealz-backend/pkg/logger"
	"github.com/otodealz/otodealz-backend/pkg/outbox"
	"github.com/otodealz/otodealz-backend/pkg/outbox/payloads"
	"github.com/otodealz/otodealz-backend/pkg/payos"
)

const (
	orderCodeIndex    = "idx_payment_intents_order_code"
	activeIntentIndex = "idx_payment_intents_active"
	orderCodeRetries  = 3
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type gatewayClient interface {
	CreatePaymentLink(ctx context.Context, params payos.CreatePaymentLinkParams) (*payos.PaymentLink, error)
	GetPaymentLink(ctx context.Context, orderCode int64) (*payos.PaymentLinkStatus, error)
	CancelPaymentLink(ctx context.Context, orderCode int64, reason string) error
}

// appointmentStore is the slice of the appointments repository the adapter
// needs: a locked read and a field update inside the same transaction.
type appointmentStore interface {
	FindForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Appointment, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, fields map[string]any) error
}

type vehicleMarker interface {
	MarkSold(ctx context.Context, tx *gorm.DB, id uuid.UUID, soldAt time.Time) error
}

// Service creates payment intents against the gateway and applies settlements.
type Service interface {
	CreateDeposit(ctx context.Context, input CreateIntentInput) (*models.PaymentIntent, error)
	CreateFullPayment(ctx context.Context, input CreateFullPaymentInput) (*models.PaymentIntent, error)
	CreateRemaining(ctx context.Context, input CreateIntentInput) (*models.PaymentIntent, error)
	ApplySettlement(ctx context.Context, input SettlementInput) (*SettlementResult, error)
	ReconcileWithGateway(ctx context.Context, orderCode int64) (*SettlementResult, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.PaymentIntent, error)
	VoidPending(ctx context.Context, tx *gorm.DB, appointmentID uuid.UUID) ([]int64, error)
	CancelLinks(ctx context.Context, orderCodes []int64, reason string)
}

type service struct {
	repo         Repository
	tx           txRunner
	outbox       outboxPublisher
	gateway      gatewayClient
	appointments appointmentStore
	vehicles     vehicleMarker
	policy       config.PaymentsConfig
	payosCfg     config.PayOSConfig
	logg         *logger.Logger
}

// ServiceParams bundles the payment adapter dependencies.
type ServiceParams struct {
	Repo         Repository
	Tx           txRunner
	Outbox       outboxPublisher
	Gateway      gatewayClient
	Appointments appointmentStore
	Vehicles     vehicleMarker
	Policy       config.PaymentsConfig
	PayOS        config.PayOSConfig
	Logger       *logger.Logger
}

// CreateIntentInput identifies the appointment money should move for.
// Replace supersedes a still-pending intent of the same kind instead of
// returning it.
type CreateIntentInput struct {
	AppointmentID uuid.UUID
	Actor         *outbox.ActorRef
	Replace       bool
}

// CreateFullPaymentInput adds the human-in-the-loop guard for full charges.
type CreateFullPaymentInput struct {
	CreateIntentInput
	Confirm bool
}

// SettlementInput is one gateway result keyed by order code, from webhook or
// poller.
type SettlementInput struct {
	OrderCode     int64
	Succeeded     bool
	GatewayTxnID  string
	FailureCode   string
	FailureReason string
}

// SettlementResult reports what the settlement did.
type SettlementResult struct {
	IntentID          uuid.UUID                 `json:"intent_id"`
	AppointmentID     uuid.UUID                 `json:"appointment_id"`
	Kind              enums.PaymentKind         `json:"kind"`
	IntentStatus      enums.PaymentIntentStatus `json:"intent_status"`
	AppointmentStatus enums.AppointmentStatus   `json:"appointment_status"`
	RemainingVND      int64                     `json:"remaining_vnd"`
	AlreadySettled    bool                      `json:"already_settled"`
}

// NewService wires the payment gateway adapter.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Gateway == nil {
		return nil, fmt.Errorf("gateway client required")
	}
	if params.Appointments == nil {
		return nil, fmt.Errorf("appointments store required")
	}
	if params.Vehicles == nil {
		return nil, fmt.Errorf("vehicle marker required")
	}
	if params.Policy.DepositRatePercent <= 0 || params.Policy.DepositRatePercent > 100 {
		return nil, fmt.Errorf("deposit rate must be within (0,100]")
	}
	if params.Logger == nil {
		params.Logger = logger.New(logger.Options{ServiceName: "payments"})
	}
	return &service{
		repo:         params.Repo,
		tx:           params.Tx,
		outbox:       params.Outbox,
		gateway:      params.Gateway,
		appointments: params.Appointments,
		vehicles:     params.Vehicles,
		policy:       params.Policy,
		payosCfg:     params.PayOS,
		logg:         params.Logger,
	}, nil
}

// DepositAmount is the hold-vehicle amount: the configured percentage of the
// vehicle price, floored to whole VND.
func DepositAmount(vehiclePriceVND, ratePercent int64) int64 {
	return decimal.NewFromInt(vehiclePriceVND).
		Mul(decimal.NewFromInt(ratePercent)).
		Div(decimal.NewFromInt(100)).
		Floor().
		IntPart()
}

func (s *service) CreateDeposit(ctx context.Context, input CreateIntentInput) (*models.PaymentIntent, error) {
	return s.createIntent(ctx, enums.PaymentKindDeposit, input, func(appointment *models.Appointment) (int64, error) {
		if appointment.Status != enums.AppointmentStatusConfirmed {
			return 0, stateConflict(appointment.Status, "deposit requires a confirmed appointment")
		}
		amount := DepositAmount(appointment.VehiclePriceVND, s.policy.DepositRatePercent)
		if amount <= 0 {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "vehicle price must be positive")
		}
		return amount, nil
	})
}

func (s *service) CreateFullPayment(ctx context.Context, input CreateFullPaymentInput) (*models.PaymentIntent, error) {
	if !input.Confirm {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "full payment requires explicit confirmation")
	}
	return s.createIntent(ctx, enums.PaymentKindFull, input.CreateIntentInput, func(appointment *models.Appointment) (int64, error) {
		if appointment.Status != enums.AppointmentStatusConfirmed {
			return 0, stateConflict(appointment.Status, "full payment requires a confirmed appointment")
		}
		amount := appointment.VehiclePriceVND - appointment.PaidAmountVND
		if amount <= 0 {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "nothing left to charge")
		}
		return amount, nil
	})
}

func (s *service) CreateRemaining(ctx context.Context, input CreateIntentInput) (*models.PaymentIntent, error) {
	return s.createIntent(ctx, enums.PaymentKindRemaining, input, func(appointment *models.Appointment) (int64, error) {
		if appointment.Status != enums.AppointmentStatusAwaitingRemainingPayment {
			return 0, stateConflict(appointment.Status, "remaining payment requires awaiting_remaining_payment")
		}
		if appointment.RemainingAmountVND <= 0 {
			return 0, pkgerrors.New(pkgerrors.CodeValidation, "no remaining amount to collect")
		}
		return appointment.RemainingAmountVND, nil
	})
}

func (s *service) createIntent(ctx context.Context, kind enums.PaymentKind, input CreateIntentInput, amountFor func(*models.Appointment) (int64, error)) (*models.PaymentIntent, error) {
	if input.AppointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}

	var (
		intent     *models.PaymentIntent
		superseded *models.PaymentIntent
		created    bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		appointment, err := s.appointments.FindForUpdate(ctx, tx, input.AppointmentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "appointment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load appointment")
		}
		amount, err := amountFor(appointment)
		if err != nil {
			return err
		}

		repo := s.repo.WithTx(tx)
		if existing, err := repo.FindActive(ctx, appointment.ID, kind); err == nil {
			if !input.Replace {
				// Concurrent or repeated create collapses into the live intent.
				intent = existing
				return nil
			}
			now := time.Now().UTC()
			if err := repo.UpdateFields(ctx, existing.ID, map[string]any{
				"status":        enums.PaymentIntentStatusSuperseded,
				"superseded_at": now,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "supersede intent")
			}
			superseded = existing
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check active intent")
		}

		row := &models.PaymentIntent{
			AppointmentID: appointment.ID,
			Kind:          kind,
			Status:        enums.PaymentIntentStatusPending,
			AmountVND:     amount,
		}
		for attempt := 0; ; attempt++ {
			row.OrderCode = newOrderCode()
			err := repo.Create(ctx, row)
			if err == nil {
				break
			}
			// Millisecond-scale order codes can collide under load; only a
			// collision on the code itself is worth regenerating.
			if db.IsUniqueViolation(err, orderCodeIndex) && attempt < orderCodeRetries {
				continue
			}
			if db.IsUniqueViolation(err, activeIntentIndex) {
				return pkgerrors.New(pkgerrors.CodeConflict, "an active payment of this kind already exists")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
		}
		intent = row
		created = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !created {
		return intent, nil
	}

	// The gateway call happens outside the row lock. Intent creation is never
	// retried automatically; a failed call leaves a failed row behind and the
	// caller must act again.
	link, err := s.gateway.CreatePaymentLink(ctx, payos.CreatePaymentLinkParams{
		OrderCode:   intent.OrderCode,
		AmountVND:   intent.AmountVND,
		Description: fmt.Sprintf("OTD %s %d", kind, intent.OrderCode%1_000_000),
		ReturnURL:   s.payosCfg.ReturnURL,
		CancelURL:   s.payosCfg.CancelURL,
	})
	if err != nil {
		fields := map[string]any{
			"status":         enums.PaymentIntentStatusFailed,
			"failure_reason": err.Error(),
		}
		if typed := pkgerrors.As(err); typed != nil {
			if details, ok := typed.Details().(map[string]any); ok {
				if code, ok := details["provider_code"].(string); ok {
					fields["failure_code"] = code
				}
			}
		}
		if updateErr := s.repo.UpdateFields(ctx, intent.ID, fields); updateErr != nil && s.logg != nil {
			s.logg.Error(ctx, "mark intent failed", updateErr)
		}
		return nil, err
	}

	qr := link.QRCode
	checkout := link.CheckoutURL
	if err := s.repo.UpdateFields(ctx, intent.ID, map[string]any{
		"qr_code":     qr,
		"payment_url": checkout,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment link")
	}
	intent.QRCode = &qr
	intent.PaymentURL = &checkout

	if superseded != nil {
		if cancelErr := s.gateway.CancelPaymentLink(ctx, superseded.OrderCode, "superseded by new intent"); cancelErr != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "order_code", superseded.OrderCode), "cancel superseded link failed")
		}
	}
	return intent, nil
}

// ApplySettlement records a gateway outcome. A duplicate success for an
// already settled intent is a no-op, not an error.
func (s *service) ApplySettlement(ctx context.Context, input SettlementInput) (*SettlementResult, error) {
	if input.OrderCode <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order code required")
	}

	var result *SettlementResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		intent, err := repo.FindByOrderCode(ctx, input.OrderCode)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment intent not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment intent")
		}

		appointment, err := s.appointments.FindForUpdate(ctx, tx, intent.AppointmentID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load appointment")
		}

		// Re-read under the appointment lock so a concurrent settlement of
		// the same order code is observed.
		intent, err = repo.FindByOrderCode(ctx, input.OrderCode)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload payment intent")
		}
		if intent.Status.IsTerminal() {
			result = &SettlementResult{
				IntentID:          intent.ID,
				AppointmentID:     appointment.ID,
				Kind:              intent.Kind,
				IntentStatus:      intent.Status,
				AppointmentStatus: appointment.Status,
				RemainingVND:      appointment.RemainingAmountVND,
				AlreadySettled:    true,
			}
			return nil
		}

		now := time.Now().UTC()
		if !input.Succeeded {
			fields := map[string]any{"status": enums.PaymentIntentStatusFailed}
			if input.FailureCode != "" {
				fields["failure_code"] = input.FailureCode
			}
			if input.FailureReason != "" {
				fields["failure_reason"] = input.FailureReason
			}
			if err := repo.UpdateFields(ctx, intent.ID, fields); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark intent failed")
			}
			result = &SettlementResult{
				IntentID:          intent.ID,
				AppointmentID:     appointment.ID,
				Kind:              intent.Kind,
				IntentStatus:      enums.PaymentIntentStatusFailed,
				AppointmentStatus: appointment.Status,
				RemainingVND:      appointment.RemainingAmountVND,
			}
			return nil
		}

		fields := map[string]any{
			"status":     enums.PaymentIntentStatusSucceeded,
			"settled_at": now,
		}
		if input.GatewayTxnID != "" {
			fields["gateway_txn_id"] = input.GatewayTxnID
		}
		if err := repo.UpdateFields(ctx, intent.ID, fields); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark intent succeeded")
		}

		status, remaining, err := s.advanceAppointment(ctx, tx, appointment, intent, now, input.GatewayTxnID)
		if err != nil {
			return err
		}
		result = &SettlementResult{
			IntentID:          intent.ID,
			AppointmentID:     appointment.ID,
			Kind:              intent.Kind,
			IntentStatus:      enums.PaymentIntentStatusSucceeded,
			AppointmentStatus: status,
			RemainingVND:      remaining,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// advanceAppointment applies the money movement to the locked appointment row
// and drives the status transition a successful settlement implies.
func (s *service) advanceAppointment(ctx context.Context, tx *gorm.DB, appointment *models.Appointment, intent *models.PaymentIntent, now time.Time, gatewayTxnID string) (enums.AppointmentStatus, int64, error) {
	paid := appointment.PaidAmountVND + intent.AmountVND
	remaining := appointment.VehiclePriceVND - paid
	if remaining < 0 {
		remaining = 0
	}

	fields := map[string]any{
		"paid_amount_vnd":      paid,
		"remaining_amount_vnd": remaining,
	}
	status := appointment.Status

	switch intent.Kind {
	case enums.PaymentKindDeposit:
		fields["deposit_amount_vnd"] = intent.AmountVND
		if appointment.Status == enums.AppointmentStatusConfirmed {
			status = enums.AppointmentStatusAwaitingRemainingPayment
			fields["status"] = status
		}
	case enums.PaymentKindFull, enums.PaymentKindRemaining:
		if remaining <= 0 && !appointment.Status.IsTerminal() {
			status = enums.AppointmentStatusCompleted
			fields["status"] = status
			fields["completed_at"] = now
		}
	}

	if err := s.appointments.UpdateFields(ctx, tx, appointment.ID, fields); err != nil {
		return status, remaining, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update appointment amounts")
	}

	if intent.Kind == enums.PaymentKindDeposit {
		event := outbox.DomainEvent{
			EventType:     enums.EventDepositSucceeded,
			AggregateType: enums.AggregatePaymentIntent,
			AggregateID:   intent.ID,
			Version:       1,
			Data: payloads.DepositSucceededEvent{
				PaymentIntentID: intent.ID,
				AppointmentID:   appointment.ID,
				AmountVND:       intent.AmountVND,
				OrderCode:       intent.OrderCode,
				SettledAt:       now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return status, remaining, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit deposit succeeded")
		}
	}

	settled := outbox.DomainEvent{
		EventType:     enums.EventPaymentSettled,
		AggregateType: enums.AggregatePaymentIntent,
		AggregateID:   intent.ID,
		Version:       1,
		Data: payloads.PaymentSettledEvent{
			PaymentIntentID: intent.ID,
			AppointmentID:   appointment.ID,
			Kind:            intent.Kind,
			AmountVND:       intent.AmountVND,
			OrderCode:       intent.OrderCode,
			GatewayTxnID:    gatewayTxnID,
			SettledAt:       now,
		},
	}
	if err := s.outbox.Emit(ctx, tx, settled); err != nil {
		return status, remaining, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment settled")
	}

	if status == enums.AppointmentStatusCompleted && appointment.Status != enums.AppointmentStatusCompleted {
		if err := s.vehicles.MarkSold(ctx, tx, appointment.VehicleID, now); err != nil {
			return status, remaining, err
		}
		completed := outbox.DomainEvent{
			EventType:     enums.EventAppointmentCompleted,
			AggregateType: enums.AggregateAppointment,
			AggregateID:   appointment.ID,
			Version:       1,
			Data: payloads.AppointmentCompletedEvent{
				AppointmentID: appointment.ID,
				CompletedAt:   now,
			},
		}
		if err := s.outbox.Emit(ctx, tx, completed); err != nil {
			return status, remaining, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit appointment completed")
		}
	}
	return status, remaining, nil
}

// ReconcileWithGateway pulls the link status for one pending order code and
// applies it. Used by the fallback poller when no webhook arrived.
func (s *service) ReconcileWithGateway(ctx context.Context, orderCode int64) (*SettlementResult, error) {
	link, err := s.gateway.GetPaymentLink(ctx, orderCode)
	if err != nil {
		return nil, err
	}
	switch link.Status {
	case payos.LinkStatusPaid:
		return s.ApplySettlement(ctx, SettlementInput{
			OrderCode:    orderCode,
			Succeeded:    true,
			GatewayTxnID: link.TransactionRef,
		})
	case payos.LinkStatusCancelled, payos.LinkStatusExpired:
		return s.ApplySettlement(ctx, SettlementInput{
			OrderCode:     orderCode,
			Succeeded:     false,
			FailureCode:   link.Status,
			FailureReason: "link " + link.Status,
		})
	default:
		return nil, nil
	}
}

func (s *service) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.PaymentIntent, error) {
	if appointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}
	intents, err := s.repo.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment intents")
	}
	return intents, nil
}

// VoidPending marks every still-pending intent for the appointment as
// superseded. Runs inside the orchestrator's cancellation transaction; the
// caller cancels the gateway links after commit.
func (s *service) VoidPending(ctx context.Context, tx *gorm.DB, appointmentID uuid.UUID) ([]int64, error) {
	repo := s.repo
	if tx != nil {
		repo = s.repo.WithTx(tx)
	}
	intents, err := repo.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list payment intents")
	}
	now := time.Now().UTC()
	var orderCodes []int64
	for _, intent := range intents {
		if intent.Status != enums.PaymentIntentStatusPending {
			continue
		}
		if err := repo.UpdateFields(ctx, intent.ID, map[string]any{
			"status":        enums.PaymentIntentStatusSuperseded,
			"superseded_at": now,
		}); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "void pending intent")
		}
		orderCodes = append(orderCodes, intent.OrderCode)
	}
	return orderCodes, nil
}

// CancelLinks closes gateway links best effort. Failures are logged, not
// returned; the intents are already voided locally.
func (s *service) CancelLinks(ctx context.Context, orderCodes []int64, reason string) {
	for _, orderCode := range orderCodes {
		if err := s.gateway.CancelPaymentLink(ctx, orderCode, reason); err != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "order_code", orderCode), "cancel payment link failed")
		}
	}
}

func stateConflict(current enums.AppointmentStatus, message string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).
		WithDetails(map[string]any{"current_status": current})
}

// newOrderCode builds a gateway-unique numeric code: millisecond timestamp
// with a random three digit suffix.
func newOrderCode() int64 {
	suffix, err := rand.Int(rand.Reader, big.NewInt(1000))
	if err != nil {
		return time.Now().UnixNano()
	}
	return time.Now().UnixMilli()*1000 + suffix.Int64()
}
