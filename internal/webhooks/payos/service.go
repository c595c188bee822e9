package payoswebhook

import (
	"context"
	"fmt"
	"time"

	"github.com/otodealz/otodealz-backend/internal/payments"
	pkgerrors "github.com/otodealz/otodealz-backend/pkg/errors"
	"github.com/otodealz/otodealz-backend/pkg/logger"
	"github.com/otodealz/otodealz-backend/pkg/payos"
)

const (
	dedupeScope      = "payos_webhook"
	defaultDedupeTTL = 24 * time.Hour
)

type settlementApplier interface {
	ApplySettlement(ctx context.Context, input payments.SettlementInput) (*payments.SettlementResult, error)
}

type dedupeStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	IdempotencyKey(scope, id string) string
}

type ServiceParams struct {
	Payments    settlementApplier
	Redis       dedupeStore
	ChecksumKey string
	DedupeTTL   time.Duration
	Logger      *logger.Logger
}

// Service turns verified PayOS push notifications into settlements. The push
// path is primary; the cron poller covers webhooks that never arrive.
type Service struct {
	payments    settlementApplier
	redis       dedupeStore
	checksumKey string
	dedupeTTL   time.Duration
	logg        *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if params.Redis == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "redis client required")
	}
	if params.ChecksumKey == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checksum key required")
	}
	if params.Logger == nil {
		params.Logger = logger.New(logger.Options{ServiceName: "payos-webhook"})
	}
	if params.DedupeTTL <= 0 {
		params.DedupeTTL = defaultDedupeTTL
	}
	return &Service{
		payments:    params.Payments,
		redis:       params.Redis,
		checksumKey: params.ChecksumKey,
		dedupeTTL:   params.DedupeTTL,
		logg:        params.Logger,
	}, nil
}

// HandleWebhook verifies the HMAC, dedupes redeliveries by order code and
// outcome, and applies the settlement. A nil result means the notification
// was acknowledged without changing anything.
func (s *Service) HandleWebhook(ctx context.Context, payload *payos.WebhookPayload) (*payments.SettlementResult, error) {
	if payload == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "webhook payload required")
	}
	if !payos.VerifyWebhookSignature(s.checksumKey, payload.Data, payload.Signature) {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature")
	}
	// PayOS sends a zero order code probe when the webhook URL is registered.
	if payload.Data.OrderCode == 0 {
		return nil, nil
	}

	succeeded := payload.Success && payload.Data.Code == "00"
	key := s.redis.IdempotencyKey(dedupeScope, fmt.Sprintf("%d:%s", payload.Data.OrderCode, payload.Data.Code))
	claimed, err := s.redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), s.dedupeTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "webhook dedupe check")
	}
	if !claimed {
		s.logg.Info(s.logg.WithField(ctx, "order_code", payload.Data.OrderCode), "duplicate webhook delivery skipped")
		return nil, nil
	}

	result, err := s.payments.ApplySettlement(ctx, payments.SettlementInput{
		OrderCode:     payload.Data.OrderCode,
		Succeeded:     succeeded,
		GatewayTxnID:  payload.Data.Reference,
		FailureCode:   payload.Data.Code,
		FailureReason: payload.Data.Desc,
	})
	if err != nil {
		// Release the claim so the gateway's redelivery can retry.
		if delErr := s.redis.Del(ctx, key); delErr != nil {
			s.logg.Error(ctx, "release webhook dedupe key", delErr)
		}
		return nil, err
	}
	return result, nil
}
