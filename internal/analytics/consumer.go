package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"

	"github.com/otodealz/otodealz-backend/pkg/enums"
	"github.com/otodealz/otodealz-backend/pkg/logger"
	"github.com/otodealz/otodealz-backend/pkg/outbox"
)

const consumerName = "analytics"

type tableInserter interface {
	InsertRows(ctx context.Context, table string, rows []any) error
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Consumer writes settled revenue events to BigQuery while honoring Redis
// idempotency. Everything else on the analytics topic is acknowledged and
// dropped.
type Consumer struct {
	client      tableInserter
	table       string
	manager     idempotencyChecker
	logg        *logger.Logger
	eventFilter map[enums.OutboxEventType]struct{}
}

// NewConsumer builds the revenue consumer.
func NewConsumer(client tableInserter, table string, manager idempotencyChecker, logg *logger.Logger) (*Consumer, error) {
	if client == nil {
		return nil, fmt.Errorf("bigquery client required")
	}
	if strings.TrimSpace(table) == "" {
		return nil, fmt.Errorf("bigquery table name required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		client:  client,
		table:   strings.TrimSpace(table),
		manager: manager,
		logg:    logg,
		eventFilter: map[enums.OutboxEventType]struct{}{
			enums.EventDepositSucceeded:       {},
			enums.EventPaymentSettled:         {},
			enums.EventPayoutReleaseRequested: {},
		},
	}, nil
}

// Process ingests one outbox envelope into the revenue table.
func (c *Consumer) Process(ctx context.Context, eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) error {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"event_id":   envelope.EventID,
		"event_type": eventType,
	})

	if _, ok := c.eventFilter[eventType]; !ok {
		c.logg.Info(logCtx, "event not handled by analytics consumer")
		return nil
	}

	if envelope.EventID == "" {
		return fmt.Errorf("event id missing")
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		return fmt.Errorf("parse event id: %w", err)
	}

	already, err := c.manager.CheckAndMarkProcessed(ctx, consumerName, eventID)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return nil
	}

	row, err := buildRevenueRow(eventType, envelope)
	if err != nil {
		c.logg.Error(logCtx, "failed to build revenue row", err)
		_ = c.manager.Delete(ctx, consumerName, eventID)
		return err
	}

	if err := c.client.InsertRows(ctx, c.table, []any{row}); err != nil {
		c.logg.Error(logCtx, "failed to insert revenue row", err)
		_ = c.manager.Delete(ctx, consumerName, eventID)
		return err
	}

	c.logg.Info(logCtx, "revenue event ingested")
	return nil
}

type revenueEventRow struct {
	EventID         string             `bigquery:"event_id"`
	EventType       string             `bigquery:"event_type"`
	OccurredAt      time.Time          `bigquery:"occurred_at"`
	AppointmentID   *string            `bigquery:"appointment_id"`
	PaymentIntentID *string            `bigquery:"payment_intent_id"`
	SellerID        *string            `bigquery:"seller_id"`
	PaymentKind     *string            `bigquery:"payment_kind"`
	AmountVND       *int64             `bigquery:"amount_vnd"`
	OrderCode       *int64             `bigquery:"order_code"`
	Payload         cbigquery.NullJSON `bigquery:"payload"`
}

func buildRevenueRow(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) (*revenueEventRow, error) {
	payload := map[string]any{}
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil, fmt.Errorf("decode payload: %w", err)
		}
		if payload == nil {
			payload = map[string]any{}
		}
	}

	payloadJSON := cbigquery.NullJSON{}
	if len(envelope.Data) > 0 {
		payloadJSON.Valid = true
		payloadJSON.JSONVal = string(envelope.Data)
	}

	return &revenueEventRow{
		EventID:         envelope.EventID,
		EventType:       string(eventType),
		OccurredAt:      envelope.OccurredAt,
		AppointmentID:   stringValue(payload, "appointment_id"),
		PaymentIntentID: stringValue(payload, "payment_intent_id"),
		SellerID:        stringValue(payload, "seller_id"),
		PaymentKind:     stringValue(payload, "kind"),
		AmountVND:       int64Value(payload, "amount_vnd"),
		OrderCode:       int64Value(payload, "order_code"),
		Payload:         payloadJSON,
	}, nil
}

func stringValue(payload map[string]any, key string) *string {
	if raw, ok := payload[key]; ok {
		if str, ok := raw.(string); ok {
			trimmed := strings.TrimSpace(str)
			if trimmed != "" {
				return &trimmed
			}
		}
	}
	return nil
}

func int64Value(payload map[string]any, key string) *int64 {
	raw, ok := payload[key]
	if !ok {
		return nil
	}
	// JSON numbers decode as float64.
	if num, ok := raw.(float64); ok {
		value := int64(num)
		return &value
	}
	return nil
}
