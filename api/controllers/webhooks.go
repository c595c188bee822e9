package controllers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/otodealz/otodealz-backend/api/responses"
	"github.com/otodealz/otodealz-backend/internal/payments"
	pkgerrors "github.com/otodealz/otodealz-backend/pkg/errors"
	"github.com/otodealz/otodealz-backend/pkg/logger"
	"github.com/otodealz/otodealz-backend/pkg/payos"
)

// PayOSWebhookService is the slice of the webhook handler the controller needs.
type PayOSWebhookService interface {
	HandleWebhook(ctx context.Context, payload *payos.WebhookPayload) (*payments.SettlementResult, error)
}

// PayOSWebhook receives gateway settlement callbacks. Signature checks and
// deduplication happen in the service.
func PayOSWebhook(svc PayOSWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		var payload payos.WebhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook payload"))
			return
		}

		result, err := svc.HandleWebhook(ctx, &payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if result == nil {
			// Verification probe or duplicate delivery.
			responses.WriteSuccess(w, map[string]string{"status": "ignored"})
			return
		}
		responses.WriteSuccess(w, result)
	}
}
