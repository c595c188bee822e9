package controllers

import (
	"net/http"

	"github.com/otodealz/otodealz-backend/api/responses"
	"github.com/otodealz/otodealz-backend/api/validators"
	"github.com/otodealz/otodealz-backend/internal/payments"
	pkgerrors "github.com/otodealz/otodealz-backend/pkg/errors"
	"github.com/otodealz/otodealz-backend/pkg/logger"
	"github.com/otodealz/otodealz-backend/pkg/outbox"
)

type createIntentRequest struct {
	Replace bool `json:"replace,omitempty"`
}

type createFullPaymentRequest struct {
	Replace bool `json:"replace,omitempty"`
	Confirm bool `json:"confirm"`
}

// PaymentCreateDeposit issues a QR payment link for the deposit amount.
func PaymentCreateDeposit(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		appointmentID, err := parseUUIDParam(r, "appointmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actorID, role, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createIntentRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.CreateDeposit(r.Context(), payments.CreateIntentInput{
			AppointmentID: appointmentID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: string(role)},
			Replace:       req.Replace,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, intent)
	}
}

// PaymentCreateFull issues a QR link for the entire vehicle price. The caller
// must set confirm to acknowledge the amount.
func PaymentCreateFull(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		appointmentID, err := parseUUIDParam(r, "appointmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actorID, role, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createFullPaymentRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.CreateFullPayment(r.Context(), payments.CreateFullPaymentInput{
			CreateIntentInput: payments.CreateIntentInput{
				AppointmentID: appointmentID,
				Actor:         &outbox.ActorRef{UserID: actorID, Role: string(role)},
				Replace:       req.Replace,
			},
			Confirm: req.Confirm,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, intent)
	}
}

// PaymentCreateRemaining issues a QR link for the outstanding balance.
func PaymentCreateRemaining(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		appointmentID, err := parseUUIDParam(r, "appointmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actorID, role, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req createIntentRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		intent, err := svc.CreateRemaining(r.Context(), payments.CreateIntentInput{
			AppointmentID: appointmentID,
			Actor:         &outbox.ActorRef{UserID: actorID, Role: string(role)},
			Replace:       req.Replace,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, intent)
	}
}
