package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/otodealz/otodealz-backend/api/responses"
	"github.com/otodealz/otodealz-backend/api/validators"
	"github.com/otodealz/otodealz-backend/internal/appointments"
	"github.com/otodealz/otodealz-backend/pkg/enums"
	pkgerrors "github.com/otodealz/otodealz-backend/pkg/errors"
	"github.com/otodealz/otodealz-backend/pkg/logger"
)

type createContractRequest struct {
	Type  *string `json:"type,omitempty"`
	Terms *string `json:"terms,omitempty"`
}

type updateTimelineStepRequest struct {
	Status      string      `json:"status" validate:"required"`
	Note        *string     `json:"note,omitempty"`
	DueDate     *time.Time  `json:"due_date,omitempty"`
	Attachments []uuid.UUID `json:"attachments,omitempty"`
}

// ContractCreate attaches a contract to the appointment. The contract type is
// derived from the deal's amounts unless the caller pins it explicitly.
func ContractCreate(svc appointments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "appointments service unavailable"))
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

		var req createContractRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := appointments.CreateContractInput{
			AppointmentID: appointmentID,
			Terms:         req.Terms,
			ActorID:       actorID,
			ActorRole:     role,
		}
		if req.Type != nil {
			contractType, parseErr := enums.ParseContractType(*req.Type)
			if parseErr != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown contract type").WithDetails(map[string]any{"field": "type"}))
				return
			}
			input.Type = &contractType
		}

		contract, err := svc.CreateContract(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, contract)
	}
}

// ContractGet returns the appointment's contract with its timeline.
func ContractGet(svc appointments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "appointments service unavailable"))
			return
		}
		appointmentID, err := parseUUIDParam(r, "appointmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		info, err := svc.GetContractInfo(r.Context(), appointmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, info)
	}
}

// ContractTimeline returns the five steps for a contract by contract id.
func ContractTimeline(svc appointments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "appointments service unavailable"))
			return
		}
		contractID, err := parseUUIDParam(r, "contractId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		steps, err := svc.ContractTimeline(r.Context(), contractID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"timeline": steps})
	}
}

// ContractTimelineStepUpdate patches one named step. Staff can move a step in
// either direction to correct the record.
func ContractTimelineStepUpdate(svc appointments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "appointments service unavailable"))
			return
		}
		contractID, err := parseUUIDParam(r, "contractId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		step, err := enums.ParseTimelineStep(strings.TrimSpace(chi.URLParam(r, "step")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "unknown timeline step").WithDetails(map[string]any{"field": "step"}))
			return
		}
		actorID, role, err := actorFromContext(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateTimelineStepRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseStepStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid step status").WithDetails(map[string]any{"field": "status"}))
			return
		}

		steps, err := svc.UpdateTimelineStep(r.Context(), appointments.TimelineStepInput{
			ContractID:  contractID,
			Step:        step,
			Status:      status,
			Note:        req.Note,
			DueDate:     req.DueDate,
			Attachments: req.Attachments,
			ActorID:     actorID,
			ActorRole:   role,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"timeline": steps})
	}
}
