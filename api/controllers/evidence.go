package controllers

import (
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/otodealz/otodealz-backend/api/responses"
	"github.com/otodealz/otodealz-backend/internal/appointments"
	"github.com/otodealz/otodealz-backend/internal/evidence"
	"github.com/otodealz/otodealz-backend/pkg/db/models"
	pkgerrors "github.com/otodealz/otodealz-backend/pkg/errors"
	"github.com/otodealz/otodealz-backend/pkg/logger"
)

// ContractPhotosUpload receives both signature sides of the signed contract in
// one multipart request. The batch lands atomically or not at all.
func ContractPhotosUpload(svc appointments.Service, maxUploadBytes int64, logg *logger.Logger) http.HandlerFunc {
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

		if err := parseMultipart(r, maxUploadBytes); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sellerPhotos, err := readArtifacts(r, "seller_photos")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		buyerPhotos, err := readArtifacts(r, "buyer_photos")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		contract, err := svc.UploadContractPhotos(r.Context(), appointments.ContractPhotosInput{
			AppointmentID: appointmentID,
			ActorID:       actorID,
			ActorRole:     role,
			SellerPhotos:  sellerPhotos,
			BuyerPhotos:   buyerPhotos,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, contract)
	}
}

// NotarizationProofUpload stores the notarization certificate photos.
func NotarizationProofUpload(svc appointments.Service, maxUploadBytes int64, logg *logger.Logger) http.HandlerFunc {
	return proofUpload(svc, maxUploadBytes, logg, appointments.Service.UploadNotarizationProof)
}

// HandoverProofUpload stores the papers-and-keys handover photos.
func HandoverProofUpload(svc appointments.Service, maxUploadBytes int64, logg *logger.Logger) http.HandlerFunc {
	return proofUpload(svc, maxUploadBytes, logg, appointments.Service.UploadHandoverProof)
}

func proofUpload(
	svc appointments.Service,
	maxUploadBytes int64,
	logg *logger.Logger,
	call func(appointments.Service, context.Context, appointments.ProofInput) ([]models.Evidence, error),
) http.HandlerFunc {
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

		if err := parseMultipart(r, maxUploadBytes); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		photos, err := readArtifacts(r, "photos")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := call(svc, r.Context(), appointments.ProofInput{
			AppointmentID: appointmentID,
			ActorID:       actorID,
			ActorRole:     role,
			Photos:        photos,
			Note:          optionalFormValue(r, "note"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, map[string]any{"items": rows})
	}
}

func optionalFormValue(r *http.Request, field string) *string {
	value := strings.TrimSpace(r.FormValue(field))
	if value == "" {
		return nil
	}
	return &value
}

func parseMultipart(r *http.Request, maxUploadBytes int64) error {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart request")
	}
	return nil
}

func readArtifacts(r *http.Request, field string) ([]evidence.Artifact, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	headers := r.MultipartForm.File[field]
	artifacts := make([]evidence.Artifact, 0, len(headers))
	for _, header := range headers {
		artifact, err := readArtifact(header)
		if err != nil {
			return nil, err
		}
		artifacts = append(artifacts, artifact)
	}
	return artifacts, nil
}

func readArtifact(header *multipart.FileHeader) (evidence.Artifact, error) {
	file, err := header.Open()
	if err != nil {
		return evidence.Artifact{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "open uploaded file")
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return evidence.Artifact{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read uploaded file")
	}
	return evidence.Artifact{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
