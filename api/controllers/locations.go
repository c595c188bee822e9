package controllers

import (
	"net/http"
	"strings"

	"github.com/otodealz/otodealz-backend/api/responses"
	pkgerrors "github.com/otodealz/otodealz-backend/pkg/errors"
	"github.com/otodealz/otodealz-backend/pkg/logger"
	"github.com/otodealz/otodealz-backend/pkg/maps"
)

// LocationAutocomplete suggests meeting addresses, biased to Vietnam.
func LocationAutocomplete(client *maps.Client, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if client == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeDependency, "maps client not configured"))
			return
		}

		input := strings.TrimSpace(r.URL.Query().Get("input"))
		if input == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "input query parameter required"))
			return
		}

		suggestions, err := client.Autocomplete(r.Context(), maps.AutocompleteRequest{
			Input:               input,
			IncludedRegionCodes: []string{"vn"},
			LanguageCode:        "vi",
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"suggestions": suggestions})
	}
}
