package handlers

import (
	"net/http"

	"smartscribe/pkg/apperr"
	"smartscribe/pkg/utils"
)

// writeErr maps the error taxonomy onto HTTP statuses and the JSON
// {"error": ...} body convention.
func writeErr(w http.ResponseWriter, err error) {
	switch {
	case apperr.IsValidation(err):
		utils.JSONError(w, http.StatusBadRequest, err.Error())
	case apperr.IsNotFound(err):
		utils.JSONError(w, http.StatusNotFound, err.Error())
	case apperr.IsUpstream(err):
		utils.JSONError(w, http.StatusBadGateway, err.Error())
	case apperr.IsTransport(err):
		utils.JSONError(w, http.StatusServiceUnavailable, err.Error())
	default:
		utils.JSONError(w, http.StatusInternalServerError, err.Error())
	}
}
