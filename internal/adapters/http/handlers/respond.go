// Package handlers agrupa os handlers HTTP da aplicação.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/VanZoel112/vzoelfess/internal/core/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError traduz os erros tipados do domínio para status HTTP. Erros não
// mapeados viram 500 com mensagem genérica para não vazar detalhes internos.
func writeError(w http.ResponseWriter, err error) {
	var status int
	switch {
	case errors.Is(err, domain.ErrBanned):
		status = http.StatusForbidden
	case domain.IsRateLimited(err):
		status = http.StatusTooManyRequests
	case domain.IsValidation(err):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyDecided), errors.Is(err, domain.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrBackendUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrPublishFailed):
		status = http.StatusBadGateway
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: http.StatusText(http.StatusInternalServerError)})
		return
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
