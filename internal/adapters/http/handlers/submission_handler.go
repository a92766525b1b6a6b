package handlers

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/VanZoel112/vzoelfess/internal/core/domain"
	"github.com/VanZoel112/vzoelfess/internal/core/services"
)

// SubmissionHandler expõe a entrada de submissões e a consulta de status
// para o adaptador da plataforma de mensageria.
type SubmissionHandler struct {
	service *services.SubmissionService
}

func NewSubmissionHandler(service *services.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{service: service}
}

type submitRequest struct {
	SenderID string `json:"sender_id"`
	Text     string `json:"text"`
}

type submitResponse struct {
	MenfessID int64  `json:"menfess_id"`
	Status    string `json:"status"`
}

func (h *SubmissionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}
	sender := strings.TrimSpace(req.SenderID)
	if sender == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sender_id is required"})
		return
	}

	id, err := h.service.Submit(r.Context(), domain.SenderID(sender), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, submitResponse{MenfessID: id, Status: string(domain.StatusPending)})
}

type statusResponse struct {
	HourCount                int     `json:"hour_count"`
	DayCount                 int     `json:"day_count"`
	CooldownRemainingSeconds float64 `json:"cooldown_remaining_seconds"`
	Banned                   bool    `json:"banned"`
	BanReason                string  `json:"ban_reason,omitempty"`
	TotalSubmitted           int64   `json:"total_submitted"`
	TotalApproved            int64   `json:"total_approved"`
	TotalRejected            int64   `json:"total_rejected"`
}

func (h *SubmissionHandler) Status(w http.ResponseWriter, r *http.Request) {
	sender := chi.URLParam(r, "sender")
	if sender == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sender is required"})
		return
	}

	status, err := h.service.Status(r.Context(), domain.SenderID(sender))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		HourCount:                status.HourCount,
		DayCount:                 status.DayCount,
		CooldownRemainingSeconds: status.CooldownRemaining.Round(time.Second).Seconds(),
		Banned:                   status.Banned,
		BanReason:                status.BanReason,
		TotalSubmitted:           status.TotalSubmitted,
		TotalApproved:            status.TotalApproved,
		TotalRejected:            status.TotalRejected,
	})
}
