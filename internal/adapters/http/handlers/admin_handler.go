package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/VanZoel112/vzoelfess/internal/core/domain"
	"github.com/VanZoel112/vzoelfess/internal/core/services"
)

// AdminHandler expõe a fila de moderação, as decisões sobre menfess e o
// registro de bans. Todas as rotas ficam atrás do middleware de token.
type AdminHandler struct {
	service *services.ModerationService
}

func NewAdminHandler(service *services.ModerationService) *AdminHandler {
	return &AdminHandler{service: service}
}

// adminID extrai a identidade do admin para fins de auditoria. O token do
// middleware autentica; o header identifica quem decidiu.
func adminID(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get("X-Admin-ID"))
	if id == "" {
		return "admin"
	}
	return id
}

func menfessID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

type pendingItem struct {
	ID        int64     `json:"id"`
	Body      string    `json:"body"`
	Hashtags  []string  `json:"hashtags"`
	CreatedAt time.Time `json:"created_at"`
}

// Pending lista as menfess aguardando revisão, mais antigas primeiro. O
// remetente não aparece na listagem.
func (h *AdminHandler) Pending(w http.ResponseWriter, r *http.Request) {
	list, err := h.service.Pending(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]pendingItem, 0, len(list))
	for _, m := range list {
		items = append(items, pendingItem{
			ID:        m.ID,
			Body:      m.Body,
			Hashtags:  m.Hashtags,
			CreatedAt: m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"pending": items})
}

func (h *AdminHandler) Approve(w http.ResponseWriter, r *http.Request) {
	id, err := menfessID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid menfess id"})
		return
	}

	if err := h.service.Approve(r.Context(), id, adminID(r)); err != nil {
		if errors.Is(err, domain.ErrPublishFailed) {
			// Aprovada mas não publicada; o registro segue re-publicável.
			writeJSON(w, http.StatusBadGateway, map[string]any{
				"menfess_id": id,
				"status":     string(domain.StatusApproved),
				"error":      "publish failed, retry later",
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"menfess_id": id,
		"status":     string(domain.StatusPublished),
	})
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) Reject(w http.ResponseWriter, r *http.Request) {
	id, err := menfessID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid menfess id"})
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if err := h.service.Reject(r.Context(), id, adminID(r), strings.TrimSpace(req.Reason)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"menfess_id": id,
		"status":     string(domain.StatusRejected),
	})
}

func (h *AdminHandler) RetryPublish(w http.ResponseWriter, r *http.Request) {
	id, err := menfessID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid menfess id"})
		return
	}

	if err := h.service.RetryPublish(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"menfess_id": id,
		"status":     string(domain.StatusPublished),
	})
}

type banRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) Ban(w http.ResponseWriter, r *http.Request) {
	sender := chi.URLParam(r, "sender")
	if sender == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sender is required"})
		return
	}

	var req banRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	if err := h.service.Ban(r.Context(), domain.SenderID(sender), strings.TrimSpace(req.Reason), adminID(r)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sender": sender, "banned": true})
}

func (h *AdminHandler) Unban(w http.ResponseWriter, r *http.Request) {
	sender := chi.URLParam(r, "sender")
	if sender == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "sender is required"})
		return
	}

	if err := h.service.Unban(r.Context(), domain.SenderID(sender)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sender": sender, "banned": false})
}

type hashtagItem struct {
	Tag        string    `json:"tag"`
	UsageCount int64     `json:"usage_count"`
	LastUsedAt time.Time `json:"last_used_at"`
}

// TopHashtags responde GET /hashtags/top?n= com as hashtags mais usadas em
// menfess publicadas.
func (h *AdminHandler) TopHashtags(w http.ResponseWriter, r *http.Request) {
	n, _ := strconv.Atoi(r.URL.Query().Get("n"))

	stats, err := h.service.TopHashtags(r.Context(), n)
	if err != nil {
		writeError(w, err)
		return
	}

	items := make([]hashtagItem, 0, len(stats))
	for _, s := range stats {
		items = append(items, hashtagItem{Tag: s.Tag, UsageCount: s.UsageCount, LastUsedAt: s.LastUsedAt})
	}
	writeJSON(w, http.StatusOK, map[string]any{"hashtags": items})
}
