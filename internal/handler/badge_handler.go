package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/labquest/internal/model"
)

// BadgeServiceInterface はバッジハンドラーが必要とするサービスインターフェース。
type BadgeServiceInterface interface {
	EvaluateFor(ctx context.Context, actorID, userID string) ([]*model.Badge, error)
	Award(ctx context.Context, adminID, userID, badgeID string) error
	Revoke(ctx context.Context, adminID, userID, badgeID string) error
}

// BadgeHandler はバッジ判定・付与のHTTPハンドラー。
type BadgeHandler struct {
	service BadgeServiceInterface
}

// NewBadgeHandler はBadgeHandlerを生成する。
func NewBadgeHandler(service BadgeServiceInterface) *BadgeHandler {
	return &BadgeHandler{service: service}
}

type awardBadgeRequest struct {
	BadgeID string `json:"badge_id"`
}

type badgeResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type evaluateResponse struct {
	Awarded []badgeResponse `json:"awarded"`
}

// Evaluate は未保持の自動付与バッジを判定し、新たに付与したバッジを返す。
// POST /api/users/{id}/badges/evaluate
func (h *BadgeHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUser(w, r)
	if !ok {
		return
	}

	awarded, err := h.service.EvaluateFor(r.Context(), actorID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := evaluateResponse{Awarded: make([]badgeResponse, 0, len(awarded))}
	for _, b := range awarded {
		resp.Awarded = append(resp.Awarded, badgeResponse{
			ID:          b.ID,
			Name:        b.Name,
			Description: b.Description,
			Category:    string(b.Category),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// Award は手動付与用のバッジを付与する。
// POST /api/users/{id}/badges
func (h *BadgeHandler) Award(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req awardBadgeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.Award(r.Context(), actorID, chi.URLParam(r, "id"), req.BadgeID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
}

// Revoke は保持バッジを剥奪する。
// DELETE /api/users/{id}/badges/{badgeID}
func (h *BadgeHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	actorID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.service.Revoke(r.Context(), actorID, chi.URLParam(r, "id"), chi.URLParam(r, "badgeID")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
