package ticket_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"ms-ledger/internal/auth"
	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"
	"ms-ledger/internal/order"
	"ms-ledger/internal/tickets"
	"ms-ledger/internal/utils"

	"github.com/go-chi/chi/v5"
)

type OrganizerChecker interface {
	IsOrganizer(ctx context.Context, organizationID, userID string) (bool, error)
}

type Handler struct {
	Passes     *tickets.PassService
	Orders     *order.OrderService
	Organizers OrganizerChecker
	Logger     *logger.Logger
}

func NewHandler(passes *tickets.PassService, orders *order.OrderService, organizers OrganizerChecker, log *logger.Logger) *Handler {
	return &Handler{Passes: passes, Orders: orders, Organizers: organizers, Logger: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/ledger/items/{itemId}/pass", h.GetPass)
	r.Post("/api/ledger/passes/verify", h.VerifyPass)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Not found", err.Error()))
	case models.IsValidation(err):
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid pass", err.Error()))
	default:
		h.Logger.Error("PASS", err.Error())
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Pass request failed", "unexpected failure"))
	}
}

// organizes reports whether the signed-in caller organizes eventID.
func (h *Handler) organizes(ctx context.Context, eventID string) (bool, error) {
	userID := auth.UserID(ctx)
	if userID == "" {
		return false, nil
	}
	event, err := h.Passes.DB.GetEvent(ctx, eventID)
	if err != nil {
		return false, err
	}
	return h.Organizers.IsOrganizer(ctx, event.OrganizationID, userID)
}

// GetPass streams the QR code for a bought item to its attendee or an
// organizer of the event.
func (h *Handler) GetPass(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	itemID := chi.URLParam(r, "itemId")

	item, err := h.Passes.DB.GetBoughtItem(ctx, itemID)
	if err != nil {
		h.fail(w, err)
		return
	}
	o, err := h.Orders.GetOrder(ctx, item.OrderID)
	if err != nil {
		h.fail(w, err)
		return
	}
	allowed, err := h.Orders.Owns(ctx, o, auth.Identity(r))
	if err == nil && !allowed {
		allowed, err = h.organizes(ctx, o.EventID)
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	if !allowed {
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "this pass belongs to another order"))
		return
	}

	_, png, err := h.Passes.Issue(ctx, itemID)
	if err != nil {
		h.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=\"pass-%s.png\"", itemID))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(png); err != nil {
		h.Logger.Warn("PASS", fmt.Sprintf("Failed to write pass for item %s: %v", itemID, err))
	}
}

// VerifyPass checks a scanned payload at the door. Only organizers of the
// pass's event may scan.
// Expected POST request body: {"encrypted_qr": "..."}
func (h *Handler) VerifyPass(w http.ResponseWriter, r *http.Request) {
	var body struct {
		EncryptedQR string `json:"encrypted_qr"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.EncryptedQR == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", "encrypted_qr is required"))
		return
	}
	if auth.UserID(r.Context()) == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized access", "sign in required"))
		return
	}

	pass, err := h.Passes.QR.ReadPayload(body.EncryptedQR)
	if err != nil {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid pass", err.Error()))
		return
	}
	ok, err := h.organizes(r.Context(), pass.EventID)
	if err != nil {
		h.fail(w, err)
		return
	}
	if !ok {
		h.Logger.LogSecurity("PASS_SCAN_DENIED", fmt.Sprintf("User %s scanned a pass for event %s", auth.UserID(r.Context()), pass.EventID))
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "only organizers can verify passes"))
		return
	}

	verified, err := h.Passes.Verify(r.Context(), body.EncryptedQR)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Pass is valid", verified))
}
