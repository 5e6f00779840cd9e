package order_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"ms-ledger/internal/analytics"
	"ms-ledger/internal/auth"
	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"
	"ms-ledger/internal/order"
	"ms-ledger/internal/utils"

	"github.com/go-chi/chi/v5"
)

// OrganizerChecker decides whether a user organizes an organization's events.
type OrganizerChecker interface {
	IsOrganizer(ctx context.Context, organizationID, userID string) (bool, error)
}

type Handler struct {
	OrderService *order.OrderService
	Catalog      *order.CatalogService
	Summaries    *analytics.SummaryService
	Organizers   OrganizerChecker
	Logger       *logger.Logger
	SessionTTL   time.Duration
}

func NewHandler(orders *order.OrderService, catalog *order.CatalogService, summaries *analytics.SummaryService, organizers OrganizerChecker, log *logger.Logger, sessionTTL time.Duration) *Handler {
	return &Handler{
		OrderService: orders,
		Catalog:      catalog,
		Summaries:    summaries,
		Organizers:   organizers,
		Logger:       log,
		SessionTTL:   sessionTTL,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/ledger/events/{eventId}/order", h.ResolveOrder)
	r.Get("/api/ledger/events/{eventId}/order", h.GetOrder)
	r.Post("/api/ledger/orders/{orderId}/items", h.AddItem)
	r.Delete("/api/ledger/orders/{orderId}/items/{itemId}", h.RemoveItem)
	r.Delete("/api/ledger/orders/{orderId}/cart", h.DeleteCart)
	r.Post("/api/ledger/orders/{orderId}/discounts", h.AddDiscount)
	r.Get("/api/ledger/orders/{orderId}/summary", h.GetSummary)
}

// orderView is an order together with its cart deadline and summary.
type orderView struct {
	Order         *models.Order      `json:"order"`
	CartExpiresAt *time.Time         `json:"cart_expires_at,omitempty"`
	Summary       *analytics.Summary `json:"summary"`
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Not found", err.Error()))
	case models.IsValidation(err):
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", err.Error()))
	case errors.Is(err, models.ErrConflict):
		utils.WriteJSON(w, http.StatusConflict, utils.ErrorResponse("Conflict", err.Error()))
	default:
		h.Logger.Error("API", err.Error())
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Request failed", "unexpected failure"))
	}
}

func (h *Handler) view(ctx context.Context, o *models.Order) (*orderView, error) {
	sum, err := h.Summaries.Summary(ctx, o)
	if err != nil {
		return nil, err
	}
	expires, err := h.OrderService.CartExpireTime(ctx, o)
	if err != nil {
		return nil, err
	}
	return &orderView{Order: o, CartExpiresAt: expires, Summary: sum}, nil
}

// organizes reports whether the signed-in caller organizes eventID.
func (h *Handler) organizes(ctx context.Context, eventID string) (bool, error) {
	userID := auth.UserID(ctx)
	if userID == "" {
		return false, nil
	}
	event, err := h.OrderService.DB.GetEvent(ctx, eventID)
	if err != nil {
		return false, err
	}
	return h.Organizers.IsOrganizer(ctx, event.OrganizationID, userID)
}

// loadOwnedOrder reads {orderId} and writes an error unless the caller is its
// attendee. Organizers pass as well when allowOrganizer is set.
func (h *Handler) loadOwnedOrder(w http.ResponseWriter, r *http.Request, allowOrganizer bool) (*models.Order, bool) {
	ctx := r.Context()
	o, err := h.OrderService.GetOrder(ctx, chi.URLParam(r, "orderId"))
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	owns, err := h.OrderService.Owns(ctx, o, auth.Identity(r))
	if err == nil && !owns && allowOrganizer {
		owns, err = h.organizes(ctx, o.EventID)
	}
	if err != nil {
		h.fail(w, err)
		return nil, false
	}
	if !owns {
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "this order belongs to someone else"))
		return nil, false
	}
	return o, true
}

// ResolveOrder returns the caller's order for the event, creating it and an
// anonymous session when needed.
func (h *Handler) ResolveOrder(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	session := auth.EnsureSession(w, r, h.SessionTTL)
	who := models.Identity{PersonID: auth.UserID(r.Context()), SessionToken: session}

	o, err := h.OrderService.ResolveOrder(r.Context(), eventID, who, true)
	if err != nil {
		h.fail(w, err)
		return
	}
	view, err := h.view(r.Context(), o)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order resolved", view))
}

// GetOrder looks the caller's order up without creating one.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.OrderService.ResolveOrder(r.Context(), chi.URLParam(r, "eventId"), auth.Identity(r), false)
	if err != nil {
		h.fail(w, err)
		return
	}
	view, err := h.view(r.Context(), o)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order", view))
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req models.AddItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OptionID == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", "option_id is required"))
		return
	}
	o, ok := h.loadOwnedOrder(w, r, false)
	if !ok {
		return
	}
	if _, err := h.Catalog.CheckAvailable(r.Context(), req.OptionID); err != nil {
		h.fail(w, err)
		return
	}
	item, err := h.OrderService.AddToCart(r.Context(), o, req.OptionID)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, utils.SuccessResponse("Item reserved", item))
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOwnedOrder(w, r, false)
	if !ok {
		return
	}
	if err := h.OrderService.RemoveFromCart(r.Context(), o, chi.URLParam(r, "itemId")); err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Item removed", nil))
}

func (h *Handler) DeleteCart(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOwnedOrder(w, r, false)
	if !ok {
		return
	}
	if err := h.OrderService.DeleteCart(r.Context(), o); err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Cart cleared", nil))
}

type discountResponse struct {
	Applied  bool             `json:"applied"`
	Discount *models.Discount `json:"discount"`
}

func (h *Handler) AddDiscount(w http.ResponseWriter, r *http.Request) {
	var req models.AddDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", "code is required"))
		return
	}
	o, ok := h.loadOwnedOrder(w, r, req.Force)
	if !ok {
		return
	}

	var (
		applied bool
		d       *models.Discount
		err     error
	)
	if req.Force {
		isOrganizer, orgErr := h.organizes(r.Context(), o.EventID)
		if orgErr != nil {
			h.fail(w, orgErr)
			return
		}
		if !isOrganizer {
			utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "only organizers can force a discount"))
			return
		}
		if d, err = h.OrderService.DB.GetDiscountByCode(r.Context(), o.EventID, req.Code); err == nil {
			applied, err = h.OrderService.ForceDiscount(r.Context(), o, d)
		}
	} else {
		applied, d, err = h.OrderService.AddDiscountByCode(r.Context(), o, req.Code)
	}
	if err != nil {
		h.fail(w, err)
		return
	}

	msg := "Discount applied"
	if !applied {
		msg = "Discount not applicable"
	}
	h.Logger.LogOrder("DISCOUNT", o.ID, fmt.Sprintf("Code %s applied=%t", req.Code, applied))
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse(msg, discountResponse{Applied: applied, Discount: d}))
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	o, ok := h.loadOwnedOrder(w, r, true)
	if !ok {
		return
	}
	sum, err := h.Summaries.Summary(r.Context(), o)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Order summary", sum))
}
