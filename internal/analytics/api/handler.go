package analytics_api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"ms-ledger/internal/analytics"
	"ms-ledger/internal/auth"
	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"
	"ms-ledger/internal/utils"

	"github.com/go-chi/chi/v5"
)

// OrganizerChecker decides whether a user may read an organization's numbers.
type OrganizerChecker interface {
	IsOrganizer(ctx context.Context, organizationID, userID string) (bool, error)
}

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service    *analytics.Service
	Organizers OrganizerChecker
	Logger     *logger.Logger
}

func NewHandler(service *analytics.Service, organizers OrganizerChecker, log *logger.Logger) *Handler {
	return &Handler{Service: service, Organizers: organizers, Logger: log}
}

// RegisterRoutes registers the analytics routes on a chi router
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/ledger/analytics", func(r chi.Router) {
		r.Get("/events/{eventId}", h.GetEventAnalytics)
		r.Get("/events/{eventId}/orders", h.GetEventOrders)
		r.Post("/events/batch", h.GetBatchEventAnalytics)
		r.Get("/organizations/{organizationId}", h.GetOrganizationAnalytics)
	})
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Not found", err.Error()))
	case models.IsValidation(err):
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", err.Error()))
	default:
		h.Logger.Error("ANALYTICS", err.Error())
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Failed to get analytics", "unexpected failure"))
	}
}

// authorize writes the error response and returns false unless the caller
// belongs to the organization.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request, organizationID string) bool {
	userID := auth.UserID(r.Context())
	if userID == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized access", "sign in required"))
		return false
	}
	ok, err := h.Organizers.IsOrganizer(r.Context(), organizationID, userID)
	if err != nil {
		h.Logger.Error("ANALYTICS", "Error verifying organization membership: "+err.Error())
		utils.WriteJSON(w, http.StatusBadGateway, utils.ErrorResponse("Failed to verify organization membership", err.Error()))
		return false
	}
	if !ok {
		h.Logger.Warn("ANALYTICS", fmt.Sprintf("User %s denied analytics for organization %s", userID, organizationID))
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "You do not have permission to access these analytics"))
		return false
	}
	return true
}

func (h *Handler) authorizeEvent(w http.ResponseWriter, r *http.Request, eventID string) bool {
	event, err := h.Service.GetEvent(r.Context(), eventID)
	if err != nil {
		h.fail(w, err)
		return false
	}
	return h.authorize(w, r, event.OrganizationID)
}

func (h *Handler) GetEventAnalytics(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	if !h.authorizeEvent(w, r, eventID) {
		return
	}
	result, err := h.Service.GetEventAnalytics(r.Context(), eventID)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event analytics", result))
}

func (h *Handler) GetEventOrders(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")

	q := r.URL.Query()
	opts := analytics.EventOrderOptions{
		SortDesc:   q.Get("sort") != "asc",
		BalanceDue: q.Get("balance_due") == "true",
	}
	for name, dst := range map[string]*int{"limit": &opts.Limit, "offset": &opts.Offset} {
		if raw := q.Get(name); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", name+" must be a non-negative integer"))
				return
			}
			*dst = n
		}
	}

	if !h.authorizeEvent(w, r, eventID) {
		return
	}
	orders, err := h.Service.GetEventOrders(r.Context(), eventID, opts)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Event orders", orders))
}

type batchRequest struct {
	EventIDs []string `json:"event_ids"`
}

func (h *Handler) GetBatchEventAnalytics(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.EventIDs) == 0 {
		utils.WriteJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request", "event_ids is required"))
		return
	}

	checked := make(map[string]bool)
	for _, id := range req.EventIDs {
		event, err := h.Service.GetEvent(r.Context(), id)
		if err != nil {
			h.fail(w, err)
			return
		}
		if checked[event.OrganizationID] {
			continue
		}
		if !h.authorize(w, r, event.OrganizationID) {
			return
		}
		checked[event.OrganizationID] = true
	}

	result, err := h.Service.GetBatchEventAnalytics(r.Context(), req.EventIDs)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Batch analytics", result))
}

func (h *Handler) GetOrganizationAnalytics(w http.ResponseWriter, r *http.Request) {
	organizationID := chi.URLParam(r, "organizationId")
	if !h.authorize(w, r, organizationID) {
		return
	}
	result, err := h.Service.GetOrganizationAnalytics(r.Context(), organizationID)
	if err != nil {
		h.fail(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.SuccessResponse("Organization analytics", result))
}
