package order_api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-ledger/internal/auth"
	"ms-ledger/internal/logger"
	"ms-ledger/internal/order/db"
	"ms-ledger/internal/sse"
	"ms-ledger/internal/utils"

	"github.com/go-chi/chi/v5"
)

// SSEHandler streams an event's ledger changes to its organizers.
type SSEHandler struct {
	Logger     *logger.Logger
	Emitter    *sse.LedgerEmitter
	DB         db.Store
	Organizers OrganizerChecker
}

func NewSSEHandler(log *logger.Logger, emitter *sse.LedgerEmitter, store db.Store, organizers OrganizerChecker) *SSEHandler {
	return &SSEHandler{Logger: log, Emitter: emitter, DB: store, Organizers: organizers}
}

func (h *SSEHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/ledger/events/{eventId}/stream", h.HandleEventStream)
}

// HandleEventStream streams ledger events for a specific event
func (h *SSEHandler) HandleEventStream(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	ctx := r.Context()

	userID := auth.UserID(ctx)
	if userID == "" {
		utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("Unauthorized access", "sign in required"))
		return
	}
	event, err := h.DB.GetEvent(ctx, eventID)
	if err != nil {
		utils.WriteJSON(w, http.StatusNotFound, utils.ErrorResponse("Not found", err.Error()))
		return
	}
	ok, err := h.Organizers.IsOrganizer(ctx, event.OrganizationID, userID)
	if err != nil {
		h.Logger.Error("SSE", fmt.Sprintf("Event access verification failed: %v", err))
		utils.WriteJSON(w, http.StatusBadGateway, utils.ErrorResponse("Failed to verify organization membership", err.Error()))
		return
	}
	if !ok {
		utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("Forbidden", "only organizers can follow the ledger"))
		return
	}

	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		utils.WriteJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Streaming unsupported", "response writer cannot flush"))
		return
	}

	// the server write timeout would otherwise cut long-lived streams
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	h.setupSSEHeaders(w)
	events := h.Emitter.Subscribe(ctx, eventID)

	fmt.Fprintf(w, "event: connected\ndata: {\"status\":\"connected\",\"event_id\":\"%s\"}\n\n", eventID)
	flusher.Flush()
	h.Logger.Info("SSE", fmt.Sprintf("Client connected to ledger stream for event: %s", eventID))

	for {
		select {
		case evt, ok := <-events:
			if !ok {
				h.Logger.Debug("SSE", fmt.Sprintf("Channel closed for event: %s", eventID))
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				h.Logger.Error("SSE", fmt.Sprintf("Failed to serialize ledger event: %v", err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data)
			flusher.Flush()

		case <-ctx.Done():
			h.Logger.Debug("SSE", fmt.Sprintf("Client disconnected from ledger stream for: %s", eventID))
			return
		}
	}
}

func (h *SSEHandler) setupSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream;charset=UTF-8")
	w.Header().Set("Cache-Control", "no-cache, no-store, max-age=0, must-revalidate")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
}
