package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"ms-ledger/internal/auth"
	"ms-ledger/internal/logger"
	"ms-ledger/internal/models"
	"ms-ledger/internal/payment"
	"ms-ledger/internal/utils"

	"github.com/gin-gonic/gin"
)

// OrganizerChecker decides whether a user may manage an organization's events.
type OrganizerChecker interface {
	IsOrganizer(ctx context.Context, organizationID, userID string) (bool, error)
}

type LedgerHandler struct {
	ledger     *payment.LedgerService
	organizers OrganizerChecker
	logger     *logger.Logger
}

func NewLedgerHandler(ledger *payment.LedgerService, organizers OrganizerChecker, log *logger.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, organizers: organizers, logger: log}
}

// Register mounts the payment routes under /api/payment.
func (h *LedgerHandler) Register(r gin.IRouter) {
	g := r.Group("/api/payment")
	g.POST("/orders/:orderId/checkout", h.Checkout)
	g.POST("/orders/:orderId/checks", h.RecordCheckPayment)
	g.POST("/orders/:orderId/manual", h.RecordManualPayment)
	g.GET("/transactions/:txnId/refundable", h.RefundableAmount)
	g.POST("/transactions/:txnId/refund", h.Refund)
	g.POST("/transactions/:txnId/confirm", h.ConfirmTransaction)
	g.POST("/items/:itemId/transfer", h.TransferItem)
}

// writeError maps ledger errors onto HTTP statuses.
func (h *LedgerHandler) writeError(c *gin.Context, err error) {
	var status int
	var message string
	switch {
	case errors.Is(err, models.ErrNotFound):
		status, message = http.StatusNotFound, "Not found"
	case models.IsValidation(err):
		status, message = http.StatusBadRequest, "Invalid request"
	case errors.Is(err, models.ErrConflict):
		status, message = http.StatusConflict, "Conflicting update, retry"
	case models.IsProcessor(err):
		status, message = http.StatusBadGateway, "Payment processor error"
	default:
		h.logger.Error("PAYMENT", fmt.Sprintf("%s %s failed: %v", c.Request.Method, c.FullPath(), err))
		c.JSON(http.StatusInternalServerError, utils.ErrorResponse("Internal error", "unexpected failure"))
		return
	}
	c.JSON(status, utils.ErrorResponse(message, err.Error()))
}

func (h *LedgerHandler) forbidden(c *gin.Context) {
	c.JSON(http.StatusForbidden, utils.ErrorResponse("Forbidden", "not allowed to manage this order"))
}

// requireOrganizer aborts unless the caller organizes the event.
func (h *LedgerHandler) requireOrganizer(c *gin.Context, eventID string) bool {
	ctx := c.Request.Context()
	userID := auth.UserID(ctx)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, utils.ErrorResponse("Unauthorized", "sign in required"))
		return false
	}
	event, err := h.ledger.DB.GetEvent(ctx, eventID)
	if err != nil {
		h.writeError(c, err)
		return false
	}
	ok, err := h.organizers.IsOrganizer(ctx, event.OrganizationID, userID)
	if err != nil {
		h.logger.Error("AUTH", fmt.Sprintf("Organizer check failed for %s: %v", userID, err))
		c.JSON(http.StatusBadGateway, utils.ErrorResponse("Authorization unavailable", err.Error()))
		return false
	}
	if !ok {
		h.forbidden(c)
		return false
	}
	return true
}

// requireOwner aborts unless the caller's session or account resolves to
// the order, or the caller organizes its event.
func (h *LedgerHandler) requireOwner(c *gin.Context, o *models.Order) bool {
	who := auth.Identity(c.Request)
	owns, err := h.ledger.Orders.Owns(c.Request.Context(), o, who)
	if err != nil {
		h.writeError(c, err)
		return false
	}
	if owns {
		return true
	}
	if who.PersonID != "" {
		return h.requireOrganizer(c, o.EventID)
	}
	h.forbidden(c)
	return false
}

func (h *LedgerHandler) loadOrder(c *gin.Context) (*models.Order, bool) {
	o, err := h.ledger.DB.GetOrderByID(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return o, true
}

func (h *LedgerHandler) Checkout(c *gin.Context) {
	var req models.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}
	o, ok := h.loadOrder(c)
	if !ok || !h.requireOwner(c, o) {
		return
	}

	txn, err := h.ledger.Checkout(c.Request.Context(), o.ID, req, auth.UserID(c.Request.Context()))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, utils.SuccessResponse("Order paid", txn))
}

func (h *LedgerHandler) RecordCheckPayment(c *gin.Context) {
	o, ok := h.loadOrder(c)
	if !ok || !h.requireOwner(c, o) {
		return
	}
	txn, err := h.ledger.RecordCheckPayment(c.Request.Context(), o.ID, auth.UserID(c.Request.Context()))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, utils.SuccessResponse("Check payment recorded", txn))
}

func (h *LedgerHandler) RecordManualPayment(c *gin.Context) {
	var req models.ManualPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}
	o, ok := h.loadOrder(c)
	if !ok || !h.requireOrganizer(c, o.EventID) {
		return
	}
	txn, err := h.ledger.RecordManualPayment(c.Request.Context(), o.ID, req, auth.UserID(c.Request.Context()))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, utils.SuccessResponse("Payment recorded", txn))
}

func (h *LedgerHandler) loadTransaction(c *gin.Context) (*models.Transaction, bool) {
	txn, err := h.ledger.DB.GetTransaction(c.Request.Context(), c.Param("txnId"))
	if err != nil {
		h.writeError(c, err)
		return nil, false
	}
	return txn, true
}

func (h *LedgerHandler) RefundableAmount(c *gin.Context) {
	txn, ok := h.loadTransaction(c)
	if !ok || !h.requireOrganizer(c, txn.EventID) {
		return
	}
	amount, err := h.ledger.RefundableAmount(c.Request.Context(), txn)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Refundable amount", gin.H{
		"transaction_id": txn.ID,
		"refundable":     amount,
	}))
}

func (h *LedgerHandler) Refund(c *gin.Context) {
	var req models.RefundRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
			return
		}
	}
	txn, ok := h.loadTransaction(c)
	if !ok || !h.requireOrganizer(c, txn.EventID) {
		return
	}

	refund, err := h.ledger.Refund(c.Request.Context(), txn.ID, req, auth.UserID(c.Request.Context()))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if refund == nil {
		c.JSON(http.StatusOK, utils.SuccessResponse("Nothing to refund", nil))
		return
	}
	c.JSON(http.StatusCreated, utils.SuccessResponse("Refund issued", refund))
}

func (h *LedgerHandler) ConfirmTransaction(c *gin.Context) {
	txn, ok := h.loadTransaction(c)
	if !ok || !h.requireOrganizer(c, txn.EventID) {
		return
	}
	confirmed, err := h.ledger.ConfirmTransaction(c.Request.Context(), txn.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, utils.SuccessResponse("Transaction confirmed", confirmed))
}

func (h *LedgerHandler) TransferItem(c *gin.Context) {
	var req models.TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", err.Error()))
		return
	}
	if req.ToOrderID == "" {
		c.JSON(http.StatusBadRequest, utils.ErrorResponse("Invalid request payload", "to_order_id is required"))
		return
	}

	ctx := c.Request.Context()
	item, err := h.ledger.DB.GetBoughtItem(ctx, c.Param("itemId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	o, err := h.ledger.DB.GetOrderByID(ctx, item.OrderID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !h.requireOrganizer(c, o.EventID) {
		return
	}

	moved, err := h.ledger.TransferItem(ctx, item.ID, req, auth.UserID(ctx))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, utils.SuccessResponse("Item transferred", moved))
}
