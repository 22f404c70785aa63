package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tripsync/internal/service"
	"tripsync/internal/store"
)

// OrderHandler handles HTTP requests for the local order cache and its sync
// queue.
type OrderHandler struct {
	orders      *store.OrderStore
	syncService *service.SyncService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orders *store.OrderStore, syncService *service.SyncService) *OrderHandler {
	return &OrderHandler{orders: orders, syncService: syncService}
}

// List handles GET /v1/orders
func (h *OrderHandler) List(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, orders)
}

// Get handles GET /v1/orders/:id
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, order)
}

// GetActive handles GET /v1/orders/active
func (h *OrderHandler) GetActive(c *gin.Context) {
	order, err := h.orders.GetActiveOrder(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	if order == nil {
		respondJSON(c, http.StatusOK, gin.H{"order": nil})
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"order": order})
}

// Update handles POST /v1/orders/:id, an optimistic local mutation queued
// for sync.
func (h *OrderHandler) Update(c *gin.Context) {
	var fields map[string]any
	if err := c.ShouldBindJSON(&fields); err != nil {
		respondError(c, err)
		return
	}

	order, err := h.orders.UpdateOrder(c.Request.Context(), c.Param("id"), fields)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, order)
}

// Delete handles DELETE /v1/orders/:id
func (h *OrderHandler) Delete(c *gin.Context) {
	if err := h.orders.DeleteOrder(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"ok": true})
}

// SyncAll handles POST /v1/orders/sync, the connectivity-regained trigger.
func (h *OrderHandler) SyncAll(c *gin.Context) {
	report, err := h.syncService.SyncAll(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, report)
}

// SyncOne handles POST /v1/orders/:id/sync
func (h *OrderHandler) SyncOne(c *gin.Context) {
	if err := h.syncService.SyncOne(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, gin.H{"ok": true})
}
