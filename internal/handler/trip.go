package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tripsync/internal/domain"
	"tripsync/internal/service"
	"tripsync/internal/store"
)

// TripHandler handles HTTP requests for the active trip.
type TripHandler struct {
	tripService *service.TripService
}

// NewTripHandler creates a new TripHandler.
func NewTripHandler(tripService *service.TripService) *TripHandler {
	return &TripHandler{tripService: tripService}
}

// AcceptTripRequest is the body for POST /v1/trip.
type AcceptTripRequest struct {
	TripID         string             `json:"trip_id"`
	OrderID        string             `json:"order_id" binding:"required"`
	Counterpart    domain.Counterpart `json:"counterpart"`
	FreeOnWayKm    float64            `json:"free_on_way_km"`
	FreeWaitingMin float64            `json:"free_waiting_min"`
	Payload        map[string]any     `json:"payload"`
}

// Accept handles POST /v1/trip
func (h *TripHandler) Accept(c *gin.Context) {
	var req AcceptTripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, service.ErrInvalidOrderID)
		return
	}

	rec, err := h.tripService.Accept(c.Request.Context(), service.AcceptTripRequest{
		TripID:         req.TripID,
		OrderID:        req.OrderID,
		Counterpart:    req.Counterpart,
		FreeOnWayKm:    req.FreeOnWayKm,
		FreeWaitingMin: req.FreeWaitingMin,
		Payload:        req.Payload,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, rec)
}

// Get handles GET /v1/trip
func (h *TripHandler) Get(c *gin.Context) {
	rec := h.tripService.Snapshot()
	if rec == nil {
		respondError(c, store.ErrNoActiveTrip)
		return
	}
	respondJSON(c, http.StatusOK, rec)
}

// ChangeStatusRequest is the body for POST /v1/trip/status.
type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// ChangeStatus handles POST /v1/trip/status
func (h *TripHandler) ChangeStatus(c *gin.Context) {
	var req ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, service.ErrInvalidStatus)
		return
	}

	rec, err := h.tripService.ChangeStatus(c.Request.Context(), domain.TripStatus(req.Status))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, rec)
}

// Metrics handles POST /v1/trip/metrics
func (h *TripHandler) Metrics(c *gin.Context) {
	var u store.MetricsUpdate
	if err := c.ShouldBindJSON(&u); err != nil {
		respondError(c, err)
		return
	}

	rec, err := h.tripService.ReportMetrics(c.Request.Context(), u)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, rec)
}

// LocationRequest is the body for POST /v1/trip/location.
type LocationRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location handles POST /v1/trip/location
func (h *TripHandler) Location(c *gin.Context) {
	var req LocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, err)
		return
	}

	if err := h.tripService.ReportLocation(c.Request.Context(), req.Lat, req.Lon); err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{"ok": true})
}

// FinishRequest is the body for POST /v1/trip/finish.
type FinishRequest struct {
	Rating float64 `json:"rating"`
}

// Finish handles POST /v1/trip/finish
func (h *TripHandler) Finish(c *gin.Context) {
	var req FinishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, err)
		return
	}

	invoice, err := h.tripService.Finish(c.Request.Context(), req.Rating)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, invoice)
}
