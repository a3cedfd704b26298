package orders

import (
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/payhistory/internal/money"
	"github.com/mbd888/payhistory/internal/pagination"
	"github.com/mbd888/payhistory/internal/payments"
	"github.com/mbd888/payhistory/internal/validation"
)

// Handler provides HTTP endpoints for order payment histories.
type Handler struct {
	service *Service
	logger  *slog.Logger
}

// NewHandler creates a new orders handler
func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// RegisterRoutes sets up order payment routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	orders := r.Group("/orders/:ref", validation.OrderRefParamMiddleware())
	orders.GET("/payments/summary", h.GetSummary)
	orders.GET("/payments/chargeable", h.GetChargeable)
	orders.GET("/payments/refundable", h.GetRefundable)
	orders.GET("/payments/reservable", h.GetReservable)
	orders.GET("/payments/events", h.ListEvents)
	orders.POST("/payments/events", h.RecordEvent)
	orders.PUT("/instruments/:guid", h.PutInstrument)
}

// Choice is one event that can be charged against or refunded, with the
// amounts left on it.
type Choice struct {
	Event   *payments.Event `json:"event"`
	Amounts []money.Money   `json:"amounts"`
}

// ReservableInstrument is the headroom left on one instrument.
type ReservableInstrument struct {
	InstrumentGUID string      `json:"instrumentGuid"`
	Reservable     money.Money `json:"reservable"`
}

// InstrumentRequest registers an instrument limit. "0" means unlimited.
type InstrumentRequest struct {
	Limit    string `json:"limit" binding:"required"`
	Currency string `json:"currency" binding:"required"`
}

func choices(m *payments.Multimap) []Choice {
	out := make([]Choice, 0, m.Len())
	for _, e := range m.Keys() {
		out = append(out, Choice{Event: e, Amounts: m.Get(e)})
	}
	return out
}

// GetSummary handles GET /orders/:ref/payments/summary
func (h *Handler) GetSummary(c *gin.Context) {
	ref := c.Param("ref")
	s, err := h.service.Summary(c.Request.Context(), ref)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orderRef":    ref,
		"captureMode": h.service.History().Mode(),
		"available":   s.Available,
		"charged":     s.Charged,
		"refunded":    s.Refunded,
		"chargeable":  choices(s.Chargeable),
		"refundable":  choices(s.Refundable),
	})
}

// GetChargeable handles GET /orders/:ref/payments/chargeable
func (h *Handler) GetChargeable(c *gin.Context) {
	ref := c.Param("ref")
	m, err := h.service.Chargeable(c.Request.Context(), ref)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderRef": ref, "chargeable": choices(m)})
}

// GetRefundable handles GET /orders/:ref/payments/refundable
func (h *Handler) GetRefundable(c *gin.Context) {
	ref := c.Param("ref")
	m, err := h.service.Refundable(c.Request.Context(), ref)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderRef": ref, "refundable": choices(m)})
}

// GetReservable handles GET /orders/:ref/payments/reservable
func (h *Handler) GetReservable(c *gin.Context) {
	ref := c.Param("ref")
	byInstrument, err := h.service.Reservable(c.Request.Context(), ref)
	if err != nil {
		h.writeError(c, err)
		return
	}

	out := make([]ReservableInstrument, 0, len(byInstrument))
	for guid, amount := range byInstrument {
		out = append(out, ReservableInstrument{InstrumentGUID: guid, Reservable: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InstrumentGUID < out[j].InstrumentGUID })
	c.JSON(http.StatusOK, gin.H{"orderRef": ref, "instruments": out})
}

// ListEvents handles GET /orders/:ref/payments/events
func (h *Handler) ListEvents(c *gin.Context) {
	ref := c.Param("ref")
	limit := 0
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_limit", "message": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	events, next, err := h.service.Events(c.Request.Context(), ref, c.Query("cursor"), limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orderRef":   ref,
		"events":     events,
		"nextCursor": next,
		"hasMore":    next != "",
	})
}

// RecordEvent handles POST /orders/:ref/payments/events
func (h *Handler) RecordEvent(c *gin.Context) {
	var req RecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "type, status, amount and currency are required",
		})
		return
	}

	e, err := h.service.Record(c.Request.Context(), c.Param("ref"), req)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"event": e})
}

// PutInstrument handles PUT /orders/:ref/instruments/:guid
func (h *Handler) PutInstrument(c *gin.Context) {
	var req InstrumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "limit and currency are required",
		})
		return
	}

	inst, err := h.service.PutInstrument(c.Request.Context(), c.Param("ref"), c.Param("guid"), req.Limit, req.Currency)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"instrument": inst})
}

func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, payments.ErrInconsistentHistory):
		c.JSON(http.StatusConflict, gin.H{"error": "inconsistent_history", "message": err.Error()})
	case errors.Is(err, ErrDuplicateEvent):
		c.JSON(http.StatusConflict, gin.H{"error": "duplicate_event", "message": "an event with this guid already exists"})
	case errors.Is(err, ErrUnknownParent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown_parent", "message": err.Error()})
	case errors.Is(err, ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_event", "message": err.Error()})
	case errors.Is(err, ErrInvalidRef):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_order_ref", "message": err.Error()})
	case errors.Is(err, pagination.ErrInvalidCursor):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor", "message": err.Error()})
	default:
		h.logger.Error("order request failed", "path", c.FullPath(), "order_ref", c.Param("ref"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": "Failed to process request"})
	}
}
