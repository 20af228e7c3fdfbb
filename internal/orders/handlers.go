package orders

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/RoiLaboratories/Tower-Exchange/internal/engine"
	"github.com/RoiLaboratories/Tower-Exchange/internal/tokens"
	"github.com/RoiLaboratories/Tower-Exchange/internal/types"
	"github.com/RoiLaboratories/Tower-Exchange/pkg/response"
)

// RegisterValidators wires the frequency and token binding validators
// into gin's validator engine. Call once at startup before routes are
// served.
func RegisterValidators(registry *tokens.Registry) {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	_ = v.RegisterValidation("frequency", func(fl validator.FieldLevel) bool {
		return engine.ValidFrequency(fl.Field().String())
	})

	_ = v.RegisterValidation("token", func(fl validator.FieldLevel) bool {
		return registry.Supports(fl.Field().String())
	})
}

// GinHandlers contains HTTP handlers for order management endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for order endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateOrderHandler handles POST requests to create recurring orders.
// Requires a wallet JWT and an Idempotency-Key header.
func (h *GinHandlers) CreateOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader("Idempotency-Key")
		if idempotencyKey == "" {
			response.BadRequest(c, "Idempotency-Key header is required")
			return
		}

		wallet := c.GetString("walletAddress")
		if wallet == "" {
			response.Unauthorized(c, "Missing wallet address")
			return
		}

		var req types.CreateOrderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.ValidationFailed(c, err.Error())
			return
		}
		req.SourceToken = strings.ToUpper(req.SourceToken)
		req.TargetToken = strings.ToUpper(req.TargetToken)

		order, err := h.service.CreateOrder(c.Request.Context(), wallet, req, idempotencyKey)
		if err != nil {
			handleServiceError(c, err)
			return
		}

		response.Success(c, order)
	}
}

// ListOrdersHandler handles GET requests for all of a wallet's orders
func (h *GinHandlers) ListOrdersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.GetString("walletAddress")
		if wallet == "" {
			response.Unauthorized(c, "Missing wallet address")
			return
		}

		orders, err := h.service.ListOrders(c.Request.Context(), wallet)
		response.Handle(c, orders, err)
	}
}

// GetOrderHandler handles GET requests for a single order
func (h *GinHandlers) GetOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.GetString("walletAddress")
		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "Order ID is required")
			return
		}

		order, err := h.service.GetOrder(c.Request.Context(), wallet, orderID)
		if err != nil {
			handleServiceError(c, err)
			return
		}

		response.Success(c, order)
	}
}

// CancelOrderHandler handles DELETE requests to cancel an order
func (h *GinHandlers) CancelOrderHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.GetString("walletAddress")
		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "Order ID is required")
			return
		}

		result, err := h.service.CancelOrder(c.Request.Context(), wallet, orderID)
		if err != nil {
			handleServiceError(c, err)
			return
		}

		response.Success(c, result)
	}
}

// ListExecutionsHandler handles GET requests for an order's execution history
func (h *GinHandlers) ListExecutionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.GetString("walletAddress")
		orderID := c.Param("order_id")
		if orderID == "" {
			response.BadRequest(c, "Order ID is required")
			return
		}

		executions, err := h.service.ListExecutions(c.Request.Context(), wallet, orderID)
		if err != nil {
			handleServiceError(c, err)
			return
		}

		response.Success(c, executions)
	}
}

func handleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrOrderNotFound):
		response.NotFound(c, "Order not found")
	case errors.Is(err, ErrUnsupportedToken):
		response.UnsupportedToken(c, err.Error())
	case errors.Is(err, ErrInvalidAmount),
		errors.Is(err, ErrSameToken),
		errors.Is(err, ErrInvalidFrequency),
		errors.Is(err, ErrEndDateInPast):
		response.ValidationFailed(c, err.Error())
	default:
		response.InternalError(c, "An unexpected error occurred")
	}
}
