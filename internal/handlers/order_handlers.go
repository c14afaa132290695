package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"sportsreg_app/internal/repository"
	"sportsreg_app/internal/services"
)

type OrderHandler struct {
	pricing *services.PricingService
	store   repository.Store
}

func NewOrderHandler(pricing *services.PricingService, store repository.Store) *OrderHandler {
	return &OrderHandler{pricing: pricing, store: store}
}

type orderRequest struct {
	Items     []services.OrderItemInput `json:"items"`
	PromoCode string                    `json:"promo_code"`
	Notes     string                    `json:"notes"`
}

// Calculate prices a cart without creating anything. Clients call this on
// every cart change to show the live breakdown.
func (h *OrderHandler) Calculate(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req orderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	calc, err := h.pricing.Calculate(c.Request().Context(), userID, req.Items, req.PromoCode)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, calc)
}

// Create turns a cart into a draft order.
func (h *OrderHandler) Create(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req orderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	order, err := h.pricing.CreateOrder(c.Request().Context(), userID, req.Items, req.PromoCode, req.Notes)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, order)
}

// Get returns one of the caller's orders by uuid.
func (h *OrderHandler) Get(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	order, err := h.store.Orders().GetByUUID(c.Request().Context(), c.Param("uuid"))
	if err != nil {
		return err
	}
	if order.UserID != userID {
		return echo.NewHTTPError(http.StatusNotFound, "order not found")
	}
	return c.JSON(http.StatusOK, order)
}

// List returns the caller's orders, newest first.
func (h *OrderHandler) List(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	orders, err := h.store.Orders().ListByUser(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, orders)
}

// Cancel cancels an order still in a cancellable status.
func (h *OrderHandler) Cancel(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	order, err := h.pricing.CancelDraftOrder(c.Request().Context(), c.Param("uuid"), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, order)
}

type validateCodeRequest struct {
	Code        string          `json:"code"`
	OrderAmount decimal.Decimal `json:"order_amount"`
}

// ValidateCode checks a promo code before checkout, for cart UX.
func (h *OrderHandler) ValidateCode(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req validateCodeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	ok, reason, err := h.pricing.ValidateCode(c.Request().Context(), userID, req.Code, req.OrderAmount)
	if err != nil {
		return err
	}
	resp := map[string]interface{}{"valid": ok}
	if reason != "" {
		resp["reason"] = reason
	}
	return c.JSON(http.StatusOK, resp)
}
