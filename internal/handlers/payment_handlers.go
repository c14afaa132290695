package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"

	"sportsreg_app/internal/models"
	"sportsreg_app/internal/services"
)

type PaymentHandler struct {
	orchestrator *services.PaymentOrchestrator
}

func NewPaymentHandler(orchestrator *services.PaymentOrchestrator) *PaymentHandler {
	return &PaymentHandler{orchestrator: orchestrator}
}

// PayOneTime starts a one-time charge for the full order total.
func (h *PaymentHandler) PayOneTime(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	intent, err := h.orchestrator.PayOneTime(c.Request().Context(), c.Param("uuid"), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, intent)
}

type createPlanRequest struct {
	NumInstallments int                         `json:"num_installments"`
	Frequency       models.InstallmentFrequency `json:"frequency"`
	StartDate       string                      `json:"start_date"` // YYYY-MM-DD
}

// CreatePlan splits the order into an installment plan. Start date defaults
// to today.
func (h *PaymentHandler) CreatePlan(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req createPlanRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	start := time.Now()
	if req.StartDate != "" {
		start, err = time.Parse("2006-01-02", req.StartDate)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "start_date must be YYYY-MM-DD")
		}
	}

	plan, err := h.orchestrator.CreateInstallmentPlan(
		c.Request().Context(), c.Param("uuid"), userID, req.NumInstallments, req.Frequency, start)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, plan)
}

// CancelPlan stops future installment charges on the caller's plan.
func (h *PaymentHandler) CancelPlan(c echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	planID, err := uintParam(c, "id")
	if err != nil {
		return err
	}
	plan, err := h.orchestrator.CancelInstallmentPlan(c.Request().Context(), planID, userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, plan)
}

type refundRequest struct {
	// Amount omitted or zero refunds the full remaining balance.
	Amount decimal.Decimal `json:"amount"`
	Reason string          `json:"reason"`
}

// Refund asks the gateway to refund part or all of a settled payment. Admin
// only; the route group enforces the role.
func (h *PaymentHandler) Refund(c echo.Context) error {
	paymentID, err := uintParam(c, "id")
	if err != nil {
		return err
	}
	var req refundRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	res, err := h.orchestrator.Refund(c.Request().Context(), paymentID, req.Amount, req.Reason)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, res)
}
