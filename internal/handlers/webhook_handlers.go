package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"sportsreg_app/internal/gateway"
	"sportsreg_app/internal/models"
	"sportsreg_app/internal/repository"
	"sportsreg_app/internal/services"
)

// WebhookHandler receives provider notifications. Invalid signatures get
// 403; everything that parses is stored raw for audit and then handed to the
// reconciler. Events we cannot match get 200 anyway so the provider stops
// redelivering them.
type WebhookHandler struct {
	midtrans   *gateway.MidtransGateway
	reconciler *services.Reconciler
	store      repository.Store
	log        *logrus.Logger
}

func NewWebhookHandler(midtrans *gateway.MidtransGateway, reconciler *services.Reconciler, store repository.Store, log *logrus.Logger) *WebhookHandler {
	return &WebhookHandler{midtrans: midtrans, reconciler: reconciler, store: store, log: log}
}

// HandleMidtrans processes a Midtrans HTTP notification.
func (h *WebhookHandler) HandleMidtrans(c echo.Context) error {
	raw, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "cannot read body")
	}

	var n gateway.Notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid notification JSON")
	}
	if !h.midtrans.VerifySignature(n.OrderID, n.StatusCode, n.GrossAmount, n.SignatureKey) {
		h.log.WithField("order_id", n.OrderID).Warn("rejected notification with bad signature")
		return echo.NewHTTPError(http.StatusForbidden, "invalid signature")
	}

	ev, err := h.midtrans.ParseNotification(raw)
	if err != nil {
		return err
	}

	cb := &models.GatewayCallback{
		PaymentGateway: models.PaymentGatewayMidtrans,
		EventID:        ev.ID,
		EventType:      string(ev.Type),
		Payload:        json.RawMessage(raw),
	}
	if err := h.store.Events().SaveCallback(c.Request().Context(), cb); err != nil {
		// Audit loss is not worth a redelivery storm; log and continue.
		h.log.WithError(err).Warn("could not store raw callback")
	}

	if err := h.reconciler.Process(c.Request().Context(), *ev); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
