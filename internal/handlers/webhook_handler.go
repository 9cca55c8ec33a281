package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/krumbkraft/orderflow/internal/notify"
	"github.com/krumbkraft/orderflow/internal/validation"
)

// triggerWebhook forwards an app event to the automation webhook. A failed
// dispatch still answers 200 so the caller never rolls back a placed order.
func (h *handler) triggerWebhook(c *gin.Context) {
	if h.cfg.Webhook == nil {
		unavailable(c, "webhook")
		return
	}
	var req validation.WebhookRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}

	var payload notify.Payload
	switch req.Action {
	case validation.ActionOrderPlaced:
		payload = notify.BuildOrderPlacedPayload(req.ToOrder(), h.cfg.Business, h.cfg.Now())
	case validation.ActionOrderStatusUpdate:
		if !notify.ValidEventType("order_" + req.NewStatus) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status", "msg": "new_status " + req.NewStatus + " is not a known order event"})
			return
		}
		payload = notify.BuildStatusPayload(req.OrderID, req.NewStatus, req.CustomerName, req.CustomerPhone, h.cfg.Business, h.cfg.Now())
	}

	res, err := h.cfg.Webhook.Dispatch(c.Request.Context(), payload)
	if err != nil {
		h.logger.Warn("webhook trigger failed", zap.String("orderId", req.OrderID), zap.Error(err))
		c.JSON(http.StatusOK, gin.H{
			"success": false,
			"error":   err.Error(),
			"warning": "Order was placed successfully but notification webhook failed",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Webhook triggered successfully",
		"data":    res,
	})
}
