package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/krumbkraft/orderflow/internal/validation"
)

func (h *handler) sendWhatsApp(c *gin.Context) {
	if h.cfg.WhatsApp == nil {
		unavailable(c, "whatsapp")
		return
	}
	var req validation.WhatsAppRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	ctx := c.Request.Context()

	var (
		result map[string]any
		err    error
	)
	switch req.Type {
	case validation.MessageOrderConfirmation, validation.MessageBusinessNotification:
		if req.Order == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "fields": gin.H{"order": "is required"}})
			return
		}
		order := req.Order.ToOrder()
		if req.Type == validation.MessageOrderConfirmation {
			result, err = h.cfg.WhatsApp.SendOrderConfirmation(ctx, order, h.cfg.Business)
		} else {
			biz := h.cfg.Business
			if req.BusinessPhone != "" {
				biz.WhatsAppPhone = req.BusinessPhone
			}
			result, err = h.cfg.WhatsApp.SendBusinessNotification(ctx, order, biz)
		}
	case validation.MessageText:
		if req.To == "" || req.Text == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "fields": gin.H{"to": "is required", "text": "is required"}})
			return
		}
		result, err = h.cfg.WhatsApp.SendText(ctx, req.To, req.Text)
	case validation.MessageTemplate:
		if req.To == "" || req.TemplateName == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "fields": gin.H{"to": "is required", "template_name": "is required"}})
			return
		}
		result, err = h.cfg.WhatsApp.SendTemplate(ctx, req.To, req.TemplateName, req.LanguageCode)
	}

	if err != nil {
		h.logger.Error("whatsapp send failed", zap.String("type", req.Type), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": result})
}
