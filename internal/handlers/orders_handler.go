package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/krumbkraft/orderflow/internal/checkout"
	"github.com/krumbkraft/orderflow/internal/idempotency"
	"github.com/krumbkraft/orderflow/internal/validation"
)

const jsonContentType = "application/json; charset=utf-8"

// placeOrder runs checkout. An optional Idempotency-Key header makes retries
// of the same body replay the first result instead of placing a second order.
func (h *handler) placeOrder(c *gin.Context) {
	ctx := c.Request.Context()

	raw, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}
	var req checkout.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "msg": err.Error()})
		return
	}

	idempKey := c.GetHeader("Idempotency-Key")
	if idempKey != "" && h.cfg.Idempotency != nil {
		rec, claimed, err := h.cfg.Idempotency.Begin(ctx, idempKey, idempotency.HashRequest(raw))
		if errors.Is(err, idempotency.ErrKeyReused) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency_key_reused"})
			return
		}
		if err != nil {
			h.logger.Error("idempotency check failed", zap.String("idempotencyKey", idempKey), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed"})
			return
		}
		if !claimed {
			h.replay(c, rec)
			return
		}
	} else {
		idempKey = ""
	}

	res, err := h.cfg.Checkout.PlaceOrder(ctx, req)
	if err != nil {
		if idempKey != "" {
			// let client retry with the same key
			if mErr := h.cfg.Idempotency.MarkFailed(ctx, idempKey, err.Error()); mErr != nil {
				h.logger.Warn("mark idempotency failed", zap.String("idempotencyKey", idempKey), zap.Error(mErr))
			}
		}
		h.writeError(c, err)
		return
	}

	body, err := json.Marshal(res)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if idempKey != "" {
		if err := h.cfg.Idempotency.MarkDone(ctx, idempKey, res.OrderID, string(body), http.StatusCreated); err != nil {
			h.logger.Warn("mark idempotency done", zap.String("idempotencyKey", idempKey), zap.Error(err))
		}
	}

	c.Header("Location", fmt.Sprintf("/orders/%s", res.OrderID))
	c.Data(http.StatusCreated, jsonContentType, body)
}

func (h *handler) replay(c *gin.Context, rec *idempotency.Record) {
	switch rec.Status {
	case idempotency.StatusDone:
		if rec.ResponseBody != "" {
			status := rec.ResponseStatus
			if status == 0 {
				status = http.StatusOK
			}
			c.Data(status, jsonContentType, []byte(rec.ResponseBody))
			return
		}
		c.JSON(http.StatusOK, gin.H{"order_id": rec.OrderID})
	case idempotency.StatusInProgress:
		c.JSON(http.StatusAccepted, gin.H{"message": "request already in progress"})
	default:
		c.JSON(http.StatusConflict, gin.H{"error": "previous_attempt_failed"})
	}
}

func (h *handler) updateStatus(c *gin.Context) {
	var req validation.StatusUpdateRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}

	res, err := h.cfg.Checkout.UpdateStatus(c.Request.Context(), c.Param("orderId"), req.Status, req.Notes)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
