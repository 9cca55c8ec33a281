package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/krumbkraft/orderflow/internal/addresses"
	"github.com/krumbkraft/orderflow/internal/validation"
)

func (h *handler) addAddress(c *gin.Context) {
	if h.cfg.Addresses == nil {
		unavailable(c, "addresses")
		return
	}
	var req validation.AddressRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	saved, err := h.cfg.Addresses.Add(c.Request.Context(), addresses.Address{
		UserID:  req.UserID,
		Address: req.Address.ToOrderAddress(),
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (h *handler) getAddress(c *gin.Context) {
	if h.cfg.Addresses == nil {
		unavailable(c, "addresses")
		return
	}
	addr, err := h.cfg.Addresses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if addr == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.JSON(http.StatusOK, addr)
}

func (h *handler) listAddresses(c *gin.Context) {
	if h.cfg.Addresses == nil {
		unavailable(c, "addresses")
		return
	}
	list, err := h.cfg.Addresses.ListByUser(c.Request.Context(), c.Param("userId"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	if list == nil {
		list = []addresses.Address{}
	}
	c.JSON(http.StatusOK, gin.H{"addresses": list})
}

func (h *handler) deleteAddress(c *gin.Context) {
	if h.cfg.Addresses == nil {
		unavailable(c, "addresses")
		return
	}
	err := h.cfg.Addresses.Delete(c.Request.Context(), c.Param("id"))
	if errors.Is(err, addresses.ErrAddressNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
