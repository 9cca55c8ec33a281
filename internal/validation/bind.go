package validation

import (
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"

	apperrors "github.com/krumbkraft/orderflow/internal/errors"
)

// BindJSON decodes the body into out and writes a 400 on malformed JSON.
func BindJSON(c *gin.Context, out interface{}) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_request_body",
			"msg":   err.Error(),
		})
		return err
	}
	return nil
}

// BindAndValidate binds JSON body into `out` and runs validation.
// If validation fails, it writes a 400 response and returns an error for the handler to short-circuit.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := BindJSON(c, out); err != nil {
		return err
	}
	if err := Validate(v, out); err != nil {
		WriteValidationError(c, err)
		return err
	}
	return nil
}

// WriteValidationError renders a ValidationError as a 400 with field details.
func WriteValidationError(c *gin.Context, err error) {
	ve, ok := apperrors.IsValidationError(err)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "msg": err.Error()})
		return
	}
	fields := map[string]string{}
	for _, d := range ve.Details {
		fields[d.Field] = d.Message
	}
	c.JSON(http.StatusBadRequest, gin.H{
		"error":  "validation_failed",
		"msg":    ve.Message,
		"fields": fields,
	})
}
