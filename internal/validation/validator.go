package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	apperrors "github.com/krumbkraft/orderflow/internal/errors"
)

// New returns a configured validator with custom struct-level validation
// registered. Field names in errors use the json tag.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	v.RegisterStructValidation(checkoutStructValidation, CheckoutRequest{})

	return v
}

// checkoutStructValidation requires an address source and, when the client
// sent a total, checks it equals the sum of price * quantity.
func checkoutStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CheckoutRequest)

	if req.Address == nil && req.AddressID == "" {
		sl.ReportError(req.Address, "address", "Address", "address_required", "")
	}
	// a saved address is only usable by the user who owns it
	if req.AddressID != "" && req.UserID == "" {
		sl.ReportError(req.UserID, "user_id", "UserID", "required", "")
	}

	if req.TotalAmount != nil {
		var sum int64
		for _, it := range req.Items {
			sum += int64(it.Quantity) * it.Price
		}
		if sum != *req.TotalAmount {
			sl.ReportError(*req.TotalAmount, "total_amount", "TotalAmount", "amount_match_items", fmt.Sprintf("%d", sum))
		}
	}
}

// Validate runs v over req and converts failures into a ValidationError.
func Validate(v *validatorv10.Validate, req interface{}) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		return apperrors.NewValidationError(err.Error())
	}
	details := make([]apperrors.ValidationDetail, 0, len(ve))
	for _, fe := range ve {
		details = append(details, apperrors.ValidationDetail{
			Field:   fieldPath(fe),
			Message: message(fe),
		})
	}
	return apperrors.NewValidationError("invalid request", details...)
}

// fieldPath drops the root struct name: "CheckoutRequest.items[0].quantity" -> "items[0].quantity".
func fieldPath(fe validatorv10.FieldError) string {
	ns := fe.Namespace()
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func message(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		if fe.Kind() == reflect.Slice {
			return "must contain at least " + fe.Param() + " entry"
		}
		if fe.Kind() == reflect.String {
			return "must be at least " + fe.Param() + " characters"
		}
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "datetime":
		return "must be a date in " + fe.Param() + " format"
	case "oneof":
		return "must be one of: " + fe.Param()
	case "numeric", "len":
		return "must be a 6 digit pincode"
	case "address_required":
		return "address or address_id is required"
	case "amount_match_items":
		return "does not match the items total " + fe.Param()
	}
	return "failed " + fe.Tag() + " validation"
}
