// validate.go wraps go-playground/validator for provisioning requests and
// converts tag failures into the core's ValidationError type.
package provision

import (
	"github.com/go-playground/validator/v10"

	"github.com/topsteel/erp-core/internal/tenant/fault"
)

var v = validator.New()

func validateRequest(req Request) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}
	if ferrs, ok := err.(validator.ValidationErrors); ok && len(ferrs) > 0 {
		f := ferrs[0]
		return &fault.ValidationError{Field: f.Field(), Reason: "failed rule " + f.Tag()}
	}
	return &fault.ValidationError{Reason: err.Error()}
}
