package validator

import (
	"regexp"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/EnkiSilicium/artisan-hub/internal/model"
)

var currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)

// Register installs the domain validations into gin's binding engine so
// request structs can use them as binding tags. Call once at startup.
func Register() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("currency", validCurrency); err != nil {
		return err
	}
	return v.RegisterValidation("order_status", validOrderStatus)
}

// validCurrency accepts ISO 4217 alphabetic codes.
func validCurrency(fl validator.FieldLevel) bool {
	return currencyPattern.MatchString(fl.Field().String())
}

func validOrderStatus(fl validator.FieldLevel) bool {
	return model.ValidOrderStatus(model.OrderStatus(fl.Field().String()))
}
