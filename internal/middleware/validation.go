package middleware

import (
	"math"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// MaxDisplayAmount bounds any single money field well below int64
// overflow after native-unit conversion.
const MaxDisplayAmount = 1e9

// RegisterValidators installs domain validation tags on gin's binding
// engine. Call once before building the router.
func RegisterValidators() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		return name
	})

	// amount: a positive, finite display-unit money value.
	v.RegisterValidation("amount", func(fl validator.FieldLevel) bool {
		amount := fl.Field().Float()
		return amount > 0 && amount <= MaxDisplayAmount && !math.IsNaN(amount) && !math.IsInf(amount, 0)
	})
}
