package fee

import (
	"reflect"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/masomo/feeledger/core"
)

var (
	payMethodTag  = "paymethod"
	payMethodText = "{0} must be one of Cash, Card, UPI, Bank Transfer, Cheque"
)

// InitValidators registers the fee validations & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	// dates are validated as time.Time (`required`, ...)
	validate.RegisterCustomTypeFunc(dateValue, Date{})

	_ = validate.RegisterValidation(payMethodTag, payMethodValidation)
	core.RegisterCustomTranslation(validate, translator, payMethodTag, payMethodText)
}

func payMethodValidation(fl validator.FieldLevel) bool {
	return Method(fl.Field().String()).Collectable()
}

func dateValue(field reflect.Value) interface{} {
	if d, ok := field.Interface().(Date); ok {
		return d.Time
	}
	return nil
}
