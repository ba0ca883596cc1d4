package validator

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	// Use JSON tag names in error messages
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	registerOneOf("currency", "XAF", "ED")
	registerOneOf("purchase_method", "mobile_money", "balance")
	registerOneOf("payout_method", "mtn_momo", "orange_money")
}

func registerOneOf(tag string, allowed ...string) {
	validate.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
		v := fl.Field().String()
		for _, a := range allowed {
			if v == a {
				return true
			}
		}
		return false
	})
}

// Validate validates a struct and returns a map of field errors
func Validate(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	errs, ok := err.(validator.ValidationErrors)
	if !ok {
		return map[string]string{"_": err.Error()}
	}

	out := make(map[string]string, len(errs))
	for _, fe := range errs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			out[field] = "This field is required"
		case "min":
			out[field] = "Value is too short (min: " + fe.Param() + ")"
		case "max":
			out[field] = "Value is too long (max: " + fe.Param() + ")"
		case "gt":
			out[field] = "Value must be greater than " + fe.Param()
		case "gte":
			out[field] = "Value must be at least " + fe.Param()
		case "uuid":
			out[field] = "Invalid identifier"
		case "currency":
			out[field] = "Invalid currency. Must be: XAF or ED"
		case "purchase_method":
			out[field] = "Invalid method. Must be: mobile_money or balance"
		case "payout_method":
			out[field] = "Invalid payout method. Must be: mtn_momo or orange_money"
		default:
			out[field] = "Invalid value"
		}
	}
	return out
}
