// Package validate wraps go-playground/validator and reports the first
// failing field as a model.ValidationError.
package validate

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/erazemk/karat/internal/model"
)

var (
	instance *validator.Validate
	once     sync.Once
)

// Get returns the shared validator with the domain tags registered.
func Get() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		_ = v.RegisterValidation("item_type", func(fl validator.FieldLevel) bool {
			return model.ItemType(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("unit", func(fl validator.FieldLevel) bool {
			return model.Unit(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("tx_type", func(fl validator.FieldLevel) bool {
			return model.TransactionType(fl.Field().String()).Valid()
		})
		_ = v.RegisterValidation("party_status", func(fl validator.FieldLevel) bool {
			s := fl.Field().String()
			return s == "" || model.PartyStatus(s).Valid()
		})

		// Report fields by their JSON names.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				return fld.Name
			}
			return name
		})

		instance = v
	})
	return instance
}

// Struct validates s and converts the first failure into a
// model.ValidationError.
func Struct(s any) error {
	err := Get().Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return model.Invalid("", err.Error())
	}
	fe := verrs[0]
	return model.Invalid(fe.Field(), message(fe))
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	case "item_type":
		return "must be one of gold, silver, platinum, diamonds, gemstones"
	case "unit":
		return "must be one of grams, ounces, kilograms, carats, pieces"
	case "tx_type":
		return "must be one of deposit, withdraw, transfer"
	case "party_status":
		return "must be active or inactive"
	case "uuid", "uuid4":
		return "must be a valid id"
	default:
		return "is invalid"
	}
}
