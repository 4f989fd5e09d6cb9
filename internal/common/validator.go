package common

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

// EchoValidator validates bound request structs. Field names in errors follow the query tag.
type EchoValidator struct {
	validate *validator.Validate
}

func NewEchoValidator() *EchoValidator {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("query"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return &EchoValidator{validate: validate}
}

func (v *EchoValidator) Validate(i interface{}) error {
	err := v.validate.Struct(i)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("received invalid request: %v", err))
	}
	problems := make([]string, 0, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		problems = append(problems, fmt.Sprintf("%s fails %s", fieldError.Field(), fieldError.Tag()))
	}
	return echo.NewHTTPError(http.StatusBadRequest, "received invalid request: "+strings.Join(problems, ", "))
}
