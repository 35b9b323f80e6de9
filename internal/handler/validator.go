package handler

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/sumire/clique/internal/domain"
)

// AppValidator wraps go-playground/validator for echo.
type AppValidator struct {
	validator *validator.Validate
}

// NewAppValidator creates a new AppValidator.
func NewAppValidator() *AppValidator {
	return &AppValidator{validator: validator.New()}
}

// Validate validates a struct using go-playground/validator tags. Any
// failure surfaces as the coarse ParamsError code with a field hint.
func (v *AppValidator) Validate(i any) error {
	if err := v.validator.Struct(i); err != nil {
		validationErrors, ok := err.(validator.ValidationErrors)
		if ok && len(validationErrors) > 0 {
			fe := validationErrors[0]
			return &domain.Error{
				Code:    domain.CodeParamsError,
				Message: fmt.Sprintf("%s failed on '%s' validation", fe.Field(), fe.Tag()),
			}
		}
		return domain.ErrParamsError
	}
	return nil
}
