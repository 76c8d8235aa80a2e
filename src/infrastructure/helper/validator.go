package helper

import (
	"fmt"

	domainContact "go-wa-campaign-api/src/domain/contact"
	logger "go-wa-campaign-api/src/infrastructure/logger"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Validator interface {
	GetErrorMsg(fe validator.FieldError) string
}

type validatorHelper struct {
	Logger *logger.Logger
}

func NewValidator(loggerInstance *logger.Logger) Validator {
	return &validatorHelper{Logger: loggerInstance}
}

func (v *validatorHelper) GetErrorMsg(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required"
	case "required_if":
		return "This field is required for the selected option"
	case "oneof":
		return fmt.Sprintf("Should be one of [%s]", fe.Param())
	case "min":
		return fmt.Sprintf("Should be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("Should be at most %s", fe.Param())
	case "gte":
		return fmt.Sprintf("Should be greater than or equal to %s", fe.Param())
	case "lte":
		return fmt.Sprintf("Should be less than or equal to %s", fe.Param())
	case "phone":
		return "Should be a valid phone number"
	}
	v.Logger.Debug("No specific validation message", zap.String("tag", fe.Tag()))
	return "Unknown error"
}

// ValidatePhone is the "phone" validation rule used by request DTOs
func ValidatePhone(fl validator.FieldLevel) bool {
	return domainContact.NormalizePhone(fl.Field().String()) != ""
}

// RegisterValidations installs the custom rules on gin's binding validator
func RegisterValidations() error {
	engine, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding validator engine %T", binding.Validator.Engine())
	}
	return engine.RegisterValidation("phone", ValidatePhone)
}
