package middleware

import (
	"errors"
	"net/http"

	"github.com/eaglebank/eagle/shared/apperrors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

type BadRequestErrorResponse struct {
	Message string            `json:"message"`
	Code    string            `json:"code"`
	Details []ValidationError `json:"details"`
}

// ErrorResponse is the body of every non-validation error. Code carries the
// apperrors code so calling services can rebuild the error.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func ValidateRequest(obj any) []ValidationError {
	err := validate.Struct(obj)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []ValidationError{{Field: "", Message: err.Error(), Type: "invalid"}}
	}

	validationErrors := make([]ValidationError, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		validationErrors = append(validationErrors, ValidationError{
			Field:   fe.Field(),
			Message: getErrorMsg(fe),
			Type:    fe.Tag(),
		})
	}
	return validationErrors
}

func getErrorMsg(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return "This field is required"
	case "min":
		return "Value is too short"
	case "max":
		return "Value is too long"
	case "nefield":
		return "Value must differ from " + err.Param()
	case "oneof":
		return "Value must be one of: " + err.Param()
	default:
		return "Invalid value"
	}
}

func RespondWithValidationError(c *gin.Context, validationErrors []ValidationError) {
	c.JSON(http.StatusBadRequest, BadRequestErrorResponse{
		Message: "Invalid request data",
		Code:    apperrors.CodeValidation,
		Details: validationErrors,
	})
}

func RespondWithError(c *gin.Context, code int, message string) {
	c.JSON(code, ErrorResponse{Message: message})
}

// RespondWithAppError maps a business error to its HTTP status and writes the
// coded body. Uncoded errors become a 500 with fallback as the message.
func RespondWithAppError(c *gin.Context, err error, fallback string) {
	code := apperrors.CodeOf(err)
	status := StatusForCode(code)
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = fallback
	}
	c.JSON(status, ErrorResponse{Message: message, Code: code})
}

// StatusForCode is the single mapping from business codes to HTTP statuses.
func StatusForCode(code string) int {
	switch code {
	case apperrors.CodeValidation:
		return http.StatusBadRequest
	case apperrors.CodeAccountNotFound, apperrors.CodeTransactionNotFound:
		return http.StatusNotFound
	case apperrors.CodeInsufficientBalance, apperrors.CodeAccountNotActive:
		return http.StatusUnprocessableEntity
	case apperrors.CodeForbidden:
		return http.StatusForbidden
	case apperrors.CodeDuplicateTransaction, apperrors.CodeInvalidState:
		return http.StatusConflict
	case apperrors.CodeRemoteUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
