// Package response defines the JSON envelope used for API error and status
// responses.
package response

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var EmptyRequestBodyResponse = Response{
	Status:  StatusError,
	Error:   "Empty Request Body",
	Message: "Request body is empty. Please provide necessary data.",
}

var BadRequestResponse = Response{
	Status:  StatusError,
	Error:   "Bad Request",
	Message: "The request couldn't be processed. Please check your input.",
}

var ResourceNotFoundResponse = Response{
	Status:  StatusError,
	Error:   "Resource Not Found",
	Message: "The requested resource was not found.",
}

var UnauthorizedResponse = Response{
	Status:  StatusError,
	Error:   "Unauthorized",
	Message: "The provided key doesn't match the resource owner key.",
}

var ServerErrorResponse = Response{
	Status:  StatusError,
	Error:   "Server Error",
	Message: "An internal server error occurred. Please try again later.",
}

type Response struct {
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message"`
	Details []any  `json:"details,omitempty"`
	Data    any    `json:"data,omitempty"`
}

func SuccessResponse(msg string, data ...any) Response {
	resp := Response{
		Status:  StatusSuccess,
		Message: msg,
	}

	if len(data) > 0 {
		resp.Data = data[0]
	}

	return resp
}

// ValidationErrorResponse builds an error response carrying one detail entry
// per failed field of a validator.ValidationErrors.
func ValidationErrorResponse(err error) Response {
	resp := Response{
		Status:  StatusError,
		Error:   "Validation Error",
		Message: "The request contains invalid data. Please check your input.",
	}

	for _, ve := range getValidationErrors(err) {
		resp.Details = append(resp.Details, ve)
	}

	return resp
}

type validationError struct {
	Field string `json:"field"`
	Value any    `json:"value"`
	Issue string `json:"issue"`
}

func getValidationErrors(err error) []validationError {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return nil
	}

	var errs []validationError

	for _, e := range validationErrs {
		ve := validationError{
			Field: e.Field(),
			Value: e.Value(),
		}

		switch e.Tag() {
		case "required":
			ve.Issue = "This field is required."
		case "url":
			ve.Issue = "Invalid url."
		case "min":
			ve.Issue = fmt.Sprintf("Must be at least %s characters long.", e.Param())
		case "max":
			ve.Issue = fmt.Sprintf("Must be at most %s characters long.", e.Param())
		case "len":
			ve.Issue = fmt.Sprintf("Must be exactly %s characters long.", e.Param())
		default:
			ve.Issue = "Invalid value."
		}

		errs = append(errs, ve)
	}

	return errs
}
