package application

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/streamvault/billing-gateway/internal/domain"
)

// ServiceError carries an HTTP status alongside an error code so the REST
// layer can map failures without inspecting domain internals.
type ServiceError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func NewInternalError(err error) *ServiceError {
	return &ServiceError{
		Code:       "INTERNAL_ERROR",
		Message:    "An internal error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func NewInvalidInputError(msg string) *ServiceError {
	return &ServiceError{
		Code:       domain.ErrCodeValidation,
		Message:    msg,
		HTTPStatus: http.StatusBadRequest,
	}
}

func IsServiceError(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	ok := errors.As(err, &svcErr)
	return svcErr, ok
}

// ToHTTPStatus maps any error bubbling out of the services onto a status
// code for the synchronous API paths.
func ToHTTPStatus(err error) int {
	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.HTTPStatus
	}

	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Code {
		case domain.ErrCodeValidation:
			return http.StatusBadRequest
		case domain.ErrCodeRecordNotFound:
			return http.StatusNotFound
		case domain.ErrCodeConfig, domain.ErrCodeGatewayRequest, domain.ErrCodePersistence:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}

// ToErrorCode extracts the machine-readable code for the error envelope.
func ToErrorCode(err error) string {
	if svcErr, ok := IsServiceError(err); ok {
		return svcErr.Code
	}
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return "INTERNAL_ERROR"
}
