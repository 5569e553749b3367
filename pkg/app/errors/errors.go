// Package errors maps service failures to HTTP responses
package errors

import (
	"errors"
	"net/http"
)

// Category defines error category
type Category int

const (
	// CategoryGeneralError The service failed in an unexpected way
	CategoryGeneralError Category = iota
	// CategoryDataError The client sent invalid parameters
	CategoryDataError
	// CategoryResourceNotFound The client is attempting to access a resource that does not exist
	CategoryResourceNotFound
	// CategoryDependencyFailure A dependent service (postgres, elasticsearch) is throwing errors
	CategoryDependencyFailure
	// CategoryRecovering The service is not ready yet but is expected to recover
	CategoryRecovering
)

func (c Category) String() string {
	switch c {
	case CategoryDataError:
		return "CategoryDataError"
	case CategoryResourceNotFound:
		return "CategoryResourceNotFound"
	case CategoryDependencyFailure:
		return "CategoryDependencyFailure"
	case CategoryRecovering:
		return "CategoryRecovering"
	default:
		return "CategoryGeneralError"
	}
}

// ServiceError carries the category and the message shown to the caller,
// while Err keeps the cause for logging.
type ServiceError struct {
	Category Category
	Message  string
	Err      error
}

// Error method to comply with error interface
func (err ServiceError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	return err.Message
}

// Unwrap returns the underlying error
func (err ServiceError) Unwrap() error {
	return err.Err
}

// StatusCode returns the HTTP status code for the error category
func (err ServiceError) StatusCode() int {
	switch err.Category {
	case CategoryDataError:
		return http.StatusBadRequest
	case CategoryResourceNotFound:
		return http.StatusNotFound
	case CategoryDependencyFailure:
		return http.StatusBadGateway
	case CategoryRecovering:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Is checks that provided error is a ServiceError with desired Category
func Is(err error, cat Category) bool {
	var svcErr *ServiceError
	return errors.As(err, &svcErr) && svcErr.Category == cat
}

func newError(cat Category, err error, message string) error {
	if err == nil {
		err = errors.New(message)
	}
	return &ServiceError{Category: cat, Message: message, Err: err}
}

// GeneralError hides err behind "Internal Server Error"
func GeneralError(err error) error {
	return newError(CategoryGeneralError, err, "Internal Server Error")
}

// BadRequestError reports invalid request parameters
func BadRequestError(err error, message string) error {
	return newError(CategoryDataError, err, message)
}

// ResourceNotFoundError reports a missing resource
func ResourceNotFoundError(err error, message string) error {
	return newError(CategoryResourceNotFound, err, message)
}

// DependencyError reports a failing downstream service
func DependencyError(err error, message string) error {
	return newError(CategoryDependencyFailure, err, message)
}

// NotReadyError reports a service that has not completed its startup work yet
func NotReadyError(message string) error {
	return newError(CategoryRecovering, nil, message)
}
