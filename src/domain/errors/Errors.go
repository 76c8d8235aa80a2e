package errors

import (
	"errors"
	"net/http"
)

const (
	NotFound        = "NotFound"
	notFoundMessage = "record not found"

	ValidationError        = "ValidationError"
	validationErrorMessage = "validation error"

	ResourceAlreadyExists = "ResourceAlreadyExists"
	alreadyExistsMessage  = "resource already exists"

	RepositoryError        = "RepositoryError"
	repositoryErrorMessage = "error in repository operation"

	NotAuthenticated             = "NotAuthenticated"
	notAuthenticatedErrorMessage = "not Authenticated"

	NotAuthorized             = "NotAuthorized"
	notAuthorizedErrorMessage = "not authorized"

	UnknownError        = "UnknownError"
	unknownErrorMessage = "something went wrong"

	// CapacityExceeded is returned when every group of a campaign is full and auto creation is off.
	CapacityExceeded        = "CapacityExceeded"
	capacityExceededMessage = "all groups of this campaign are full"

	// DuplicateRegistration never reaches the API caller: it is resolved to the existing membership.
	DuplicateRegistration        = "DuplicateRegistration"
	duplicateRegistrationMessage = "phone already registered in this campaign"

	ExternalSendError        = "ExternalSendError"
	externalSendErrorMessage = "messaging gateway failed to send"

	ExternalGroupCreationError        = "ExternalGroupCreationError"
	externalGroupCreationErrorMessage = "messaging gateway failed to prepare the group, try again"

	SchedulingError        = "SchedulingError"
	schedulingErrorMessage = "scheduled time must be in the future"

	ConcurrencyConflict        = "ConcurrencyConflict"
	concurrencyConflictMessage = "too many concurrent requests, try again"

	InvalidTransition        = "InvalidTransition"
	invalidTransitionMessage = "operation not allowed in the current status"
)

type AppError struct {
	Err  error
	Type string
}

func NewAppError(err error, errType string) *AppError {
	return &AppError{
		Err:  err,
		Type: errType,
	}
}

func NewAppErrorWithType(errType string) *AppError {
	var err error

	switch errType {
	case NotFound:
		err = errors.New(notFoundMessage)
	case ValidationError:
		err = errors.New(validationErrorMessage)
	case ResourceAlreadyExists:
		err = errors.New(alreadyExistsMessage)
	case RepositoryError:
		err = errors.New(repositoryErrorMessage)
	case NotAuthenticated:
		err = errors.New(notAuthenticatedErrorMessage)
	case NotAuthorized:
		err = errors.New(notAuthorizedErrorMessage)
	case CapacityExceeded:
		err = errors.New(capacityExceededMessage)
	case DuplicateRegistration:
		err = errors.New(duplicateRegistrationMessage)
	case ExternalSendError:
		err = errors.New(externalSendErrorMessage)
	case ExternalGroupCreationError:
		err = errors.New(externalGroupCreationErrorMessage)
	case SchedulingError:
		err = errors.New(schedulingErrorMessage)
	case ConcurrencyConflict:
		err = errors.New(concurrencyConflictMessage)
	case InvalidTransition:
		err = errors.New(invalidTransitionMessage)
	default:
		err = errors.New(unknownErrorMessage)
	}

	return &AppError{
		Err:  err,
		Type: errType,
	}
}

func (appErr *AppError) Error() string {
	return appErr.Err.Error()
}

func (appErr *AppError) Unwrap() error {
	return appErr.Err
}

// IsType reports whether err wraps an AppError of the given type.
func IsType(err error, errType string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == errType
	}
	return false
}

func AppErrorToHTTP(appErr *AppError) (int, string) {
	switch appErr.Type {
	case NotFound:
		return http.StatusNotFound, appErr.Error()
	case ValidationError:
		return http.StatusBadRequest, appErr.Error()
	case RepositoryError:
		return http.StatusInternalServerError, appErr.Error()
	case NotAuthenticated:
		return http.StatusUnauthorized, appErr.Error()
	case NotAuthorized:
		return http.StatusForbidden, appErr.Error()
	case ResourceAlreadyExists, InvalidTransition:
		return http.StatusConflict, appErr.Error()
	case CapacityExceeded, SchedulingError:
		return http.StatusUnprocessableEntity, appErr.Error()
	case ExternalGroupCreationError, ExternalSendError:
		return http.StatusBadGateway, appErr.Error()
	case ConcurrencyConflict:
		return http.StatusServiceUnavailable, appErr.Error()
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}
