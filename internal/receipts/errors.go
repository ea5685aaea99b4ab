package receipts

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine-readable code of an upload failure.
type Kind string

const (
	KindMissingFile     Kind = "MISSING_FILE"
	KindInvalidFileType Kind = "INVALID_FILE_TYPE"
	KindFileTooLarge    Kind = "FILE_TOO_LARGE"
	KindMissingField    Kind = "MISSING_FIELD"
	KindInvalidDate     Kind = "INVALID_DATE"
	KindInvalidAmount   Kind = "INVALID_AMOUNT"
	KindInvalidEnum     Kind = "INVALID_ENUM"
	KindInvalidQuery    Kind = "INVALID_QUERY"

	KindStorage     Kind = "STORAGE_FAILURE"
	KindPersistence Kind = "PERSISTENCE_FAILURE"
	KindUnavailable Kind = "DATABASE_UNAVAILABLE"
	KindNotFound    Kind = "NOT_FOUND"
	KindInternal    Kind = "INTERNAL_SERVER_ERROR"
)

// ErrNotFound is returned by record stores when no record matches.
var ErrNotFound = errors.New("receipt not found")

// ValidationError is a caller-fixable problem with a submission. It is
// always reported before anything is written.
type ValidationError struct {
	Kind    Kind
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s (%s): %s", e.Kind, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// StorageError means the receipt file could not be written.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return "store receipt file: " + e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// PersistenceError means the file was written but its record was not.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string { return "persist receipt record: " + e.Err.Error() }
func (e *PersistenceError) Unwrap() error { return e.Err }

// ConnectivityError means the record store could not be reached.
type ConnectivityError struct {
	Err error
}

func (e *ConnectivityError) Error() string { return "database unavailable: " + e.Err.Error() }
func (e *ConnectivityError) Unwrap() error { return e.Err }

// KindOf classifies err for API responses and metrics.
func KindOf(err error) Kind {
	var (
		ve *ValidationError
		se *StorageError
		pe *PersistenceError
		ce *ConnectivityError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return ve.Kind
	case errors.As(err, &ce):
		return KindUnavailable
	case errors.As(err, &se):
		return KindStorage
	case errors.As(err, &pe):
		return KindPersistence
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	}
	return KindInternal
}

// HTTPStatus maps err to the status code the API responds with.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case "":
		return http.StatusOK
	case KindMissingFile, KindInvalidFileType, KindFileTooLarge, KindMissingField,
		KindInvalidDate, KindInvalidAmount, KindInvalidEnum, KindInvalidQuery:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// PublicMessage is the message safe to show a client. Validation errors are
// shown verbatim; everything else is generic.
func PublicMessage(err error) string {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	switch KindOf(err) {
	case KindNotFound:
		return "Receipt not found"
	case KindUnavailable:
		return "Database is unavailable. Please try again later."
	case KindStorage, KindPersistence:
		return "Failed to upload receipt"
	}
	return "Something went wrong"
}
