// Package errors defines the failure taxonomy of the resolution pipeline.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

// NormalizationError means a record cannot be turned into a comparable form.
// The record is rejected and never retried.
type NormalizationError struct {
	RecordID string
	Field    string
	Message  string
}

func NewNormalizationError(recordID, field, msg string) *NormalizationError {
	return &NormalizationError{RecordID: recordID, Field: field, Message: msg}
}

func (e *NormalizationError) Error() string {
	if e.Field == "" {
		return "normalization failed: " + e.Message
	}
	return fmt.Sprintf("normalization failed: field '%s': %s", e.Field, e.Message)
}

func (e *NormalizationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusUnprocessableEntity, e.Error()).
		AddMetaValue("record_id", e.RecordID).
		AddMetaValue("field", e.Field)
}

// ConfigurationError is fatal at startup.
type ConfigurationError struct {
	Field   string
	Message string
}

func NewConfigurationError(field, msg string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: msg}
}

func NewConfigurationErrorf(field, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Message
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Message)
}

func (e *ConfigurationError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusInternalServerError, e.Error())
}

// TransientStoreError wraps a catalog store I/O failure that may succeed on retry.
type TransientStoreError struct {
	Op  string
	Err error
}

func NewTransientStoreError(op string, err error) *TransientStoreError {
	return &TransientStoreError{Op: op, Err: err}
}

func (e *TransientStoreError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("store %s failed", e.Op)
	}
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

func (e *TransientStoreError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusServiceUnavailable, fmt.Sprintf("store %s failed", e.Op)).
		AddMetaValue("retryable", true)
}

// CommitConflictError reports that the catalog changed underneath a commit.
type CommitConflictError struct {
	EntityID string
	BlockKey string
	Message  string
}

func NewCommitConflictError(entityID, blockKey, msg string) *CommitConflictError {
	return &CommitConflictError{EntityID: entityID, BlockKey: blockKey, Message: msg}
}

func (e *CommitConflictError) Error() string {
	switch {
	case e.EntityID != "":
		return fmt.Sprintf("commit conflict on entity %s: %s", e.EntityID, e.Message)
	case e.BlockKey != "":
		return fmt.Sprintf("commit conflict on block '%s': %s", e.BlockKey, e.Message)
	default:
		return "commit conflict: " + e.Message
	}
}

func (e *CommitConflictError) ToHTTPError() *httperror.HTTPError {
	return httperror.NewHTTPError(http.StatusConflict, e.Error()).
		AddMetaValue("entity_id", e.EntityID)
}

func IsNormalizationError(err error) bool {
	var target *NormalizationError
	return stderrors.As(err, &target)
}

func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return stderrors.As(err, &target)
}

func IsTransientStoreError(err error) bool {
	var target *TransientStoreError
	return stderrors.As(err, &target)
}

func IsCommitConflictError(err error) bool {
	var target *CommitConflictError
	return stderrors.As(err, &target)
}

// HTTPConvertible is implemented by every error in this package.
type HTTPConvertible interface {
	ToHTTPError() *httperror.HTTPError
}

// ToHTTPError converts a pipeline error into an HTTP error. Errors that are
// already HTTP errors pass through; anything else becomes a 500.
func ToHTTPError(err error) *httperror.HTTPError {
	if err == nil {
		return nil
	}
	var convertible HTTPConvertible
	if stderrors.As(err, &convertible) {
		return convertible.ToHTTPError()
	}
	var httpErr *httperror.HTTPError
	if stderrors.As(err, &httpErr) {
		return httpErr
	}
	return httperror.NewHTTPError(http.StatusInternalServerError, err.Error())
}
