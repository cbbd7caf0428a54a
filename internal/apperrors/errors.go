package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

// ===============================
// ERROR TYPES
// ===============================

// Error type identifiers
const (
	TypeStorage        = "STORAGE_ERROR"
	TypeSync           = "SYNC_ERROR"
	TypeValidation     = "VALIDATION_ERROR"
	TypeQueueExhausted = "QUEUE_EXHAUSTED"
)

// Sentinels for errors.Is matching
var (
	ErrStorage        = errors.New("storage error")
	ErrSync           = errors.New("sync error")
	ErrValidation     = errors.New("validation error")
	ErrQueueExhausted = errors.New("queue exhausted")
)

// AppError is the structured base shared by every error the core returns
type AppError struct {
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel for the error's type
func (e *AppError) Is(target error) bool {
	switch target {
	case ErrStorage:
		return e.Type == TypeStorage
	case ErrSync:
		return e.Type == TypeSync
	case ErrValidation:
		return e.Type == TypeValidation
	case ErrQueueExhausted:
		return e.Type == TypeQueueExhausted
	}
	return false
}

// ===============================
// SPECIALIZED ERRORS
// ===============================

// StorageError reports a failed get/set against a storage adapter
type StorageError struct {
	*AppError
	Op  string `json:"op"`
	Key string `json:"key"`
}

// NewStorageError creates a storage error for an operation on a key
func NewStorageError(op, key string, cause error) *StorageError {
	return &StorageError{
		AppError: &AppError{
			Type:    TypeStorage,
			Message: fmt.Sprintf("%s %q failed", op, key),
			Cause:   cause,
		},
		Op:  op,
		Key: key,
	}
}

// SyncError reports a failed remote-mirror call for a queued action
type SyncError struct {
	*AppError
	ItemID  int64  `json:"item_id"`
	Action  string `json:"action"`
	Attempt int    `json:"attempt"`
}

// NewSyncError creates a sync error for one attempt of a queue item
func NewSyncError(itemID int64, action string, attempt int, cause error) *SyncError {
	return &SyncError{
		AppError: &AppError{
			Type:    TypeSync,
			Message: fmt.Sprintf("sync of %s item %d failed on attempt %d", action, itemID, attempt),
			Cause:   cause,
		},
		ItemID:  itemID,
		Action:  action,
		Attempt: attempt,
	}
}

// QueueExhaustedError reports an action dropped after its final attempt
type QueueExhaustedError struct {
	*AppError
	ItemID   int64  `json:"item_id"`
	Action   string `json:"action"`
	Attempts int    `json:"attempts"`
}

// NewQueueExhaustedError creates a dead-letter error for a dropped item
func NewQueueExhaustedError(itemID int64, action string, attempts int, cause error) *QueueExhaustedError {
	return &QueueExhaustedError{
		AppError: &AppError{
			Type:    TypeQueueExhausted,
			Message: fmt.Sprintf("%s item %d dropped after %d attempts", action, itemID, attempts),
			Cause:   cause,
		},
		ItemID:   itemID,
		Action:   action,
		Attempts: attempts,
	}
}

// FieldError represents a single field validation error
type FieldError struct {
	Field   string      `json:"field"`
	Value   interface{} `json:"value,omitempty"`
	Message string      `json:"message"`
	Code    string      `json:"code"`
}

// ValidationError represents detailed validation errors
type ValidationError struct {
	*AppError
	Fields []FieldError `json:"fields,omitempty"`
}

// NewValidationError creates a validation error with a single message
func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{
		AppError: &AppError{
			Type:    TypeValidation,
			Message: message,
			Cause:   cause,
		},
	}
}

// NewDetailedValidationError creates a validation error with field details
func NewDetailedValidationError(message string, fields []FieldError) *ValidationError {
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	if len(parts) > 0 {
		message = fmt.Sprintf("%s (%s)", message, strings.Join(parts, "; "))
	}
	return &ValidationError{
		AppError: &AppError{
			Type:    TypeValidation,
			Message: message,
		},
		Fields: fields,
	}
}

// ===============================
// ERROR UTILITIES
// ===============================

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsStorageError checks if an error is a storage error
func IsStorageError(err error) bool {
	return errors.Is(err, ErrStorage)
}

// IsSyncError checks if an error is a sync error
func IsSyncError(err error) bool {
	return errors.Is(err, ErrSync)
}
