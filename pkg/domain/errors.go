package domain

import (
	"errors"
	"fmt"
)

// -----------------------------
// ConfigurationError
// -----------------------------

// ConfigurationError reports invalid static configuration.
type ConfigurationError struct {
	Field   string
	Message string
}

func NewConfigurationError(field, message string) *ConfigurationError {
	return &ConfigurationError{Field: field, Message: message}
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error [%s]: %s", e.Field, e.Message)
}

func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// -----------------------------
// ProviderError
// -----------------------------

// ProviderErrorKind classifies provider failures.
type ProviderErrorKind string

const (
	ProviderErrorGeneric ProviderErrorKind = "provider"
	ProviderErrorNetwork ProviderErrorKind = "network"
	ProviderErrorParse   ProviderErrorKind = "parse"
)

// ProviderError is returned by providers when a fetch or evaluation fails.
type ProviderError struct {
	Provider string
	Kind     ProviderErrorKind
	Err      error
}

func NewProviderError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ProviderErrorGeneric, Err: err}
}

func NewNetworkError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ProviderErrorNetwork, Err: err}
}

func NewParseError(provider string, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: ProviderErrorParse, Err: err}
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error from provider %s: %v", e.Kind, e.Provider, e.Err)
	}
	return fmt.Sprintf("%s error from provider %s", e.Kind, e.Provider)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

func IsProviderError(err error) bool {
	var target *ProviderError
	return errors.As(err, &target)
}

func IsNetworkError(err error) bool {
	var target *ProviderError
	return errors.As(err, &target) && target.Kind == ProviderErrorNetwork
}

func IsParseError(err error) bool {
	var target *ProviderError
	return errors.As(err, &target) && target.Kind == ProviderErrorParse
}

// -----------------------------
// CacheError
// -----------------------------

type CacheError struct {
	Op       string
	Provider string
	Err      error
}

func NewCacheError(op, provider string, err error) *CacheError {
	return &CacheError{Op: op, Provider: provider, Err: err}
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s failed for provider %s: %v", e.Op, e.Provider, e.Err)
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

func IsCacheError(err error) bool {
	var target *CacheError
	return errors.As(err, &target)
}

// -----------------------------
// IllegalStateError
// -----------------------------

// IllegalStateError is returned by synchronous accessors used before bootstrap
// has completed.
type IllegalStateError struct {
	Op    string
	State string
}

func NewIllegalStateError(op, state string) *IllegalStateError {
	return &IllegalStateError{Op: op, State: state}
}

func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("illegal state: %s called while %s", e.Op, e.State)
}

func IsIllegalState(err error) bool {
	var target *IllegalStateError
	return errors.As(err, &target)
}

// -----------------------------
// NotFoundError
// -----------------------------

type NotFoundError struct {
	Resource string
	Key      string
}

func NewNotFoundError(resource, key string) *NotFoundError {
	return &NotFoundError{Resource: resource, Key: key}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.Key)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// -----------------------------
// TypeMismatchError
// -----------------------------

type TypeMismatchError struct {
	Key  string
	Want Kind
	Got  Kind
}

func NewTypeMismatchError(key string, want, got Kind) *TypeMismatchError {
	return &TypeMismatchError{Key: key, Want: want, Got: got}
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("flag %s holds %s, requested %s", e.Key, e.Got, e.Want)
}

func IsTypeMismatch(err error) bool {
	var target *TypeMismatchError
	return errors.As(err, &target)
}

// -----------------------------
// ValidationError
// -----------------------------

type ValidationError struct {
	Message string
	Cause   error
}

func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		Message: message,
	}
}

func NewValidationErrorWithCause(message string, cause error) *ValidationError {
	return &ValidationError{
		Message: message,
		Cause:   cause,
	}
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
