package flagship

import (
	"github.com/OrlandoBitencourt/flagship/pkg/domain"
)

// Error types that may be returned by flagship operations. Only
// ConfigurationError (from New) and IllegalStateError (from the Sync
// accessors) are returned by default; the rest surface through the
// OrError family, FlagStatus.LastError and logs.
type (
	ConfigurationError = domain.ConfigurationError
	ProviderError      = domain.ProviderError
	CacheError         = domain.CacheError
	IllegalStateError  = domain.IllegalStateError
	NotFoundError      = domain.NotFoundError
	TypeMismatchError  = domain.TypeMismatchError
	ValidationError    = domain.ValidationError
)

// IsConfigurationError reports whether err is a configuration error.
func IsConfigurationError(err error) bool { return domain.IsConfigurationError(err) }

// IsProviderError reports whether err is any provider fetch error.
func IsProviderError(err error) bool { return domain.IsProviderError(err) }

// IsNetworkError reports whether err is a provider network error.
func IsNetworkError(err error) bool { return domain.IsNetworkError(err) }

// IsParseError reports whether err is a provider parse error.
func IsParseError(err error) bool { return domain.IsParseError(err) }

// IsCacheError reports whether err is a cache I/O error.
func IsCacheError(err error) bool { return domain.IsCacheError(err) }

// IsIllegalState reports whether err came from a premature Sync call.
func IsIllegalState(err error) bool { return domain.IsIllegalState(err) }

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool { return domain.IsNotFound(err) }

// IsTypeMismatch reports whether err is a kind mismatch.
func IsTypeMismatch(err error) bool { return domain.IsTypeMismatch(err) }

// IsValidationError reports whether err is a validation error.
func IsValidationError(err error) bool { return domain.IsValidationError(err) }
