package identity

import (
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeUserNotFound                  = "USER_NOT_FOUND"
	TextCodeNoIdentityRecord              = "NO_IDENTITY_RECORD"
	TextCodeFeatureDisabled               = "FEATURE_DISABLED"
	TextCodeInvalidSecurityQuestionFormat = "INVALID_SECURITY_QUESTION_FORMAT"
	TextCodeUpstreamStoreError            = "UPSTREAM_STORE_ERROR"
	TextCodeNoUserMatchesClaims           = "NO_USER_MATCHES_CLAIMS"
	TextCodeAmbiguousOrNoMatch            = "AMBIGUOUS_OR_NO_MATCH"
	TextCodeUnclassifiedUpstreamError     = "UNCLASSIFIED_UPSTREAM_ERROR"
	TextCodeConcurrentModification        = "CONCURRENT_MODIFICATION"
	TextCodeInvalidRecoveryMetadata       = "INVALID_RECOVERY_METADATA"
	TextCodeRecoveryRateLimited           = "RECOVERY_RATE_LIMITED"
	TextCodeInvalidConfirmationCode       = "INVALID_CONFIRMATION_CODE"
	TextCodeInvalidTemporaryPassword      = "INVALID_TEMPORARY_PASSWORD"
	TextCodeInvalidTransition             = "INVALID_LOCK_TRANSITION"
)

// ErrUserNotFound is returned when the user store has no such user.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrNoIdentityRecord is returned when the user exists but has no identity state.
var ErrNoIdentityRecord = goerrors.New("no identity record found for user", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNoIdentityRecord).
	WithCode(goerrors.CodeNotFound)

// ErrFeatureDisabled is returned when the identity management listener is turned off.
var ErrFeatureDisabled = goerrors.New("identity management listener is not enabled", goerrors.CategoryAuthz).
	WithTextCode(TextCodeFeatureDisabled).
	WithCode(goerrors.CodeForbidden)

// ErrInvalidSecurityQuestionFormat is returned when a question lacks the challenge question namespace.
var ErrInvalidSecurityQuestionFormat = goerrors.New("security question does not contain the challenge question namespace", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidSecurityQuestionFormat).
	WithCode(goerrors.CodeBadRequest)

// ErrUpstreamStore wraps failures reported by the user store or the persistence layer.
var ErrUpstreamStore = goerrors.New("upstream store error", goerrors.CategoryInternal).
	WithTextCode(TextCodeUpstreamStoreError).
	WithCode(goerrors.CodeInternal)

// ErrNoUserMatchesClaims is returned when a claim lookup yields no user.
var ErrNoUserMatchesClaims = goerrors.New("no associated user is found for given claim values", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNoUserMatchesClaims).
	WithCode(goerrors.CodeNotFound)

// ErrAmbiguousOrNoMatch is returned when the claims never narrow down to a single user.
var ErrAmbiguousOrNoMatch = goerrors.New("claims do not identify a unique user", goerrors.CategoryConflict).
	WithTextCode(TextCodeAmbiguousOrNoMatch).
	WithCode(goerrors.CodeConflict)

// ErrUnclassifiedUpstream is the fallback of the legacy error classifier.
var ErrUnclassifiedUpstream = goerrors.New("unexpected upstream error", goerrors.CategoryInternal).
	WithTextCode(TextCodeUnclassifiedUpstreamError).
	WithCode(goerrors.CodeInternal)

// ErrConcurrentModification is returned when the stored identity state changed under us.
var ErrConcurrentModification = goerrors.New("identity state was modified concurrently", goerrors.CategoryConflict).
	WithTextCode(TextCodeConcurrentModification).
	WithCode(goerrors.CodeConflict)

// ErrInvalidRecoveryMetadata is returned when recovery metadata fails validation.
var ErrInvalidRecoveryMetadata = goerrors.New("invalid recovery metadata", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidRecoveryMetadata).
	WithCode(goerrors.CodeBadRequest)

// ErrRecoveryRateLimited is returned when recovery material is requested too often.
var ErrRecoveryRateLimited = goerrors.New("too many recovery requests", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeRecoveryRateLimited)

// ErrInvalidConfirmationCode is returned when a confirmation code is unknown or already consumed.
var ErrInvalidConfirmationCode = goerrors.New("invalid or expired confirmation code", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidConfirmationCode).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidTemporaryPassword is returned when a temporary password does not match a valid entry.
var ErrInvalidTemporaryPassword = goerrors.New("invalid or expired temporary password", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidTemporaryPassword).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidTransition is returned for unknown lock targets.
var ErrInvalidTransition = goerrors.New("invalid account lock transition", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// IsKind reports whether err, or any error it wraps, carries the text code of kind.
func IsKind(err error, kind *goerrors.Error) bool {
	if err == nil || kind == nil {
		return false
	}

	for current := err; current != nil; current = errors.Unwrap(current) {
		if rich, ok := current.(*goerrors.Error); ok && rich != nil && rich.TextCode == kind.TextCode {
			return true
		}
	}
	return false
}

// ErrorKind returns the text code of the first rich error in the chain.
func ErrorKind(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil {
		return rich.TextCode
	}
	return ""
}

// newError clones a sentinel so call sites can attach context without
// mutating the shared value.
func newError(base *goerrors.Error, source error, metadata map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		clone = base
	}
	if source != nil {
		clone.Source = source
	}
	if len(metadata) > 0 {
		clone.WithMetadata(metadata)
	}
	return clone
}

var taxonomy = []*goerrors.Error{
	ErrUserNotFound,
	ErrNoIdentityRecord,
	ErrFeatureDisabled,
	ErrInvalidSecurityQuestionFormat,
	ErrUpstreamStore,
	ErrNoUserMatchesClaims,
	ErrAmbiguousOrNoMatch,
	ErrUnclassifiedUpstream,
	ErrConcurrentModification,
	ErrInvalidRecoveryMetadata,
	ErrRecoveryRateLimited,
	ErrInvalidConfirmationCode,
	ErrInvalidTemporaryPassword,
	ErrInvalidTransition,
}

func isTaxonomyError(err error) bool {
	for _, kind := range taxonomy {
		if IsKind(err, kind) {
			return true
		}
	}
	return false
}
