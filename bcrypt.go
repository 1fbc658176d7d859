package identity

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HashSecret hashes recovery material (temporary passwords) for storage.
// A cost outside bcrypt's range falls back to the build default.
func HashSecret(secret []byte, cost int) (string, error) {
	if len(secret) == 0 {
		return "", newError(ErrInvalidRecoveryMetadata, nil, map[string]any{"reason": "secret is empty"})
	}

	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}

	h, err := bcrypt.GenerateFromPassword(secret, cost)
	return string(h), err
}

// CompareSecretAndHash reports whether secret matches hash. A mismatch is
// reported as false with a nil error.
func CompareSecretAndHash(secret []byte, hash string) (bool, error) {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), secret); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
