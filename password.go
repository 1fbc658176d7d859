package identity

import (
	"crypto/rand"
	"math/big"

	validation "github.com/go-ozzo/ozzo-validation"
)

const (
	DefaultPasswordLength  = 12
	DefaultPasswordCharset = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789!@#$%&*"
)

// PasswordPolicy controls generated temporary passwords and confirmation codes.
type PasswordPolicy struct {
	Length  int    `yaml:"length" env:"LENGTH"`
	Charset string `yaml:"charset" env:"CHARSET"`
}

// DefaultPasswordPolicy returns the policy used when none is configured.
func DefaultPasswordPolicy() PasswordPolicy {
	return PasswordPolicy{
		Length:  DefaultPasswordLength,
		Charset: DefaultPasswordCharset,
	}
}

// Validate checks the policy can produce a usable secret.
func (p PasswordPolicy) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Length, validation.Required, validation.Min(8), validation.Max(256)),
		validation.Field(&p.Charset, validation.Required, validation.Length(10, 0)),
	)
}

// PasswordGenerator produces recovery secrets.
type PasswordGenerator interface {
	Generate() ([]byte, error)
}

// PasswordGeneratorFunc adapts a function to PasswordGenerator.
type PasswordGeneratorFunc func() ([]byte, error)

// Generate implements PasswordGenerator.
func (f PasswordGeneratorFunc) Generate() ([]byte, error) {
	return f()
}

// RandomPasswordGenerator draws every character uniformly from the policy
// charset using crypto/rand.
type RandomPasswordGenerator struct {
	policy PasswordPolicy
}

// NewRandomPasswordGenerator returns a generator for policy.
func NewRandomPasswordGenerator(policy PasswordPolicy) (*RandomPasswordGenerator, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &RandomPasswordGenerator{policy: policy}, nil
}

// Generate implements PasswordGenerator.
func (g *RandomPasswordGenerator) Generate() ([]byte, error) {
	charset := []rune(g.policy.Charset)
	limit := big.NewInt(int64(len(charset)))

	out := make([]rune, g.policy.Length)
	for i := range out {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return nil, err
		}
		out[i] = charset[n.Int64()]
	}
	return []byte(string(out)), nil
}
