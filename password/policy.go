package password

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// ErrPolicyViolation is wrapped by every PolicyError.
var ErrPolicyViolation = errors.New("password: policy violation")

// Policy lists the strength rules a new password must satisfy.
type Policy struct {
	MinLength      int
	RequireUpper   bool
	RequireDigit   bool
	RequireSpecial bool
}

// DefaultPolicy: at least 8 characters with an uppercase letter, a digit and a symbol.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:      8,
		RequireUpper:   true,
		RequireDigit:   true,
		RequireSpecial: true,
	}
}

// PolicyError lists every rule the candidate failed.
type PolicyError struct {
	Violations []string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s", ErrPolicyViolation, strings.Join(e.Violations, ", "))
}

func (e *PolicyError) Unwrap() error { return ErrPolicyViolation }

// Check returns nil or a *PolicyError.
func (p Policy) Check(candidate string) error {
	var upper, digit, special bool
	length := 0
	for _, r := range candidate {
		length++
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsSpace(r):
			special = true
		}
	}

	var violations []string
	if length < p.MinLength {
		violations = append(violations, fmt.Sprintf("min_length_%d", p.MinLength))
	}
	if p.RequireUpper && !upper {
		violations = append(violations, "uppercase")
	}
	if p.RequireDigit && !digit {
		violations = append(violations, "digit")
	}
	if p.RequireSpecial && !special {
		violations = append(violations, "special")
	}
	if len(violations) > 0 {
		return &PolicyError{Violations: violations}
	}
	return nil
}
