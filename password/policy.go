package password

import "unicode"

// Violation identifies a single failed policy rule.
type Violation string

const (
	// ViolationTooShort means the password is shorter than the configured minimum.
	ViolationTooShort Violation = "too_short"
	// ViolationMissingUpper means the password has no uppercase letter.
	ViolationMissingUpper Violation = "missing_uppercase"
	// ViolationMissingLower means the password has no lowercase letter.
	ViolationMissingLower Violation = "missing_lowercase"
	// ViolationMissingDigit means the password has no decimal digit.
	ViolationMissingDigit Violation = "missing_digit"
	// ViolationMissingSpecial means the password has no symbol or punctuation rune.
	ViolationMissingSpecial Violation = "missing_special"
)

// Policy describes password composition requirements.
type Policy struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
}

// PolicyResult carries the outcome of a policy check. Violations lists every
// failed rule, not just the first one, so callers can present complete
// feedback in a single round trip.
type PolicyResult struct {
	Valid      bool
	Violations []Violation
}

// Validate checks candidate against the policy in one pass. It is pure and
// has no side effects.
func (p Policy) Validate(candidate string) PolicyResult {
	var (
		hasUpper, hasLower, hasDigit, hasSpecial bool
		length                                   int
	)

	for _, r := range candidate {
		length++
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	var violations []Violation
	if length < p.MinLength {
		violations = append(violations, ViolationTooShort)
	}
	if p.RequireUpper && !hasUpper {
		violations = append(violations, ViolationMissingUpper)
	}
	if p.RequireLower && !hasLower {
		violations = append(violations, ViolationMissingLower)
	}
	if p.RequireDigit && !hasDigit {
		violations = append(violations, ViolationMissingDigit)
	}
	if p.RequireSpecial && !hasSpecial {
		violations = append(violations, ViolationMissingSpecial)
	}

	return PolicyResult{
		Valid:      len(violations) == 0,
		Violations: violations,
	}
}
