package password

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Rule names reported by PolicyError.
const (
	RuleMinLength = "min_length"
	RuleMaxLength = "max_length"
	RuleUpper     = "upper"
	RuleLower     = "lower"
	RuleDigit     = "digit"
	RuleSymbol    = "symbol"
)

// Policy is the complexity policy applied to new secrets at registration,
// password change, and password reset.
type Policy struct {
	MinLength     int
	MaxLength     int
	RequireUpper  bool
	RequireLower  bool
	RequireDigit  bool
	RequireSymbol bool
}

// DefaultPolicy requires at least 8 characters with upper, lower, digit and
// symbol classes present.
func DefaultPolicy() Policy {
	return Policy{
		MinLength:     8,
		MaxLength:     256,
		RequireUpper:  true,
		RequireLower:  true,
		RequireDigit:  true,
		RequireSymbol: true,
	}
}

// PolicyError lists every rule a secret failed.
type PolicyError struct {
	Failed []string
}

func (e *PolicyError) Error() string {
	return "password does not satisfy policy: " + strings.Join(e.Failed, ", ")
}

// Check validates secret against p. Length is counted in runes.
func (p Policy) Check(secret string) error {
	var failed []string

	n := utf8.RuneCountInString(secret)
	if n < p.MinLength {
		failed = append(failed, RuleMinLength)
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		failed = append(failed, RuleMaxLength)
	}

	var upper, lower, digit, symbol bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			symbol = true
		}
	}

	if p.RequireUpper && !upper {
		failed = append(failed, RuleUpper)
	}
	if p.RequireLower && !lower {
		failed = append(failed, RuleLower)
	}
	if p.RequireDigit && !digit {
		failed = append(failed, RuleDigit)
	}
	if p.RequireSymbol && !symbol {
		failed = append(failed, RuleSymbol)
	}

	if len(failed) > 0 {
		return &PolicyError{Failed: failed}
	}
	return nil
}
