// Package password implements the registration-time password policy.
package password

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

// MinLength is the minimum number of characters in a trimmed password.
const MinLength = 10

// MaxBytes is the longest input bcrypt hashes without truncation.
const MaxBytes = 72

// ErrPolicy is matched by every *Violation.
var ErrPolicy = errors.New("password: policy violation")

// Rule names reported in Violation.Rule.
const (
	RuleLength   = "length"
	RuleCommon   = "common"
	RuleUpper    = "uppercase"
	RuleLower    = "lowercase"
	RuleDigit    = "digit"
	RuleSpecial  = "special"
	RuleMaxBytes = "max_bytes"
)

// Violation reports the first rule a password failed.
type Violation struct {
	Rule    string
	Message string
}

func (v *Violation) Error() string { return v.Message }

// Is lets errors.Is(err, ErrPolicy) match any violation.
func (v *Violation) Is(target error) bool { return target == ErrPolicy }

// Rule is a single predicate in the policy. Check receives the trimmed password.
type Rule struct {
	Name    string
	Message string
	Check   func(pw string) bool
}

var common = func() map[string]struct{} {
	list := []string{
		"password", "password1", "password123",
		"12345678", "123456789", "qwerty123",
		"admin123", "iloveyou", "welcome1",
	}
	set := make(map[string]struct{}, len(list))
	for _, pw := range list {
		set[fold(pw)] = struct{}{}
	}
	return set
}()

// DefaultRules is the policy in evaluation order.
var DefaultRules = []Rule{
	{
		Name:    RuleLength,
		Message: "Password must be at least 10 characters long",
		Check:   func(pw string) bool { return utf8.RuneCountInString(pw) >= MinLength },
	},
	{
		Name:    RuleCommon,
		Message: "Password is too common",
		Check:   notCommon,
	},
	{
		Name:    RuleUpper,
		Message: "Password must contain at least one uppercase letter",
		Check:   containsAny(unicode.IsUpper),
	},
	{
		Name:    RuleLower,
		Message: "Password must contain at least one lowercase letter",
		Check:   containsAny(unicode.IsLower),
	},
	{
		Name:    RuleDigit,
		Message: "Password must contain at least one digit",
		Check:   containsAny(unicode.IsDigit),
	},
	{
		Name:    RuleSpecial,
		Message: "Password must contain at least one special character",
		Check:   containsAny(isSpecial),
	},
}

// Validate checks plaintext against DefaultRules and returns the first
// *Violation, or nil when the password is acceptable. The untrimmed input
// must also fit in MaxBytes since that is what gets hashed.
func Validate(plaintext string) error {
	if err := ValidateRules(plaintext, DefaultRules); err != nil {
		return err
	}
	if len(plaintext) > MaxBytes {
		return &Violation{Rule: RuleMaxBytes, Message: "Password must be at most 72 bytes long"}
	}
	return nil
}

// ValidateRules runs rules in order against the trimmed input.
func ValidateRules(plaintext string, rules []Rule) error {
	pw := strings.TrimSpace(plaintext)
	for _, rule := range rules {
		if !rule.Check(pw) {
			return &Violation{Rule: rule.Name, Message: rule.Message}
		}
	}
	return nil
}

// IsCommon reports whether pw is on the blacklist, ignoring case and
// surrounding whitespace.
func IsCommon(pw string) bool {
	_, ok := common[fold(strings.TrimSpace(pw))]
	return ok
}

// fold builds a fresh Caser per call; Casers are stateful.
func fold(s string) string { return cases.Fold().String(s) }

func notCommon(pw string) bool { return !IsCommon(pw) }

func containsAny(pred func(rune) bool) func(string) bool {
	return func(pw string) bool {
		for _, r := range pw {
			if pred(r) {
				return true
			}
		}
		return false
	}
}

// isSpecial is the complement of the upper, lower and digit classes.
func isSpecial(r rune) bool {
	return !unicode.IsUpper(r) && !unicode.IsLower(r) && !unicode.IsDigit(r)
}
