package validation

import "strings"

const (
	minPasswordLength    = 8
	maxPasswordBytes     = 72 // bcrypt input limit
	strongPasswordLength = 12
	minStrengthScore     = 5
	specialChars         = "@$!%*?&#"
)

// Strength is the password strength assessment.
type Strength struct {
	Score    int
	Strong   bool
	Feedback []string
}

type charClasses struct {
	lower, upper, digit, special bool
}

func classify(s string) charClasses {
	var c charClasses
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
			c.lower = true
		case r >= 'A' && r <= 'Z':
			c.upper = true
		case r >= '0' && r <= '9':
			c.digit = true
		case strings.ContainsRune(specialChars, r):
			c.special = true
		}
	}
	return c
}

// CheckPasswordStrength scores length and character-class diversity. One
// point each for >= 8 chars, >= 12 chars, lowercase, uppercase, digit and
// special character; a score of 5 or more is strong.
func CheckPasswordStrength(password string) Strength {
	c := classify(password)
	var s Strength

	if len(password) >= minPasswordLength {
		s.Score++
	}
	if len(password) >= strongPasswordLength {
		s.Score++
	}
	for _, ok := range []bool{c.lower, c.upper, c.digit, c.special} {
		if ok {
			s.Score++
		}
	}

	if len(password) < minPasswordLength {
		s.Feedback = append(s.Feedback, "Password must be at least 8 characters")
	}
	if !c.lower {
		s.Feedback = append(s.Feedback, "Include at least one lowercase letter")
	}
	if !c.upper {
		s.Feedback = append(s.Feedback, "Include at least one uppercase letter")
	}
	if !c.digit {
		s.Feedback = append(s.Feedback, "Include at least one number")
	}
	if !c.special {
		s.Feedback = append(s.Feedback, "Include at least one special character")
	}

	s.Strong = s.Score >= minStrengthScore
	return s
}

// passwordFormatOK is the whitelist format rule: only allowed characters,
// 8 to 72 bytes of them, and every character class present.
func passwordFormatOK(password string) bool {
	if len(password) > maxPasswordBytes {
		return false
	}
	if !patterns["passwordchars"].MatchString(password) {
		return false
	}
	c := classify(password)
	return c.lower && c.upper && c.digit && c.special
}
