package errx

import (
	"errors"
	"strings"
)

// Rule assigns Code to errors whose lowercased message contains any of
// Contains. When Also is set it must be present as well.
type Rule struct {
	Code     *ErrorCode
	Contains []string
	Also     string
}

func (r Rule) matches(msg string) bool {
	if r.Also != "" && !strings.Contains(msg, r.Also) {
		return false
	}
	for _, s := range r.Contains {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// Classify converts err into an *Error of this registry. An err that
// already carries an *Error is returned as that error. Otherwise the first
// matching rule decides the code, and fallback applies when none matches.
func (r *Registry) Classify(err error, fallback *ErrorCode, rules ...Rule) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return existing
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range rules {
		if rule.matches(msg) {
			return r.NewWithCause(rule.Code, err)
		}
	}
	return r.NewWithCause(fallback, err)
}

// Adopt is Classify without rules: err keeps its own code when it has one,
// and gets code otherwise.
func (r *Registry) Adopt(err error, code *ErrorCode) *Error {
	return r.Classify(err, code)
}
