package jobx

import (
	"context"
	"errors"
	"strings"

	"github.com/Abraxas-365/remodel/pkg/errx"
)

// Class is the retry classification of a handler error.
type Class int

const (
	ClassRetriable Class = iota
	ClassPermanent
)

func (c Class) String() string {
	if c == ClassPermanent {
		return "permanent"
	}
	return "retriable"
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as unrecoverable: the job fails without further attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// permanentVocabulary holds message fragments that providers use for
// failures no retry can fix. Matching is case-insensitive.
var permanentVocabulary = []string{
	"invalid address",
	"illegal address",
	"invalid email",
	"validation",
	"missing required",
	"malformed",
	"invalid api key",
	"incorrect api key",
	"unauthorized",
}

// Classify decides whether err may succeed if the job runs again.
func Classify(err error) Class {
	if err == nil {
		return ClassRetriable
	}

	var pe *permanentError
	if errors.As(err, &pe) {
		return ClassPermanent
	}
	if errx.HasCode(err, ErrInvalidPayload) {
		return ClassPermanent
	}
	if t, ok := errx.TypeOf(err); ok && t.Terminal() {
		return ClassPermanent
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassRetriable
	}

	msg := strings.ToLower(err.Error())
	for _, fragment := range permanentVocabulary {
		if strings.Contains(msg, fragment) {
			return ClassPermanent
		}
	}
	return ClassRetriable
}

// IsPermanent reports whether Classify(err) is ClassPermanent.
func IsPermanent(err error) bool {
	return Classify(err) == ClassPermanent
}
