package uhdrbake

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks user input errors: bad flag combinations, out of range options,
	// missing metadata needed for resolution. The message tells how to fix the call.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAmbiguous marks auto-detection that could not decide between candidates.
	// It always comes together with ErrInvalidInput.
	ErrAmbiguous = errors.New("ambiguous input")

	// ErrMalformed marks corrupt ICC/XMP/MPF/JPEG structures and offset arithmetic overflow.
	ErrMalformed = errors.New("malformed data")
)

type inputError struct {
	msg       string
	ambiguous bool
}

func (e *inputError) Error() string { return e.msg }

func (e *inputError) Is(target error) bool {
	return target == ErrInvalidInput || (e.ambiguous && target == ErrAmbiguous)
}

func inputErrorf(format string, args ...any) error {
	return &inputError{msg: fmt.Sprintf(format, args...)}
}

func ambiguousErrorf(format string, args ...any) error {
	return &inputError{msg: fmt.Sprintf(format, args...), ambiguous: true}
}

func malformedf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrMalformed)
}
