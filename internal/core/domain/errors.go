package domain

import (
	"errors"
	"fmt"
)

var (
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnsupportedMedia  = errors.New("unsupported media type")
	ErrFileTooLarge      = errors.New("file too large")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrTemporary         = errors.New("temporary failure")
	ErrExtraction        = errors.New("text extraction failed")
	ErrSuggestion        = errors.New("suggestion generation failed")
	ErrInvalidTransition = errors.New("invalid job transition")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsUploadError reports whether err rejects an upload before a job exists.
func IsUploadError(err error) bool {
	return IsKind(err, ErrInvalidInput) || IsKind(err, ErrUnsupportedMedia) || IsKind(err, ErrFileTooLarge)
}
