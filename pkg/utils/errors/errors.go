/*
Copyright IBM Corp. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package errors

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

// HasType recursively checks errors wrapped using Wrapf until it detects the target error type
func HasType(source, target error) bool {
	return source != nil && target != nil && errors.As(source, &target)
}

// HasCause recursively checks errors wrapped using Wrapf until it detects the target error
func HasCause(source, target error) bool {
	return source != nil && target != nil && errors.Is(source, target)
}

// Wrapf wraps an error in a way compatible with HasCause
func Wrapf(err error, format string, args ...any) error {
	return errors.Wrapf(err, format, args...)
}

// Wrap wraps an error in a way compatible with HasCause
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

// WithMessagef annotates err with a new message without recording a new stack
func WithMessagef(err error, format string, args ...any) error {
	return errors.WithMessagef(err, format, args...)
}

func Errorf(format string, args ...any) error {
	return errors.Errorf(format, args...)
}

func New(message string) error {
	return errors.New(message)
}

func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

// Join returns an error that wraps the given errors, discarding nils
func Join(errs ...error) error { return stderrors.Join(errs...) }
