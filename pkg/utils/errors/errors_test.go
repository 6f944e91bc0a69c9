/*
Copyright IBM Corp All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package errors

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type typedErr struct{ msg string }

func (e *typedErr) Error() string { return e.msg }

func TestWrapfSimpleNesting(t *testing.T) {
	nestedErr := errors.New("nested err")
	err := errors.Wrapf(nestedErr, "some error")
	assert.True(t, HasCause(err, nestedErr))
}

func TestWrapfDoubleNesting(t *testing.T) {
	nestedErr := errors.New("nested err")
	err := errors.Wrapf(errors.Wrapf(nestedErr, "some error"), "other error")
	assert.True(t, HasCause(err, nestedErr))
}

func TestWithMessagefKeepsCause(t *testing.T) {
	nestedErr := New("nested err")
	err := WithMessagef(Wrap(nestedErr, "inner"), "outer [%d]", 1)
	assert.True(t, Is(err, nestedErr))
	assert.Equal(t, "outer [1]: inner: nested err", err.Error())
}

func TestHasType(t *testing.T) {
	err := Wrapf(&typedErr{msg: "typed"}, "wrapped")
	var target *typedErr
	assert.True(t, As(err, &target))
	assert.Equal(t, "typed", target.msg)
	assert.False(t, HasCause(nil, err))
}

func TestJoin(t *testing.T) {
	a, b := New("a"), New("b")
	err := Join(a, nil, b)
	assert.True(t, Is(err, a))
	assert.True(t, Is(err, b))
	assert.Nil(t, Join(nil, nil))
}
