package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	err := New(CodeInvalidArgument, "limit must be non-negative")
	assert.Equal(t, "INVALID_ARGUMENT: limit must be non-negative", err.Error())
}

func TestError_WrapsCause(t *testing.T) {
	cause := errors.New("UNIQUE constraint failed: users.email")
	err := Wrap(CodeConstraintViolation, "insert users", cause)

	require.NotNil(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "CONSTRAINT_VIOLATION")
	assert.Contains(t, err.Error(), cause.Error())
}

func TestWrap_NilCause(t *testing.T) {
	// Must be a true nil interface, not a typed-nil *Error that reads as
	// non-nil once assigned to an error variable.
	err := Wrap(CodeInternal, "noop", nil)
	assert.True(t, err == nil)
}

func TestPredicates_MatchWrappedErrors(t *testing.T) {
	inner := New(CodeQueryExecuted, "query already executed")
	outer := fmt.Errorf("terminal call: %w", inner)

	assert.True(t, IsQueryExecuted(outer))
	assert.False(t, IsTransactionState(outer))
}

func TestPredicates_Table(t *testing.T) {
	cases := []struct {
		code Code
		pred func(error) bool
	}{
		{CodeTableNotFound, IsTableNotFound},
		{CodeInvalidOperator, IsInvalidOperator},
		{CodeInvalidArgument, IsInvalidArgument},
		{CodeUnsupportedOperation, IsUnsupportedOperation},
		{CodeTransactionState, IsTransactionState},
		{CodeQueryExecuted, IsQueryExecuted},
		{CodeConstraintViolation, IsConstraintViolation},
	}

	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.True(t, tc.pred(New(tc.code, "x")))
			assert.False(t, tc.pred(errors.New("plain")))
		})
	}
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, CodeInvalidOperator, CodeOf(New(CodeInvalidOperator, "x")))
	assert.Equal(t, CodeInternal, CodeOf(errors.New("plain")))
}
