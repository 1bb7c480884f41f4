package faults

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindAndRuleIDSurviveWrapping(t *testing.T) {
	base := New(KindPredicate, "BOND-PRED-301", "amount out of range")
	wrapped := fmt.Errorf("release: %w", base)

	assert.True(t, IsKind(wrapped, KindPredicate))
	assert.False(t, IsKind(wrapped, KindPrecondition))
	assert.Equal(t, "BOND-PRED-301", RuleID(wrapped))

	var e *Error
	require.True(t, errors.As(wrapped, &e))
	assert.Equal(t, "amount out of range", e.Message)
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(KindTransport, "CHAIN-NET-001", "oracle unreachable", cause)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "oracle unreachable: connection reset", err.Error())
	assert.True(t, Retryable(err))
}

func TestWrapNilCauseBehavesLikeNew(t *testing.T) {
	err := Wrap(KindMalformed, "ASSERT-DEC-101", "missing pushes", nil)
	var e *Error
	require.True(t, errors.As(err, &e))
	assert.Nil(t, e.Cause)
	assert.False(t, Retryable(err))
}

func TestRuleIDUnknownForPlainErrors(t *testing.T) {
	assert.Equal(t, "", RuleID(errors.New("plain")))
	assert.False(t, IsKind(errors.New("plain"), KindInternal))
}
