package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasCode(t *testing.T) {
	t.Run("finds code on wrapped chain", func(t *testing.T) {
		inner := New(CodeNotFound, "user missing")
		outer := Wrap(inner, CodeInternal, "lookup failed")

		assert.True(t, HasCode(outer, CodeInternal))
		assert.True(t, HasCode(outer, CodeNotFound))
		assert.False(t, HasCode(outer, CodeForbidden))
	})

	t.Run("plain errors carry no code", func(t *testing.T) {
		assert.False(t, HasCode(errors.New("boom"), CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
	})

	t.Run("fmt wrapping keeps code reachable", func(t *testing.T) {
		err := fmt.Errorf("context: %w", New(CodeConflict, "dup"))
		assert.True(t, Is(err, CodeConflict))
	})
}

func TestErrorsIsMatchesCodeAndMessage(t *testing.T) {
	err := Wrap(errors.New("cause"), CodeForbidden, "initiator has to be verified")

	require.ErrorIs(t, err, New(CodeForbidden, "initiator has to be verified"))
	assert.NotErrorIs(t, err, New(CodeForbidden, "something else"))
	assert.Equal(t, "initiator has to be verified: cause", err.Error())
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeBadRequest:         http.StatusBadRequest,
		CodeForbidden:          http.StatusForbidden,
		CodeNotFound:           http.StatusNotFound,
		CodeConflict:           http.StatusConflict,
		CodeInvariantViolation: http.StatusInternalServerError,
	}
	for code, status := range cases {
		assert.Equal(t, status, ToHTTPStatus(code), code)
	}
}
