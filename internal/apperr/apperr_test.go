package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind_HTTPStatus(t *testing.T) {
	cases := []struct {
		kind Kind
		want int
	}{
		{Validation, http.StatusBadRequest},
		{NotFound, http.StatusNotFound},
		{Conflict, http.StatusConflict},
		{Unauthorized, http.StatusUnauthorized},
		{Forbidden, http.StatusForbidden},
		{ConsentRequired, http.StatusForbidden},
		{Overloaded, http.StatusTooManyRequests},
		{ProviderTransient, http.StatusBadGateway},
		{ProviderFatal, http.StatusBadGateway},
		{Integrity, http.StatusInternalServerError},
		{Internal, http.StatusInternalServerError},
		{Kind("unknown"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(string(tc.kind), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.kind.HTTPStatus())
		})
	}
}

func TestHTTPStatus_NonAppError_DefaultsInternal(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestHTTPStatus_WrappedAppError_UsesItsKind(t *testing.T) {
	base := New(NotFound, "job_not_found", "no such job")
	wrapped := fmt.Errorf("loading job: %w", base)
	assert.Equal(t, http.StatusNotFound, HTTPStatus(wrapped))
}

func TestAs_FindsWrappedError(t *testing.T) {
	base := Conflictf("duplicate_booking", "slot %s already booked", "slot-1")
	wrapped := fmt.Errorf("booking: %w", base)

	found, ok := As(wrapped)
	require.True(t, ok)
	assert.Equal(t, Conflict, found.Kind)
	assert.Equal(t, "duplicate_booking", found.Code)
}

func TestAs_NotAnAppError(t *testing.T) {
	_, ok := As(errors.New("plain"))
	assert.False(t, ok)
}

func TestKindOf_DefaultsInternalForPlainError(t *testing.T) {
	assert.Equal(t, Internal, KindOf(errors.New("plain")))
}

func TestKindOf_ReturnsWrappedKind(t *testing.T) {
	assert.Equal(t, Validation, KindOf(Validationf("phone", "invalid format")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, New(ProviderTransient, "timeout", "upstream timed out").Retryable())
	assert.False(t, New(ProviderFatal, "rejected", "upstream rejected").Retryable())
	assert.False(t, New(Internal, "bug", "unexpected").Retryable())
}

func TestError_MessageIncludesFieldWhenSet(t *testing.T) {
	withField := Validationf("phone", "must be E.164")
	assert.Contains(t, withField.Error(), "field=phone")

	withoutField := NotFoundf("job_not_found", "no such job")
	assert.NotContains(t, withoutField.Error(), "field=")
}

func TestWrap_PreservesCauseForUnwrap(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	wrapped := Wrap(ProviderTransient, "upstream_unreachable", "openai call failed", cause)

	assert.ErrorIs(t, wrapped, cause)
	assert.Equal(t, cause, wrapped.Unwrap())
}
