package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap_PreservesExistingCode(t *testing.T) {
	inner := New(CodeOrderingViolation, "event arrived behind the projection")
	wrapped := Wrap(inner, CodeInternal, "apply failed")

	assert.Equal(t, CodeOrderingViolation, CodeOf(wrapped))
	assert.True(t, HasCode(wrapped, CodeOrderingViolation))
	assert.False(t, HasCode(wrapped, CodeInternal))
}

func TestWrap_AssignsCodeToPlainError(t *testing.T) {
	plain := errors.New("connection refused")
	wrapped := Wrap(plain, CodeExternalAPI, "platform call failed")

	assert.Equal(t, CodeExternalAPI, CodeOf(wrapped))
	assert.ErrorIs(t, wrapped, plain)
}

func TestWrap_SurvivesFurtherWrapping(t *testing.T) {
	inner := New(CodeValidation, "entity_id cannot be empty")
	wrapped := fmt.Errorf("ingest: %w", inner)

	assert.True(t, HasCode(wrapped, CodeValidation))
	assert.Equal(t, CodeValidation, CodeOf(wrapped))
}

func TestCodeOf_NonDomainError(t *testing.T) {
	assert.Equal(t, CodeInternal, CodeOf(errors.New("boom")))
}

func TestError_Message(t *testing.T) {
	withMsg := New(CodeNotFound, "event 7 not found")
	assert.Equal(t, "event 7 not found", withMsg.Error())

	bare := &Error{Code: CodeConflict}
	assert.Equal(t, "conflict", bare.Error())
}

func TestNewWithDetails_CarriesContext(t *testing.T) {
	err := NewWithDetails(CodeTenantIsolation, "tenant mismatch",
		map[string]any{"request_tenant": 1, "record_tenant": 2})

	var de *Error
	require.ErrorAs(t, err, &de)
	assert.Equal(t, 1, de.Details["request_tenant"])
	assert.Equal(t, 2, de.Details["record_tenant"])
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeDuplicateEvent:    http.StatusOK,
		CodeValidation:        http.StatusBadRequest,
		CodeInvalidInput:      http.StatusBadRequest,
		CodeUnauthorized:      http.StatusUnauthorized,
		CodeInvalidToken:      http.StatusUnauthorized,
		CodeTokenExpired:      http.StatusUnauthorized,
		CodeForbidden:         http.StatusForbidden,
		CodeTenantIsolation:   http.StatusForbidden,
		CodeNotFound:          http.StatusNotFound,
		CodeConflict:          http.StatusConflict,
		CodeOrderingViolation: http.StatusConflict,
		CodeInvariant:         http.StatusConflict,
		CodeRateLimited:       http.StatusTooManyRequests,
		CodeExternalAPI:       http.StatusBadGateway,
		CodeTimeout:           http.StatusGatewayTimeout,
		CodeInternal:          http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(New(code, "x")), "code %s", code)
	}

	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}
