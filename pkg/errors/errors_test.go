// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Pharos Contributors

package errors_test

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	pharoserr "github.com/pharos-dev/pharos/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// New / Errorf
// ---------------------------------------------------------------------------

func TestNewIncludesCodeAndFields(t *testing.T) {
	err := pharoserr.New(
		pharoserr.CodeConfigValidateInvalidValue,
		"invalid monitor configuration",
		pharoserr.FieldProvider("openai"),
		pharoserr.Field("interval", "300s"),
	)

	require.Error(t, err)
	assert.Equal(t, pharoserr.CodeConfigValidateInvalidValue, pharoserr.CodeOf(err))
	assert.True(t, pharoserr.HasCode(err, pharoserr.CodeConfigValidateInvalidValue))

	fields := pharoserr.FieldsOf(err)
	assert.Equal(t, "openai", fields["provider"])
	assert.Equal(t, "300s", fields["interval"])
}

func TestNewWithNoFields(t *testing.T) {
	err := pharoserr.New(pharoserr.CodeStoreDatabaseFailure, "connection lost")
	require.Error(t, err)
	assert.Equal(t, pharoserr.CodeStoreDatabaseFailure, pharoserr.CodeOf(err))
	assert.Contains(t, err.Error(), "connection lost")
}

func TestErrorfFormatsMessage(t *testing.T) {
	err := pharoserr.Errorf(pharoserr.CodeMonitorProbeUpstreamFailure, "probing %s/%s: status %d", "openai", "gpt-4o", 502)
	require.Error(t, err)
	assert.Equal(t, pharoserr.CodeMonitorProbeUpstreamFailure, pharoserr.CodeOf(err))
	assert.Contains(t, err.Error(), "probing openai/gpt-4o: status 502")
}

func TestErrorfWrapsInnerError(t *testing.T) {
	inner := stderrors.New("disk full")
	err := pharoserr.Errorf(pharoserr.CodeStoreDatabaseFailure, "write failed: %w", inner)
	require.Error(t, err)
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, pharoserr.CodeStoreDatabaseFailure, pharoserr.CodeOf(err))
}

// ---------------------------------------------------------------------------
// Wrap / Wrapf
// ---------------------------------------------------------------------------

func TestWrapPreservesWrappedErrorAndCode(t *testing.T) {
	root := stderrors.New("record missing")
	err := pharoserr.Wrap(
		root,
		pharoserr.CodeStoreHealthGetNotFound,
		"loading health record",
		pharoserr.FieldModel("gpt-4o"),
	)

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, pharoserr.CodeStoreHealthGetNotFound, pharoserr.CodeOf(err))
	assert.True(t, pharoserr.IsNotFound(err))
	assert.Equal(t, "gpt-4o", pharoserr.FieldsOf(err)["model"])
}

func TestWrapNilReturnsNil(t *testing.T) {
	assert.NoError(t, pharoserr.Wrap(nil, pharoserr.CodeServerInternalFailure, "ignored"))
}

func TestWrapfNilReturnsNil(t *testing.T) {
	assert.NoError(t, pharoserr.Wrapf(nil, pharoserr.CodeServerInternalFailure, "ignored %s", "arg"))
}

func TestWrapfFormatsAndPreservesChain(t *testing.T) {
	root := stderrors.New("timeout")
	err := pharoserr.Wrapf(root, pharoserr.CodeMonitorProbeUpstreamFailure, "probing %s model %s", "anthropic", "claude")

	require.Error(t, err)
	assert.ErrorIs(t, err, root)
	assert.Equal(t, pharoserr.CodeMonitorProbeUpstreamFailure, pharoserr.CodeOf(err))
	assert.Contains(t, err.Error(), "probing anthropic model claude")
}

func TestWrapWithFields(t *testing.T) {
	root := stderrors.New("denied")
	err := pharoserr.Wrap(root, pharoserr.CodeServerAuthForbidden, "admin token check",
		pharoserr.FieldGateway("openrouter"),
		pharoserr.FieldIncidentID("inc-1"),
	)

	fields := pharoserr.FieldsOf(err)
	assert.Equal(t, "openrouter", fields["gateway"])
	assert.Equal(t, "inc-1", fields["incident_id"])
}

// ---------------------------------------------------------------------------
// With
// ---------------------------------------------------------------------------

func TestWithAddsContextWithoutChangingCode(t *testing.T) {
	base := pharoserr.New(pharoserr.CodeMonitorProbeTimeout, "probe deadline exceeded")
	withCtx := pharoserr.With(base, pharoserr.FieldProvider("groq"))

	require.Error(t, withCtx)
	assert.Equal(t, pharoserr.CodeMonitorProbeTimeout, pharoserr.CodeOf(withCtx))
	assert.Equal(t, "groq", pharoserr.FieldsOf(withCtx)["provider"])
}

func TestWithNilReturnsNil(t *testing.T) {
	assert.NoError(t, pharoserr.With(nil, pharoserr.FieldProvider("x")))
}

func TestWithOnPlainErrorDefaultsToInternalCode(t *testing.T) {
	plain := stderrors.New("something broke")
	enriched := pharoserr.With(plain, pharoserr.FieldModel("m-1"))

	require.Error(t, enriched)
	assert.Equal(t, pharoserr.CodeServerInternalFailure, pharoserr.CodeOf(enriched))
	assert.Equal(t, "m-1", pharoserr.FieldsOf(enriched)["model"])
}

// ---------------------------------------------------------------------------
// HasCode
// ---------------------------------------------------------------------------

func TestHasCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code pharoserr.Code
		want bool
	}{
		{
			name: "matching code",
			err:  pharoserr.New(pharoserr.CodeServerEntityNotFound, "gone"),
			code: pharoserr.CodeServerEntityNotFound,
			want: true,
		},
		{
			name: "non-matching code",
			err:  pharoserr.New(pharoserr.CodeServerEntityNotFound, "gone"),
			code: pharoserr.CodeStoreDatabaseFailure,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			code: pharoserr.CodeServerEntityNotFound,
			want: false,
		},
		{
			name: "plain stdlib error has no code",
			err:  stderrors.New("plain"),
			code: pharoserr.CodeServerInternalFailure,
			want: false,
		},
		{
			name: "wrapped coded error returns innermost code",
			err: pharoserr.Wrap(
				pharoserr.New(pharoserr.CodeStoreDatabaseFailure, "inner"),
				pharoserr.CodeServerInternalFailure, "outer",
			),
			code: pharoserr.CodeStoreDatabaseFailure,
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, pharoserr.HasCode(tt.err, tt.code))
		})
	}
}

// ---------------------------------------------------------------------------
// CodeOf
// ---------------------------------------------------------------------------

func TestCodeOfNil(t *testing.T) {
	assert.Equal(t, pharoserr.Code(""), pharoserr.CodeOf(nil))
}

func TestCodeOfPlainError(t *testing.T) {
	assert.Equal(t, pharoserr.Code(""), pharoserr.CodeOf(stderrors.New("plain")))
}

func TestCodeOfReturnsInnermostCodedError(t *testing.T) {
	inner := pharoserr.New(pharoserr.CodeStoreDatabaseFailure, "db")
	outer := pharoserr.Wrap(inner, pharoserr.CodeServerInternalFailure, "handler")
	// oops.AsOops walks to the deepest oops error, so CodeOf returns the innermost code.
	assert.Equal(t, pharoserr.CodeStoreDatabaseFailure, pharoserr.CodeOf(outer))
}

// ---------------------------------------------------------------------------
// FieldsOf
// ---------------------------------------------------------------------------

func TestFieldsOfNil(t *testing.T) {
	assert.Nil(t, pharoserr.FieldsOf(nil))
}

func TestFieldsOfPlainError(t *testing.T) {
	assert.Nil(t, pharoserr.FieldsOf(stderrors.New("plain")))
}

// ---------------------------------------------------------------------------
// FieldValue / Field / typed field helpers
// ---------------------------------------------------------------------------

func TestFieldValueCreatesAttr(t *testing.T) {
	attr := pharoserr.FieldValue("key", 42)
	assert.Equal(t, "key", attr.Key)
	assert.Equal(t, 42, attr.Value)
}

func TestFieldAliasMatchesFieldValue(t *testing.T) {
	a := pharoserr.FieldValue("k", "v")
	b := pharoserr.Field("k", "v")
	assert.Equal(t, a, b)
}

func TestTypedFieldHelpers(t *testing.T) {
	tests := []struct {
		name string
		attr pharoserr.Attr
		key  string
		val  string
	}{
		{"provider", pharoserr.FieldProvider("anthropic"), "provider", "anthropic"},
		{"model", pharoserr.FieldModel("claude-sonnet"), "model", "claude-sonnet"},
		{"gateway", pharoserr.FieldGateway("openrouter"), "gateway", "openrouter"},
		{"incident_id", pharoserr.FieldIncidentID("inc-9"), "incident_id", "inc-9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.key, tt.attr.Key)
			assert.Equal(t, tt.val, tt.attr.Value)
		})
	}
}

func TestFieldsWithEmptyKeyAreIgnored(t *testing.T) {
	err := pharoserr.New(pharoserr.CodeStoreDatabaseFailure, "oops",
		pharoserr.Field("", "should-be-dropped"),
		pharoserr.FieldProvider("kept"),
	)
	fields := pharoserr.FieldsOf(err)
	assert.Equal(t, "kept", fields["provider"])
	assert.NotContains(t, fields, "")
}

// ---------------------------------------------------------------------------
// errors.Is / errors.As unwrapping
// ---------------------------------------------------------------------------

func TestErrorIsWithWrappedChain(t *testing.T) {
	sentinel := stderrors.New("root cause")
	mid := fmt.Errorf("mid: %w", sentinel)
	outer := pharoserr.Wrap(mid, pharoserr.CodeServerInternalFailure, "handler")

	assert.ErrorIs(t, outer, sentinel)
}

func TestErrorIsWithMultiWrap(t *testing.T) {
	sentinel := stderrors.New("original")
	first := pharoserr.Wrap(sentinel, pharoserr.CodeStoreDatabaseFailure, "layer 1")
	second := pharoserr.Wrap(first, pharoserr.CodeServerInternalFailure, "layer 2")

	assert.ErrorIs(t, second, sentinel)
	// CodeOf returns the innermost coded error (first wrap layer).
	assert.Equal(t, pharoserr.CodeStoreDatabaseFailure, pharoserr.CodeOf(second))
}

// ---------------------------------------------------------------------------
// Classification helpers
// ---------------------------------------------------------------------------

func TestClassificationAndStatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		code   pharoserr.Code
		status int
		check  func(error) bool
	}{
		{name: "health not found", code: pharoserr.CodeStoreHealthGetNotFound, status: 404, check: pharoserr.IsNotFound},
		{name: "incident not found", code: pharoserr.CodeStoreIncidentGetNotFound, status: 404, check: pharoserr.IsNotFound},
		{name: "server entity not found", code: pharoserr.CodeServerEntityNotFound, status: 404, check: pharoserr.IsNotFound},
		{name: "target not found", code: pharoserr.CodeMonitorTargetNotFound, status: 404, check: pharoserr.IsNotFound},
		{name: "claim conflict", code: pharoserr.CodeStoreHealthClaimConflict, status: 409, check: pharoserr.IsConflict},
		{name: "incident open conflict", code: pharoserr.CodeStoreIncidentOpenConflict, status: 409, check: pharoserr.IsConflict},
		{name: "store conflict", code: pharoserr.CodeStoreConflict, status: 409, check: pharoserr.IsConflict},
		{name: "invalid value", code: pharoserr.CodeConfigValidateInvalidValue, status: 400, check: pharoserr.IsInvalidInput},
		{name: "invalid format", code: pharoserr.CodeConfigParseInvalidFormat, status: 400, check: pharoserr.IsInvalidInput},
		{name: "invalid input", code: pharoserr.CodeStoreInvalidInput, status: 400, check: pharoserr.IsInvalidInput},
		{name: "secret ref invalid", code: pharoserr.CodeSecretRefInvalid, status: 400, check: pharoserr.IsInvalidInput},
		{name: "unauthorized", code: pharoserr.CodeServerAuthUnauthorized, status: 401, check: pharoserr.IsUnauthorized},
		{name: "forbidden", code: pharoserr.CodeServerAuthForbidden, status: 403, check: pharoserr.IsUnauthorized},
		{name: "probe rate limited", code: pharoserr.CodeMonitorProbeRateLimited, status: 429, check: pharoserr.IsRateLimited},
		{name: "probe timeout", code: pharoserr.CodeMonitorProbeTimeout, status: 504, check: pharoserr.IsTimeout},
		{name: "admin unavailable", code: pharoserr.CodeServerAdminUnavailable, status: 503, check: pharoserr.IsUnavailable},
		{name: "monitor not running", code: pharoserr.CodeCLIMonitorNotRunning, status: 503, check: pharoserr.IsUnavailable},
		{name: "upstream failure", code: pharoserr.CodeMonitorProbeUpstreamFailure, status: 502, check: pharoserr.IsUpstreamFailure},
		{name: "internal", code: pharoserr.CodeServerInternalFailure, status: 500, check: func(err error) bool { return !pharoserr.IsNotFound(err) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pharoserr.New(tt.code, "boom")
			assert.Equal(t, tt.status, pharoserr.HTTPStatus(err))
			assert.True(t, tt.check(err))
		})
	}
}

func TestClassificationNegativeCases(t *testing.T) {
	err := pharoserr.New(pharoserr.CodeStoreDatabaseFailure, "db error")
	assert.False(t, pharoserr.IsNotFound(err))
	assert.False(t, pharoserr.IsConflict(err))
	assert.False(t, pharoserr.IsInvalidInput(err))
	assert.False(t, pharoserr.IsUnauthorized(err))
	assert.False(t, pharoserr.IsRateLimited(err))
	assert.False(t, pharoserr.IsTimeout(err))
	assert.False(t, pharoserr.IsUnavailable(err))
	assert.False(t, pharoserr.IsUpstreamFailure(err))
}

func TestClassificationOnNilError(t *testing.T) {
	assert.False(t, pharoserr.IsNotFound(nil))
	assert.False(t, pharoserr.IsConflict(nil))
	assert.False(t, pharoserr.IsInvalidInput(nil))
	assert.False(t, pharoserr.IsUnauthorized(nil))
	assert.False(t, pharoserr.IsRateLimited(nil))
	assert.False(t, pharoserr.IsTimeout(nil))
	assert.False(t, pharoserr.IsUnavailable(nil))
	assert.False(t, pharoserr.IsUpstreamFailure(nil))
}

func TestClassificationOnPlainError(t *testing.T) {
	err := stderrors.New("plain")
	assert.False(t, pharoserr.IsNotFound(err))
	assert.False(t, pharoserr.IsConflict(err))
	assert.False(t, pharoserr.IsInvalidInput(err))
	assert.False(t, pharoserr.IsUnauthorized(err))
	assert.False(t, pharoserr.IsRateLimited(err))
	assert.False(t, pharoserr.IsTimeout(err))
	assert.False(t, pharoserr.IsUnavailable(err))
	assert.False(t, pharoserr.IsUpstreamFailure(err))
}

// ---------------------------------------------------------------------------
// HTTPStatus edge cases
// ---------------------------------------------------------------------------

func TestHTTPStatusNilReturnsInternalServerError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, pharoserr.HTTPStatus(nil))
}

func TestHTTPStatusPlainErrorReturnsInternalServerError(t *testing.T) {
	assert.Equal(t, http.StatusInternalServerError, pharoserr.HTTPStatus(stderrors.New("oops")))
}

// ---------------------------------------------------------------------------
// Join
// ---------------------------------------------------------------------------

func TestJoinCombinesErrors(t *testing.T) {
	a := stderrors.New("first")
	b := stderrors.New("second")
	joined := pharoserr.Join(a, b)

	require.Error(t, joined)
	assert.ErrorIs(t, joined, a)
	assert.ErrorIs(t, joined, b)
	assert.Equal(t, pharoserr.CodeServerInternalFailure, pharoserr.CodeOf(joined))
}

// ---------------------------------------------------------------------------
// Nested wrapping preserves innermost code
// ---------------------------------------------------------------------------

func TestNestedWrapInnermostCodePersists(t *testing.T) {
	root := stderrors.New("io error")
	l1 := pharoserr.Wrap(root, pharoserr.CodeStoreDatabaseFailure, "store layer")
	l2 := pharoserr.Wrap(l1, pharoserr.CodeMonitorSweepFailure, "monitor layer")
	l3 := pharoserr.Wrap(l2, pharoserr.CodeServerInternalFailure, "server layer")

	// oops walks to the deepest coded error, so CodeOf returns the first code set.
	assert.Equal(t, pharoserr.CodeStoreDatabaseFailure, pharoserr.CodeOf(l3))
	assert.ErrorIs(t, l3, root)
}

// ---------------------------------------------------------------------------
// Error message content
// ---------------------------------------------------------------------------

func TestWrapMessageIncludesContext(t *testing.T) {
	root := stderrors.New("EOF")
	err := pharoserr.Wrap(root, pharoserr.CodeStoreDatabaseFailure, "reading rows")

	msg := err.Error()
	assert.Contains(t, msg, "reading rows")
	assert.Contains(t, msg, "EOF")
}

func TestNewMessageContent(t *testing.T) {
	err := pharoserr.New(pharoserr.CodeMonitorSweepFailure, "retention sweep aborted")
	assert.Contains(t, err.Error(), "retention sweep aborted")
}
