package errors

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryFromCode(t *testing.T) {
	tests := []struct {
		code string
		want Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeFileNotFound, CategoryIO},
		{ErrCodeEmbedFailed, CategoryNetwork},
		{ErrCodeEmptyQuery, CategoryValidation},
		{ErrCodeReconcileFailed, CategoryInternal},
	}

	for _, tt := range tests {
		err := New(tt.code, "message", nil)
		assert.Equal(t, tt.want, err.Category, "code %s", tt.code)
	}
}

func TestError_UnwrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")

	err := New(ErrCodeReconcileFailed, "reconcile failed", cause)

	assert.ErrorIs(t, err, cause)
}

func TestError_IsMatchesByCode(t *testing.T) {
	a := New(ErrCodeEmptyQuery, "one message", nil)
	b := New(ErrCodeEmptyQuery, "another message", nil)

	assert.ErrorIs(t, a, b)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(New(ErrCodeEmptyQuery, "", nil)))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(New(ErrCodeSessionNotFound, "", nil)))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(New(ErrCodeFileNotFound, "", nil)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(New(ErrCodeReconcileFailed, "", nil)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(stderrors.New("plain error")))
}

func TestHTTPStatus_WrappedError(t *testing.T) {
	inner := New(ErrCodeEmptySessionID, "session id missing", nil)
	wrapped := New(ErrCodeInternal, "outer", inner)

	// The outermost structured error decides the status
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(wrapped))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrCodeFileNotFound, "missing", nil).
		WithDetail("filename", "report.pdf")

	assert.Equal(t, "report.pdf", err.Details["filename"])
}
