package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewAppError_StatusMapping(t *testing.T) {
	cases := map[ErrorType]int{
		ErrorTypeValidation:     http.StatusBadRequest,
		ErrorTypeAuthentication: http.StatusUnauthorized,
		ErrorTypeAuthorization:  http.StatusForbidden,
		ErrorTypeNotFound:       http.StatusNotFound,
		ErrorTypeConflict:       http.StatusConflict,
		ErrorTypeRateLimit:      http.StatusTooManyRequests,
		ErrorTypeExternal:       http.StatusBadGateway,
		ErrorTypeNotImplemented: http.StatusNotImplemented,
		ErrorTypeInternal:       http.StatusInternalServerError,
	}
	for errType, status := range cases {
		assert.Equal(t, status, NewAppError(errType, "X", "msg", nil).StatusCode, errType)
	}
}

func TestAppError_UnwrapAndIs(t *testing.T) {
	cause := stderrors.New("disk full")
	err := fmt.Errorf("saving: %w", NewInternalError("save failed", cause))

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, NewInternalError("other message", nil), "same type and code compare equal")
	assert.Contains(t, err.Error(), "caused by: disk full")
}

func TestAs_WrapsUnknownErrors(t *testing.T) {
	appErr := As(stderrors.New("boom"))
	assert.Equal(t, ErrorTypeInternal, appErr.Type)
	assert.Equal(t, http.StatusInternalServerError, appErr.StatusCode)

	nf := NewNotFoundError("Citation")
	assert.Same(t, nf, As(fmt.Errorf("lookup: %w", nf)))
}

func TestNewInvalidChoiceError_NamesAllowedSet(t *testing.T) {
	err := NewInvalidChoiceError("format", "exe", []string{"pdf", "json"})
	assert.Equal(t, http.StatusBadRequest, err.StatusCode)
	assert.Contains(t, err.Message, "pdf")
	assert.Contains(t, err.Message, "json")
	assert.Equal(t, []string{"pdf", "json"}, err.Details["allowed"])
}

func TestErrorHandler_Handle(t *testing.T) {
	handler := NewErrorHandler(zap.NewNop())
	rr := httptest.NewRecorder()

	handler.Handle(rr, NewNotFoundError("Framework session"))

	require.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp APIResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "RESOURCE_NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "Framework session not found", resp.Error.Message)
}

func TestSendSuccessStatus(t *testing.T) {
	rr := httptest.NewRecorder()
	SendSuccessStatus(rr, http.StatusCreated, map[string]string{"id": "abc"})

	assert.Equal(t, http.StatusCreated, rr.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "abc", resp["data"].(map[string]interface{})["id"])
}
