package apierror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("malformed form body")
	err := Wrap(cause, "BAD_REQUEST", "The form could not be read.", http.StatusBadRequest)

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "BAD_REQUEST: The form could not be read.", err.Error())

	var apiErr *APIError
	assert.True(t, errors.As(error(err), &apiErr))
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
}

func TestErrorIncludesDetails(t *testing.T) {
	err := New("SESSION_MISSING", "browser session not available", "cookie", http.StatusInternalServerError)
	assert.Equal(t, "SESSION_MISSING: browser session not available (cookie)", err.Error())

	var nilErr *APIError
	assert.Equal(t, "", nilErr.Error())
}
