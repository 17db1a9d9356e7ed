package page

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	err := &Error{
		Code:    ErrCodeElementNotFound,
		Message: "Element not found: #missing",
	}
	assert.Equal(t, "Element not found: #missing", err.Error())
}

func TestErrorCodeMatching(t *testing.T) {
	var wrapped error = &Error{Code: ErrCodeTimeout, Message: "Page load timeout"}

	var pageErr *Error
	require.True(t, errors.As(wrapped, &pageErr))
	assert.Equal(t, ErrCodeTimeout, pageErr.Code)
}
