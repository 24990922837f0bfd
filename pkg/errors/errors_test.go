package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorIncludesCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := NewTransferError("failed to upload blob", cause)

	assert.Equal(t, "TRANSFER_ERROR: failed to upload blob (connection reset)", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus)
}

func TestFromError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, FromError(nil))
	})

	t.Run("wrapped AppError is preserved", func(t *testing.T) {
		listing := NewListingError("failed to list blobs", stderrors.New("boom"))
		wrapped := fmt.Errorf("photos: %w", listing)

		assert.Same(t, listing, FromError(wrapped))
	})

	t.Run("context cancellation becomes CANCELLED", func(t *testing.T) {
		appErr := FromError(context.Canceled)

		require.NotNil(t, appErr)
		assert.Equal(t, ErrorCodeCancelled, appErr.Code)
		assert.Equal(t, StatusClientClosedRequest, appErr.HTTPStatus)
	})

	t.Run("unknown error becomes internal", func(t *testing.T) {
		appErr := FromError(stderrors.New("unexpected"))

		assert.Equal(t, ErrorCodeInternal, appErr.Code)
		assert.Equal(t, http.StatusInternalServerError, appErr.HTTPStatus)
	})
}

func TestHasCode(t *testing.T) {
	inner := NewCancelledError("listing cancelled", context.Canceled)
	outer := NewListingError("photos", inner)

	assert.True(t, HasCode(outer, ErrorCodeListing))
	assert.True(t, HasCode(outer, ErrorCodeCancelled))
	assert.False(t, HasCode(outer, ErrorCodeTransfer))
	assert.False(t, HasCode(stderrors.New("plain"), ErrorCodeTransfer))
	assert.True(t, IsCancelled(fmt.Errorf("wrapped: %w", inner)))
}

func TestToHTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrorCodeValidation:      http.StatusBadRequest,
		ErrorCodeNotFound:        http.StatusNotFound,
		ErrorCodeTransfer:        http.StatusBadGateway,
		ErrorCodeListing:         http.StatusBadGateway,
		ErrorCodeCancelled:       StatusClientClosedRequest,
		ErrorCodeConfiguration:   http.StatusInternalServerError,
		ErrorCodeTooManyRequests: http.StatusTooManyRequests,
		ErrorCodePayloadTooLarge: http.StatusRequestEntityTooLarge,
	}
	for code, want := range cases {
		assert.Equal(t, want, ToHTTPStatus(code), code)
	}
}

func TestWithHTTPStatus(t *testing.T) {
	err := NewTransferError("container does not exist", nil).WithHTTPStatus(http.StatusNotFound)

	assert.Equal(t, http.StatusNotFound, err.HTTPStatus)
	assert.Equal(t, ErrorCodeTransfer, err.ToErrorResponse().Code)
}
