package apperrors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestServiceError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *ServiceError
		want string
	}{
		{
			name: "without underlying error",
			err:  New(ErrCodeEmptyMessage, "message is empty", http.StatusBadRequest),
			want: "[VAL_1001] message is empty",
		},
		{
			name: "with underlying error",
			err:  Wrap(ErrCodeInternal, "boom", http.StatusInternalServerError, errors.New("underlying")),
			want: "[SVC_5001] boom: underlying",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestServiceError_Unwrap(t *testing.T) {
	underlying := errors.New("underlying")
	err := Wrap(ErrCodeInternal, "test", http.StatusInternalServerError, underlying)
	require.ErrorIs(t, err.Unwrap(), underlying)
	require.True(t, errors.Is(err, underlying))
}

func TestServiceError_WithDetails(t *testing.T) {
	err := UnmappedField("custom.nope")
	require.Equal(t, "custom.nope", err.Details["field"])
}

func TestIsServiceErrorAndCode(t *testing.T) {
	err := MessageTooLarge(20000, 10000)
	require.True(t, IsServiceError(err))
	require.Equal(t, ErrCodeMessageTooLarge, Code(err))
	require.Equal(t, http.StatusBadRequest, HTTPStatus(err))

	require.False(t, IsServiceError(errors.New("plain")))
	require.Equal(t, ErrorCode(""), Code(errors.New("plain")))
	require.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("plain")))
}
