package errors_test

import (
	stderrors "errors"
	"testing"

	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/stretchr/testify/require"
)

func TestWrapf(t *testing.T) {
	require.NoError(t, apperrors.Wrapf(nil, "ignored"))

	err := apperrors.Wrapf(apperrors.ErrNoRefreshToken, "refresh %s", "attempt")
	require.EqualError(t, err, "refresh attempt: no refresh token")
	require.True(t, apperrors.Is(err, apperrors.ErrNoRefreshToken))
	require.False(t, apperrors.Is(err, apperrors.ErrUnavailable))
}

type statusErr struct{ code int }

func (e *statusErr) Error() string { return "status" }

func TestAs(t *testing.T) {
	err := apperrors.Wrapf(&statusErr{code: 401}, "call")

	var target *statusErr
	require.True(t, apperrors.As(err, &target))
	require.Equal(t, 401, target.code)
	require.False(t, apperrors.As(stderrors.New("plain"), &target))
}
