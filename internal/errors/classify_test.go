package errors_test

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/victornm/quizzard/internal/errors"
)

func TestClassify(t *testing.T) {
	tests := map[string]struct {
		err  error
		want errors.Code
	}{
		"coded error keeps its code": {
			err:  errors.New(errors.CodeOffline),
			want: errors.CodeOffline,
		},
		"wrapped coded error keeps its code": {
			err:  fmt.Errorf("login: %w", errors.New(errors.CodeConfiguration)),
			want: errors.CodeConfiguration,
		},
		"invalid grant from token endpoint": {
			err:  &oauth2.RetrieveError{ErrorCode: "invalid_grant"},
			want: errors.CodeTokenExpired,
		},
		"5xx from token endpoint": {
			err:  &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusBadGateway}},
			want: errors.CodeProviderUnavailable,
		},
		"deadline exceeded": {
			err:  fmt.Errorf("exchange: %w", context.DeadlineExceeded),
			want: errors.CodeNetwork,
		},
		"network message": {
			err:  stderrors.New("Failed to fetch"),
			want: errors.CodeNetwork,
		},
		"popup closed": {
			err:  stderrors.New("popup window closed"),
			want: errors.CodeProviderUnavailable,
		},
		"quota exceeded": {
			err:  stderrors.New("QuotaExceededError"),
			want: errors.CodeStorage,
		},
		"something else": {
			err:  stderrors.New("boom"),
			want: errors.CodeUnknown,
		},
	}

	for name, tt := range tests {
		tt := tt
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, errors.Classify(tt.err))
		})
	}
}

func TestConvert(t *testing.T) {
	cause := stderrors.New("you appear to be offline")
	e := errors.Convert(cause)

	require.NotNil(t, e)
	assert.Equal(t, errors.CodeOffline, e.Code)
	assert.Equal(t, errors.Info(errors.CodeOffline).Message, e.Message)
	assert.True(t, e.Retryable())
	assert.NotEmpty(t, e.Hint())
	assert.ErrorIs(t, e, cause)

	assert.Nil(t, errors.Convert(nil))
}

func TestIsPermanentGrant(t *testing.T) {
	assert.True(t, errors.IsPermanentGrant(&oauth2.RetrieveError{ErrorCode: "invalid_grant"}))
	assert.True(t, errors.IsPermanentGrant(stderrors.New("token expired")))
	assert.True(t, errors.IsPermanentGrant(errors.New(errors.CodeTokenExpired)))
	assert.False(t, errors.IsPermanentGrant(&oauth2.RetrieveError{ErrorCode: "temporarily_unavailable"}))
	assert.False(t, errors.IsPermanentGrant(stderrors.New("connection reset")))
	assert.False(t, errors.IsPermanentGrant(nil))
}
