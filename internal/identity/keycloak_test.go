package identity

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Nerzal/gocloak/v13"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type timeoutNetError struct{}

func (timeoutNetError) Error() string   { return "i/o timeout" }
func (timeoutNetError) Timeout() bool   { return true }
func (timeoutNetError) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"deadline exceeded", context.DeadlineExceeded, KindTransient},
		{"wrapped deadline", fmt.Errorf("create: %w", context.DeadlineExceeded), KindTransient},
		{"network timeout", timeoutNetError{}, KindTransient},
		{"conflict", &gocloak.APIError{Code: 409, Message: "user exists"}, KindDuplicate},
		{"bad request", &gocloak.APIError{Code: 400, Message: "invalid email"}, KindInvalidInput},
		{"request timeout", &gocloak.APIError{Code: 408, Message: "request timeout"}, KindTransient},
		{"gateway timeout", &gocloak.APIError{Code: 504, Message: "gateway timeout"}, KindTransient},
		{"server error", &gocloak.APIError{Code: 500, Message: "internal"}, KindUnknown},
		{"timeout in message", errors.New("client Timeout exceeded while awaiting headers"), KindTransient},
		{"anything else", errors.New("connection refused"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			classified := classify(tt.err)
			if tt.err == nil {
				assert.NoError(t, classified)
				return
			}
			assert.Equal(t, tt.want, KindOf(classified))
			// The original error stays reachable through the wrap.
			assert.ErrorContains(t, classified, tt.err.Error())
		})
	}
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, KindUnknown, KindOf(nil))
}

func TestIsTransientThroughWraps(t *testing.T) {
	err := fmt.Errorf("identity creation failed: %w",
		NewError(KindTransient, errors.New("timeout")))
	assert.True(t, IsTransient(err))
	assert.False(t, IsDuplicate(err))
}

func TestIsDuplicate(t *testing.T) {
	err := NewError(KindDuplicate, errors.New("409"))
	require.True(t, IsDuplicate(err))
	assert.False(t, IsTransient(err))
}
