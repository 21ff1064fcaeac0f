package common

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_IsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("validate: %w", Newf(KindExpired, "token expired at %d", 42))

	assert.True(t, errors.Is(err, ErrTokenExpired))
	assert.False(t, errors.Is(err, ErrSignatureInvalid))
	assert.Equal(t, KindExpired, KindOf(err))
	assert.Equal(t, "token expired at 42", Message(err))
}

func TestWrap_KeepsCause(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := Wrap(KindStorageUnavailable, "storage unavailable", cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Equal(t, "storage unavailable: dial tcp: connection refused", err.Error())
	assert.Equal(t, "storage unavailable", Message(err))
}

func TestKindOf_Unclassified(t *testing.T) {
	assert.Equal(t, KindUnexpected, KindOf(errors.New("boom")))
	assert.Equal(t, "boom", Message(errors.New("boom")))
}

func TestKind_Predicates(t *testing.T) {
	tests := []struct {
		kind       Kind
		validation bool
		auth       bool
	}{
		{KindValidation, true, false},
		{KindInvalidIdentifier, true, false},
		{KindCheckDigitMismatch, true, false},
		{KindMissingCredential, false, true},
		{KindTokenMismatch, false, true},
		{KindUserNotFound, false, true},
		{KindInitialization, false, false},
		{KindDuplicateTenant, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.validation, tt.kind.IsValidation())
			assert.Equal(t, tt.auth, tt.kind.IsAuthentication())
		})
	}
}
