package signingError

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Error(t *testing.T) {
	t.Run("Should match reason sentinel with errors.Is", func(t *testing.T) {
		err := BackendResolution(ErrKeystoreDecryption, "", errors.New("could not decrypt key with given password"))
		assert.True(t, errors.Is(err, ErrKeystoreDecryption))
		assert.False(t, errors.Is(err, ErrInvalidMnemonic))
	})

	t.Run("Should match kind through wrapping", func(t *testing.T) {
		err := fmt.Errorf("resolving: %w", BackendResolution(ErrKmsAuthorization, "", nil))
		assert.Equal(t, KindBackendResolution, KindOf(err))
		assert.True(t, errors.Is(err, &Error{Kind: KindBackendResolution}))
		assert.True(t, errors.Is(err, &Error{Kind: KindBackendResolution, Reason: ErrKmsAuthorization}))
		assert.False(t, errors.Is(err, &Error{Kind: KindBackendResolution, Reason: ErrKmsConnection}))
		assert.False(t, errors.Is(err, &Error{Kind: KindSigning}))
	})

	t.Run("Should render kind, reason and detail", func(t *testing.T) {
		err := BuildTransaction(ErrMissingField, "nonce, gas")
		assert.Equal(t, "build_transaction: missing required field: nonce, gas", err.Error())

		err = InvalidRpcMethod("foo")
		assert.Equal(t, "invalid_rpc_method: invalid rpc method 'foo'", err.Error())
	})

	t.Run("Should return unknown for foreign errors", func(t *testing.T) {
		assert.Equal(t, KindUnknown, KindOf(errors.New("boom")))
		assert.Equal(t, KindUnknown, KindOf(nil))
	})

	t.Run("Should wrap foreign errors as backend resolution only once", func(t *testing.T) {
		wrapped := AsBackendResolution(errors.New("dial tcp: timeout"))
		require.Equal(t, KindBackendResolution, KindOf(wrapped))

		original := Signing(nil, "remote signer", nil)
		assert.Same(t, original, AsBackendResolution(original))
		assert.Nil(t, AsBackendResolution(nil))
	})
}
