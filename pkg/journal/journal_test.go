package journal

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_SigningRecord(t *testing.T) {
	t.Run("Should assign a unique id and timestamp", func(t *testing.T) {
		a := NewSigningRecord()
		b := NewSigningRecord()
		assert.NotEqual(t, a.RecordID, b.RecordID)
		_, err := uuid.Parse(a.RecordID)
		require.NoError(t, err)
		assert.NotZero(t, a.Timestamp)
		assert.True(t, a.Succeeded())
	})

	t.Run("Should round trip through json", func(t *testing.T) {
		r := NewSigningRecord()
		r.RequestID = 7
		r.Method = "eth_sendTransaction"
		r.ErrorKind = "build_transaction"
		r.Error = "build_transaction: missing required field: missing nonce"

		data, err := MarshalSigningRecord(r)
		require.NoError(t, err)
		loaded, err := UnmarshalSigningRecord(data)
		require.NoError(t, err)
		assert.Equal(t, r, loaded)
		assert.False(t, loaded.Succeeded())
	})

	t.Run("Should reject invalid input", func(t *testing.T) {
		_, err := MarshalSigningRecord(nil)
		require.Error(t, err)
		_, err = UnmarshalSigningRecord(nil)
		require.Error(t, err)
		require.Error(t, ValidateRecord(nil))
		require.Error(t, ValidateRecord(&SigningRecord{}))
	})
}
