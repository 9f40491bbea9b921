// Package journalTest holds behaviour shared by every journal backend's tests.
package journalTest

import (
	"fmt"
	"sync"
	"testing"

	"github.com/Layr-Labs/eigenx-remote-signer/pkg/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record(requestID uint64, timestamp int64) *journal.SigningRecord {
	r := journal.NewSigningRecord()
	r.RequestID = requestID
	r.JSONRPC = "2.0"
	r.Method = "eth_sendTransaction"
	r.Backend = "private_key"
	r.Signer = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	r.TxKind = "dynamic_fee"
	r.TxHash = fmt.Sprintf("0x%064x", requestID)
	r.Timestamp = timestamp
	return r
}

// RunJournalTests exercises the IJournal contract. newJournal must return an
// empty journal; RunJournalTests closes it.
func RunJournalTests(t *testing.T, newJournal func(t *testing.T) journal.IJournal) {
	t.Run("Should append and load a record", func(t *testing.T) {
		j := newJournal(t)
		defer func() { _ = j.Close() }()

		r := record(1, 1000)
		require.NoError(t, j.Append(r))

		loaded, err := j.Get(r.RecordID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		assert.Equal(t, r, loaded)
	})

	t.Run("Should return nil for unknown records", func(t *testing.T) {
		j := newJournal(t)
		defer func() { _ = j.Close() }()

		loaded, err := j.Get("does-not-exist")
		require.NoError(t, err)
		assert.Nil(t, loaded)
	})

	t.Run("Should reject invalid records", func(t *testing.T) {
		j := newJournal(t)
		defer func() { _ = j.Close() }()

		require.Error(t, j.Append(nil))
		require.Error(t, j.Append(&journal.SigningRecord{}))
	})

	t.Run("Should list newest first with a limit", func(t *testing.T) {
		j := newJournal(t)
		defer func() { _ = j.Close() }()

		for i := uint64(1); i <= 5; i++ {
			require.NoError(t, j.Append(record(i, int64(i)*1000)))
		}

		all, err := j.List(0)
		require.NoError(t, err)
		require.Len(t, all, 5)
		assert.Equal(t, uint64(5), all[0].RequestID)
		assert.Equal(t, uint64(1), all[4].RequestID)

		latest, err := j.List(2)
		require.NoError(t, err)
		require.Len(t, latest, 2)
		assert.Equal(t, uint64(5), latest[0].RequestID)
		assert.Equal(t, uint64(4), latest[1].RequestID)
	})

	t.Run("Should overwrite a record with the same id", func(t *testing.T) {
		j := newJournal(t)
		defer func() { _ = j.Close() }()

		r := record(1, 1000)
		require.NoError(t, j.Append(r))
		r.ErrorKind = "signing"
		require.NoError(t, j.Append(r))

		all, err := j.List(0)
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "signing", all[0].ErrorKind)
	})

	t.Run("Should handle concurrent appends", func(t *testing.T) {
		j := newJournal(t)
		defer func() { _ = j.Close() }()

		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, j.Append(record(uint64(i), int64(i+1)*1000)))
			}(i)
		}
		wg.Wait()

		all, err := j.List(0)
		require.NoError(t, err)
		assert.Len(t, all, 20)
	})

	t.Run("Should fail after close", func(t *testing.T) {
		j := newJournal(t)
		require.NoError(t, j.HealthCheck())
		require.NoError(t, j.Close())
		require.NoError(t, j.Close())

		assert.Error(t, j.Append(record(1, 1000)))
		_, err := j.List(0)
		assert.Error(t, err)
		assert.Error(t, j.HealthCheck())
	})
}
