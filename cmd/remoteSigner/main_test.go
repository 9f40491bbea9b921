package main

import (
	"net"
	"strconv"
	"testing"

	"github.com/Layr-Labs/eigenx-remote-signer/pkg/config"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap/zaptest"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func Test_RunRemoteSigner(t *testing.T) {
	t.Run("Should fail on a missing keystore password without binding", func(t *testing.T) {
		t.Setenv(config.EnvKeystorePassword, "")
		port := freePort(t)

		err := newApp().Run([]string{
			"remote-signer",
			"--type", "keystore",
			"--keystore.path", "/does/not/matter.json",
			"--port", strconv.Itoa(port),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "keystore.password")

		ln, err := net.Listen("tcp", "127.0.0.1:"+strconv.Itoa(port))
		require.NoError(t, err)
		_ = ln.Close()
	})

	t.Run("Should reject an unknown signer type", func(t *testing.T) {
		err := newApp().Run([]string{"remote-signer", "-t", "hsm", "--port", strconv.Itoa(freePort(t))})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid signer type")
	})

	t.Run("Should reject a mnemonic index that does not fit the derivation path", func(t *testing.T) {
		for _, index := range []string{"4294967296", "2147483648"} {
			err := newApp().Run([]string{
				"remote-signer",
				"-t", "mnemonic",
				"--mnemonic", "test test test test test test test test test test test junk",
				"--mnemonic.index", index,
				"--port", strconv.Itoa(freePort(t)),
			})
			require.Error(t, err, index)
			assert.Contains(t, err.Error(), "mnemonic.index")
		}
	})

	t.Run("Should reject an unknown journal type", func(t *testing.T) {
		err := newApp().Run([]string{
			"remote-signer",
			"-t", "private_key",
			"--private-key", "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80",
			"--journal.type", "postgres",
			"--port", strconv.Itoa(freePort(t)),
		})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "journal.type")
		assert.NotContains(t, err.Error(), "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	})
}

func Test_NewJournal(t *testing.T) {
	l := zaptest.NewLogger(t)

	t.Run("Should return nil when disabled", func(t *testing.T) {
		j, err := newJournal(&config.JournalConfig{Type: config.JournalTypeNone}, l)
		require.NoError(t, err)
		assert.Nil(t, j)
	})

	t.Run("Should build a memory journal", func(t *testing.T) {
		j, err := newJournal(&config.JournalConfig{Type: config.JournalTypeMemory, Capacity: 4}, l)
		require.NoError(t, err)
		require.NotNil(t, j)
		require.NoError(t, j.Append(journal.NewSigningRecord()))
		require.NoError(t, j.Close())
	})

	t.Run("Should build a badger journal", func(t *testing.T) {
		j, err := newJournal(&config.JournalConfig{Type: config.JournalTypeBadger, Path: t.TempDir()}, l)
		require.NoError(t, err)
		require.NotNil(t, j)
		require.NoError(t, j.HealthCheck())
		require.NoError(t, j.Close())
	})
}

func Test_ParseRemoteSignerConfig(t *testing.T) {
	t.Run("Should read the journal capacity from the environment", func(t *testing.T) {
		t.Setenv(config.EnvJournalCapacity, "25")

		var parsed *config.RemoteSignerConfig
		app := newApp()
		app.Action = func(c *cli.Context) error {
			parsed = parseRemoteSignerConfig(c)
			return nil
		}
		require.NoError(t, app.Run([]string{"remote-signer", "-t", "private_key", "--journal.type", "memory"}))

		require.NotNil(t, parsed)
		assert.Equal(t, 25, parsed.Journal.Capacity)
		assert.Equal(t, config.JournalTypeMemory, parsed.Journal.Type)
	})
}
