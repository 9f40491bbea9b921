package signer

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signingError"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

const (
	testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testMnemonic   = "test test test test test test test test test test test junk"
)

var testAddress = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func Test_Resolve(t *testing.T) {
	ctx := context.Background()
	l := zaptest.NewLogger(t)

	t.Run("Should resolve a stable identity for local variants", func(t *testing.T) {
		descriptors := []*Descriptor{
			{Kind: KindPrivateKey, PrivateKey: &PrivateKeyConfig{Key: testPrivateKey}},
			{Kind: KindPrivateKey, PrivateKey: &PrivateKeyConfig{Key: "0x" + testPrivateKey}},
			{Kind: KindMnemonic, Mnemonic: &MnemonicConfig{Phrase: testMnemonic}},
		}
		for _, d := range descriptors {
			first, err := Resolve(ctx, d, l)
			require.NoError(t, err)
			second, err := Resolve(ctx, d, l)
			require.NoError(t, err)

			assert.Equal(t, testAddress, first.Address())
			assert.Equal(t, first.Address(), second.Address())
		}
	})

	t.Run("Should reject invalid raw keys without leaking them", func(t *testing.T) {
		secret := "zz" + testPrivateKey[2:]
		s, err := Resolve(ctx, &Descriptor{Kind: KindPrivateKey, PrivateKey: &PrivateKeyConfig{Key: secret}}, l)
		require.Error(t, err)
		assert.Nil(t, s)
		assert.Equal(t, signingError.KindBackendResolution, signingError.KindOf(err))
		assert.True(t, errors.Is(err, signingError.ErrInvalidKeyFormat))
		assert.NotContains(t, err.Error(), secret)
	})

	t.Run("Should report missing keystore files as decryption failures", func(t *testing.T) {
		_, err := Resolve(ctx, &Descriptor{
			Kind:     KindKeystore,
			Keystore: &KeystoreConfig{Path: t.TempDir() + "/missing.json", Password: "hunter2"},
		}, l)
		require.Error(t, err)
		assert.True(t, errors.Is(err, signingError.ErrKeystoreDecryption))
		assert.NotContains(t, err.Error(), "hunter2")
	})

	t.Run("Should reject azure key vault as unsupported", func(t *testing.T) {
		_, err := Resolve(ctx, &Descriptor{
			Kind:          KindAzureKeyVault,
			AzureKeyVault: &AzureKeyVaultConfig{Key: "key", Secret: "secret"},
		}, l)
		require.Error(t, err)
		assert.True(t, errors.Is(err, signingError.ErrUnsupportedBackendKind))
		assert.Equal(t, signingError.KindBackendResolution, signingError.KindOf(err))
	})

	t.Run("Should reject unknown kinds", func(t *testing.T) {
		_, err := Resolve(ctx, &Descriptor{Kind: "hsm"}, l)
		require.Error(t, err)
		assert.True(t, errors.Is(err, signingError.ErrUnsupportedBackendKind))
	})

	t.Run("Should reject a kind without its parameters", func(t *testing.T) {
		_, err := Resolve(ctx, &Descriptor{Kind: KindGcpKms}, l)
		require.Error(t, err)
		assert.True(t, errors.Is(err, signingError.ErrRequiredConfigKeyNotFound))
	})

	t.Run("Should reject a nil descriptor", func(t *testing.T) {
		_, err := Resolve(ctx, nil, l)
		require.Error(t, err)
		assert.True(t, errors.Is(err, signingError.ErrInvalidSignerType))
	})
}

func Test_Descriptor(t *testing.T) {
	t.Run("Should redact secrets when serialized", func(t *testing.T) {
		descriptors := map[string]*Descriptor{
			testPrivateKey: {Kind: KindPrivateKey, PrivateKey: &PrivateKeyConfig{Key: testPrivateKey}},
			testMnemonic:   {Kind: KindMnemonic, Mnemonic: &MnemonicConfig{Phrase: testMnemonic, Index: 2}},
			"ks-password":  {Kind: KindKeystore, Keystore: &KeystoreConfig{Path: "/keys/a.json", Password: "ks-password"}},
			"ali-secret": {Kind: KindAlicloudKms, AlicloudKms: &AlicloudKmsConfig{
				KeyID: "key", KeyVersionID: "v1", Region: "cn-hangzhou", AccessKeyID: "LTAI", AccessKeySecret: "ali-secret",
			}},
			"azure-secret": {Kind: KindAzureKeyVault, AzureKeyVault: &AzureKeyVaultConfig{Key: "k", Secret: "azure-secret"}},
		}
		for secret, d := range descriptors {
			out, err := json.Marshal(d)
			require.NoError(t, err)
			assert.NotContains(t, string(out), secret)
			assert.Contains(t, string(out), redacted)
			assert.Contains(t, string(out), string(d.Kind))
		}
	})

	t.Run("Should keep non secret fields", func(t *testing.T) {
		out, err := json.Marshal(&Descriptor{Kind: KindAwsKms, AwsKms: &AwsKmsConfig{KeyID: "alias/signer", Region: "us-east-1"}})
		require.NoError(t, err)
		assert.JSONEq(t, `{"type":"awskms","key":"alias/signer","region":"us-east-1"}`, string(out))
	})

	t.Run("Should fingerprint descriptors by content", func(t *testing.T) {
		a := &Descriptor{Kind: KindMnemonic, Mnemonic: &MnemonicConfig{Phrase: testMnemonic, Index: 0}}
		b := &Descriptor{Kind: KindMnemonic, Mnemonic: &MnemonicConfig{Phrase: testMnemonic, Index: 0}}
		c := &Descriptor{Kind: KindMnemonic, Mnemonic: &MnemonicConfig{Phrase: testMnemonic, Index: 1}}
		assert.Equal(t, a.Fingerprint(), b.Fingerprint())
		assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
	})

	t.Run("Should parse known kinds only", func(t *testing.T) {
		k, ok := ParseKind("awskms")
		assert.True(t, ok)
		assert.Equal(t, KindAwsKms, k)

		_, ok = ParseKind("vault")
		assert.False(t, ok)
	})
}

func Test_CachingResolver(t *testing.T) {
	ctx := context.Background()
	l := zaptest.NewLogger(t)
	d := &Descriptor{Kind: KindPrivateKey, PrivateKey: &PrivateKeyConfig{Key: testPrivateKey}}

	countingResolver := func(calls *atomic.Int32, fail *atomic.Bool) *Resolver {
		return NewResolverWithFunc(d, func(ctx context.Context, d *Descriptor, logger *zap.Logger) (ISigner, error) {
			calls.Add(1)
			if fail.Load() {
				return nil, signingError.BackendResolution(signingError.ErrKmsConnection, "unreachable", nil)
			}
			return Resolve(ctx, d, logger)
		}, l)
	}

	t.Run("Should resolve once while the entry is fresh", func(t *testing.T) {
		var calls atomic.Int32
		var fail atomic.Bool
		cache := NewCachingResolver(countingResolver(&calls, &fail), &CacheConfig{Size: 4, TTL: time.Minute}, l)

		for i := 0; i < 3; i++ {
			s, err := cache.Resolve(ctx)
			require.NoError(t, err)
			assert.Equal(t, testAddress, s.Address())
		}
		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, d, cache.Descriptor())
	})

	t.Run("Should never cache failures", func(t *testing.T) {
		var calls atomic.Int32
		var fail atomic.Bool
		fail.Store(true)
		cache := NewCachingResolver(countingResolver(&calls, &fail), &CacheConfig{Size: 4, TTL: time.Minute}, l)

		_, err := cache.Resolve(ctx)
		require.Error(t, err)
		_, err = cache.Resolve(ctx)
		require.Error(t, err)
		assert.Equal(t, int32(2), calls.Load())

		fail.Store(false)
		_, err = cache.Resolve(ctx)
		require.NoError(t, err)
		_, err = cache.Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("Should resolve again after purge", func(t *testing.T) {
		var calls atomic.Int32
		var fail atomic.Bool
		cache := NewCachingResolver(countingResolver(&calls, &fail), &CacheConfig{Size: 1, TTL: time.Minute}, l)

		_, err := cache.Resolve(ctx)
		require.NoError(t, err)
		cache.Purge()
		_, err = cache.Resolve(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(2), calls.Load())
	})
}

type closingSigner struct {
	ISigner
	closes *atomic.Int32
}

func (c *closingSigner) Close() error {
	c.closes.Add(1)
	return nil
}

func Test_SignerRelease(t *testing.T) {
	ctx := context.Background()
	l := zaptest.NewLogger(t)
	d := &Descriptor{Kind: KindPrivateKey, PrivateKey: &PrivateKeyConfig{Key: testPrivateKey}}

	closingResolver := func(closes *atomic.Int32) *Resolver {
		return NewResolverWithFunc(d, func(ctx context.Context, d *Descriptor, logger *zap.Logger) (ISigner, error) {
			s, err := Resolve(ctx, d, logger)
			if err != nil {
				return nil, err
			}
			return &closingSigner{ISigner: s, closes: closes}, nil
		}, l)
	}

	t.Run("Should close every signer the plain resolver releases", func(t *testing.T) {
		var closes atomic.Int32
		r := closingResolver(&closes)

		for i := 0; i < 3; i++ {
			s, err := r.Resolve(ctx)
			require.NoError(t, err)
			r.Release(s)
		}
		assert.Equal(t, int32(3), closes.Load())
	})

	t.Run("Should ignore signers without Close", func(t *testing.T) {
		r := NewResolver(d, l)
		s, err := r.Resolve(ctx)
		require.NoError(t, err)
		r.Release(s)
		r.Release(nil)
	})

	t.Run("Should keep cached signers open until purged", func(t *testing.T) {
		var closes atomic.Int32
		cache := NewCachingResolver(closingResolver(&closes), &CacheConfig{Size: 1, TTL: time.Minute}, l)

		for i := 0; i < 3; i++ {
			s, err := cache.Resolve(ctx)
			require.NoError(t, err)
			cache.Release(s)
		}
		assert.Equal(t, int32(0), closes.Load())

		cache.Purge()
		assert.Equal(t, int32(1), closes.Load())
	})

	t.Run("Should close signers when they expire", func(t *testing.T) {
		var closes atomic.Int32
		cache := NewCachingResolver(closingResolver(&closes), &CacheConfig{Size: 1, TTL: 20 * time.Millisecond}, l)

		_, err := cache.Resolve(ctx)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			_, _ = cache.cache.Get(d.Fingerprint())
			return closes.Load() == 1
		}, 2*time.Second, 10*time.Millisecond)
	})
}
