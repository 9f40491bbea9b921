package alicloudKms

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"errors"
	"math/big"
	"testing"

	"github.com/Layr-Labs/eigenx-remote-signer/pkg/crypto"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signingError"
	kms "github.com/alibabacloud-go/kms-20160120/v3/client"
	"github.com/alibabacloud-go/tea/tea"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeKMS struct {
	privateKey    *ecdsa.PrivateKey
	getKeyErr     error
	signErr       error
	lastAlgorithm string
}

func newFakeKMS(t *testing.T) *fakeKMS {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return &fakeKMS{privateKey: key}
}

func (f *fakeKMS) GetPublicKey(request *kms.GetPublicKeyRequest) (*kms.GetPublicKeyResponse, error) {
	if f.getKeyErr != nil {
		return nil, f.getKeyErr
	}
	pemBytes, err := crypto.MarshalPEMPublicKey(&f.privateKey.PublicKey)
	if err != nil {
		return nil, err
	}
	return &kms.GetPublicKeyResponse{
		Body: &kms.GetPublicKeyResponseBody{
			KeyId:        request.KeyId,
			KeyVersionId: request.KeyVersionId,
			PublicKey:    tea.String(string(pemBytes)),
		},
	}, nil
}

func (f *fakeKMS) AsymmetricSign(request *kms.AsymmetricSignRequest) (*kms.AsymmetricSignResponse, error) {
	f.lastAlgorithm = tea.StringValue(request.Algorithm)
	if f.signErr != nil {
		return nil, f.signErr
	}
	digest, err := base64.StdEncoding.DecodeString(tea.StringValue(request.Digest))
	if err != nil {
		return nil, err
	}
	sig, err := ethcrypto.Sign(digest, f.privateKey)
	if err != nil {
		return nil, err
	}
	der, err := crypto.MarshalDERSignature(new(big.Int).SetBytes(sig[:32]), new(big.Int).SetBytes(sig[32:64]))
	if err != nil {
		return nil, err
	}
	return &kms.AsymmetricSignResponse{
		Body: &kms.AsymmetricSignResponseBody{
			KeyId: request.KeyId,
			Value: tea.String(base64.StdEncoding.EncodeToString(der)),
		},
	}, nil
}

func Test_AlicloudKMSSigner(t *testing.T) {
	ctx := context.Background()
	l := zaptest.NewLogger(t)
	hash := ethcrypto.Keccak256([]byte("remote signer"))

	t.Run("Should resolve and sign", func(t *testing.T) {
		fake := newFakeKMS(t)
		signer, err := NewAlicloudKMSSignerWithClient(ctx, fake, "key-id", "version-id", l)
		require.NoError(t, err)
		assert.Equal(t, ethcrypto.PubkeyToAddress(fake.privateKey.PublicKey), signer.Address())

		sig, err := signer.SignHash(ctx, hash)
		require.NoError(t, err)
		assert.Equal(t, signingAlgorithm, fake.lastAlgorithm)

		pub, err := ethcrypto.SigToPub(hash, sig)
		require.NoError(t, err)
		assert.Equal(t, signer.Address(), ethcrypto.PubkeyToAddress(*pub))
	})

	t.Run("Should require key id and version", func(t *testing.T) {
		_, err := NewAlicloudKMSSignerWithClient(ctx, newFakeKMS(t), "key-id", "", l)
		require.Error(t, err)
		assert.True(t, errors.Is(err, signingError.ErrInvalidKeyFormat))
	})

	t.Run("Should require credentials before dialing", func(t *testing.T) {
		_, err := NewAlicloudKMSSigner(ctx, &AlicloudKMSConfig{KeyId: "key-id", KeyVersionId: "v1"}, l)
		require.Error(t, err)
		assert.True(t, errors.Is(err, signingError.ErrRequiredConfigKeyNotFound))
	})

	t.Run("Should classify forbidden responses as authorization failures", func(t *testing.T) {
		fake := newFakeKMS(t)
		fake.getKeyErr = &tea.SDKError{Code: tea.String("Forbidden.NoPermission"), StatusCode: tea.Int(403)}
		_, err := NewAlicloudKMSSignerWithClient(ctx, fake, "key-id", "version-id", l)
		require.Error(t, err)
		assert.True(t, errors.Is(err, signingError.ErrKmsAuthorization))
	})

	t.Run("Should classify other failures as connection failures", func(t *testing.T) {
		fake := newFakeKMS(t)
		signer, err := NewAlicloudKMSSignerWithClient(ctx, fake, "key-id", "version-id", l)
		require.NoError(t, err)

		fake.signErr = errors.New("i/o timeout")
		_, err = signer.SignHash(ctx, hash)
		require.Error(t, err)
		assert.True(t, errors.Is(err, signingError.ErrKmsConnection))
		assert.Equal(t, signingError.KindSigning, signingError.KindOf(err))
	})

	t.Run("Should stop when the context is cancelled", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		_, err := NewAlicloudKMSSignerWithClient(cancelled, newFakeKMS(t), "key-id", "version-id", l)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))
	})
}
