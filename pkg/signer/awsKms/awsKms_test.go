package awsKms

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"testing"

	"github.com/Layr-Labs/eigenx-remote-signer/pkg/crypto"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signingError"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/smithy-go"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeKMS answers like AWS KMS but signs with a local key
type fakeKMS struct {
	privateKey   *ecdsa.PrivateKey
	keySpec      types.KeySpec
	getKeyErr    error
	signErr      error
	highS        bool
	getKeyCalls  int
	signCalls    int
	lastSignType types.MessageType
}

func newFakeKMS(t *testing.T) *fakeKMS {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return &fakeKMS{privateKey: key, keySpec: types.KeySpecEccSecgP256k1}
}

func (f *fakeKMS) GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error) {
	f.getKeyCalls++
	if f.getKeyErr != nil {
		return nil, f.getKeyErr
	}
	der, err := crypto.MarshalDERPublicKey(&f.privateKey.PublicKey)
	if err != nil {
		return nil, err
	}
	return &kms.GetPublicKeyOutput{
		KeyId:     params.KeyId,
		KeySpec:   f.keySpec,
		PublicKey: der,
	}, nil
}

func (f *fakeKMS) Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error) {
	f.signCalls++
	f.lastSignType = params.MessageType
	if f.signErr != nil {
		return nil, f.signErr
	}
	sig, err := ethcrypto.Sign(params.Message, f.privateKey)
	if err != nil {
		return nil, err
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	if f.highS {
		s = new(big.Int).Sub(ethcrypto.S256().Params().N, s)
	}
	der, err := crypto.MarshalDERSignature(r, s)
	if err != nil {
		return nil, err
	}
	return &kms.SignOutput{KeyId: params.KeyId, Signature: der}, nil
}

func Test_AWSKMSSigner(t *testing.T) {
	ctx := context.Background()
	l := zaptest.NewLogger(t)
	hash := ethcrypto.Keccak256([]byte("remote signer"))

	t.Run("Should derive the address from the KMS public key", func(t *testing.T) {
		fake := newFakeKMS(t)
		signer, err := NewAWSKMSSignerWithClient(ctx, fake, "alias/test", l)
		require.NoError(t, err)

		assert.Equal(t, ethcrypto.PubkeyToAddress(fake.privateKey.PublicKey), signer.Address())
		assert.Equal(t, "alias/test", signer.KeyId())
		assert.Equal(t, 1, fake.getKeyCalls)
	})

	t.Run("Should produce recoverable signatures", func(t *testing.T) {
		for _, highS := range []bool{false, true} {
			fake := newFakeKMS(t)
			fake.highS = highS
			signer, err := NewAWSKMSSignerWithClient(ctx, fake, "alias/test", l)
			require.NoError(t, err)

			sig, err := signer.SignHash(ctx, hash)
			require.NoError(t, err)
			require.Len(t, sig, 65)
			assert.Equal(t, types.MessageTypeDigest, fake.lastSignType)

			pub, err := ethcrypto.SigToPub(hash, sig)
			require.NoError(t, err)
			assert.Equal(t, signer.Address(), ethcrypto.PubkeyToAddress(*pub))
		}
	})

	t.Run("Should reject hashes that are not 32 bytes", func(t *testing.T) {
		fake := newFakeKMS(t)
		signer, err := NewAWSKMSSignerWithClient(ctx, fake, "alias/test", l)
		require.NoError(t, err)

		_, err = signer.SignHash(ctx, []byte{0x01})
		require.Error(t, err)
		assert.Equal(t, 0, fake.signCalls)
	})

	t.Run("Should reject an empty key id", func(t *testing.T) {
		_, err := NewAWSKMSSignerWithClient(ctx, newFakeKMS(t), "", l)
		require.Error(t, err)
		assert.True(t, errors.Is(err, signingError.ErrInvalidKeyFormat))
	})

	t.Run("Should reject keys that are not secp256k1", func(t *testing.T) {
		fake := newFakeKMS(t)
		fake.keySpec = types.KeySpecEccNistP256
		_, err := NewAWSKMSSignerWithClient(ctx, fake, "alias/test", l)
		require.Error(t, err)
		assert.True(t, errors.Is(err, signingError.ErrInvalidKeyFormat))
		assert.Equal(t, signingError.KindBackendResolution, signingError.KindOf(err))
	})

	t.Run("Should classify access denied as an authorization failure", func(t *testing.T) {
		fake := newFakeKMS(t)
		fake.getKeyErr = &smithy.GenericAPIError{Code: "AccessDeniedException", Message: "denied"}
		_, err := NewAWSKMSSignerWithClient(ctx, fake, "alias/test", l)
		require.Error(t, err)
		assert.True(t, errors.Is(err, signingError.ErrKmsAuthorization))
		assert.Equal(t, signingError.KindBackendResolution, signingError.KindOf(err))
	})

	t.Run("Should classify transport errors as connection failures", func(t *testing.T) {
		fake := newFakeKMS(t)
		fake.getKeyErr = errors.New("dial tcp: connection refused")
		_, err := NewAWSKMSSignerWithClient(ctx, fake, "alias/test", l)
		require.Error(t, err)
		assert.True(t, errors.Is(err, signingError.ErrKmsConnection))
	})

	t.Run("Should report sign failures as signing errors", func(t *testing.T) {
		fake := newFakeKMS(t)
		signer, err := NewAWSKMSSignerWithClient(ctx, fake, "alias/test", l)
		require.NoError(t, err)

		fake.signErr = &smithy.GenericAPIError{Code: "ExpiredTokenException"}
		_, err = signer.SignHash(ctx, hash)
		require.Error(t, err)
		assert.True(t, errors.Is(err, signingError.ErrKmsAuthorization))
		assert.Equal(t, signingError.KindSigning, signingError.KindOf(err))
	})
}
