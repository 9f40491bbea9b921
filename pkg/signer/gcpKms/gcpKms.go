package gcpKms

import (
	"context"
	"crypto/ecdsa"
	"fmt"

	kms "cloud.google.com/go/kms/apiv1"
	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/crypto"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signingError"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/googleapis/gax-go/v2"
	pkgErrors "github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// KeyManagementAPI is the subset of *kms.KeyManagementClient used for remote signing
type KeyManagementAPI interface {
	GetPublicKey(ctx context.Context, req *kmspb.GetPublicKeyRequest, opts ...gax.CallOption) (*kmspb.PublicKey, error)
	AsymmetricSign(ctx context.Context, req *kmspb.AsymmetricSignRequest, opts ...gax.CallOption) (*kmspb.AsymmetricSignResponse, error)
}

// KeyManagementClient is a KeyManagementAPI owning a connection.
type KeyManagementClient interface {
	KeyManagementAPI
	Close() error
}

var _ KeyManagementClient = (*kms.KeyManagementClient)(nil)

var dialKeyManagement = func(ctx context.Context) (KeyManagementClient, error) {
	client, err := kms.NewKeyManagementClient(ctx)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// KeyVersion identifies a single Cloud KMS crypto key version
type KeyVersion struct {
	ProjectID string
	Location  string
	KeyRing   string
	Key       string
	Version   string
}

// Name returns the resource name of the key version.
func (k KeyVersion) Name() string {
	return fmt.Sprintf("projects/%s/locations/%s/keyRings/%s/cryptoKeys/%s/cryptoKeyVersions/%s",
		k.ProjectID, k.Location, k.KeyRing, k.Key, k.Version)
}

func (k KeyVersion) validate() error {
	for name, v := range map[string]string{
		"project_id": k.ProjectID,
		"location":   k.Location,
		"key_ring":   k.KeyRing,
		"key":        k.Key,
		"version":    k.Version,
	} {
		if v == "" {
			return fmt.Errorf("gcp kms %s is empty", name)
		}
	}
	return nil
}

type GCPKMSSigner struct {
	logger    *zap.Logger
	client    KeyManagementAPI
	name      string
	publicKey *ecdsa.PublicKey
	address   common.Address
}

// NewGCPKMSSigner dials Cloud KMS with application default credentials. The
// returned signer owns the connection and must be closed.
func NewGCPKMSSigner(ctx context.Context, keyVersion KeyVersion, logger *zap.Logger) (*GCPKMSSigner, error) {
	if err := keyVersion.validate(); err != nil {
		return nil, signingError.BackendResolution(signingError.ErrInvalidKeyFormat, err.Error(), nil)
	}

	client, err := dialKeyManagement(ctx)
	if err != nil {
		return nil, signingError.BackendResolution(classifyError(err), "",
			pkgErrors.Wrap(err, "failed to create cloud kms client"))
	}

	signer, err := NewGCPKMSSignerWithClient(ctx, client, keyVersion, logger)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Sugar().Warnw("Failed to close cloud kms client", "error", closeErr)
		}
		return nil, err
	}
	return signer, nil
}

func NewGCPKMSSignerWithClient(ctx context.Context, client KeyManagementAPI, keyVersion KeyVersion, logger *zap.Logger) (*GCPKMSSigner, error) {
	if err := keyVersion.validate(); err != nil {
		return nil, signingError.BackendResolution(signingError.ErrInvalidKeyFormat, err.Error(), nil)
	}
	name := keyVersion.Name()

	pub, err := client.GetPublicKey(ctx, &kmspb.GetPublicKeyRequest{Name: name})
	if err != nil {
		return nil, signingError.BackendResolution(classifyError(err), "",
			pkgErrors.Wrapf(err, "failed to get public key for %s", name))
	}

	if pub.GetAlgorithm() != kmspb.CryptoKeyVersion_CRYPTO_KEY_VERSION_ALGORITHM_UNSPECIFIED &&
		pub.GetAlgorithm() != kmspb.CryptoKeyVersion_EC_SIGN_SECP256K1_SHA256 {
		return nil, signingError.BackendResolution(signingError.ErrInvalidKeyFormat,
			fmt.Sprintf("key %s uses algorithm %s, expected %s", name, pub.GetAlgorithm(), kmspb.CryptoKeyVersion_EC_SIGN_SECP256K1_SHA256), nil)
	}

	publicKey, err := crypto.ParsePEMPublicKey([]byte(pub.GetPem()))
	if err != nil {
		return nil, signingError.BackendResolution(signingError.ErrInvalidKeyFormat, "",
			pkgErrors.Wrapf(err, "failed to parse public key for %s", name))
	}
	address := ethcrypto.PubkeyToAddress(*publicKey)

	logger.Sugar().Debugw("Resolved GCP KMS signer", "keyVersion", name, "address", address.Hex())

	return &GCPKMSSigner{
		logger:    logger,
		client:    client,
		name:      name,
		publicKey: publicKey,
		address:   address,
	}, nil
}

// Close releases the client connection when the signer owns one. Clients
// passed to NewGCPKMSSignerWithClient without a Close method are left alone.
func (g *GCPKMSSigner) Close() error {
	closer, ok := g.client.(interface{ Close() error })
	if !ok {
		return nil
	}
	return closer.Close()
}

func (g *GCPKMSSigner) Address() common.Address {
	return g.address
}

func (g *GCPKMSSigner) SignHash(ctx context.Context, hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be exactly 32 bytes, got %d", len(hash))
	}

	resp, err := g.client.AsymmetricSign(ctx, &kmspb.AsymmetricSignRequest{
		Name: g.name,
		Digest: &kmspb.Digest{
			Digest: &kmspb.Digest_Sha256{Sha256: hash},
		},
	})
	if err != nil {
		return nil, signingError.Signing(classifyError(err), "",
			pkgErrors.Wrapf(err, "failed to sign with %s", g.name))
	}

	signature, err := crypto.RecoverableSignature(hash, resp.GetSignature(), g.publicKey)
	if err != nil {
		return nil, signingError.Signing(nil, "",
			pkgErrors.Wrapf(err, "invalid signature returned for %s", g.name))
	}
	return signature, nil
}

func classifyError(err error) error {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated:
		return signingError.ErrKmsAuthorization
	default:
		return signingError.ErrKmsConnection
	}
}
