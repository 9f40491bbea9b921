package awsKms

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/Layr-Labs/eigenx-remote-signer/pkg/crypto"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signingError"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/aws/smithy-go"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	pkgErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

// KMSAPI is the subset of *kms.Client used for remote signing
type KMSAPI interface {
	GetPublicKey(ctx context.Context, params *kms.GetPublicKeyInput, optFns ...func(*kms.Options)) (*kms.GetPublicKeyOutput, error)
	Sign(ctx context.Context, params *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

var _ KMSAPI = (*kms.Client)(nil)

// error codes returned by AWS when the caller is not allowed to use the key
var authorizationErrorCodes = map[string]bool{
	"AccessDeniedException":       true,
	"UnrecognizedClientException": true,
	"InvalidSignatureException":   true,
	"IncompleteSignature":         true,
	"MissingAuthenticationToken":  true,
	"InvalidClientTokenId":        true,
	"ExpiredTokenException":       true,
	"KMSInvalidStateException":    true,
	"DisabledException":           true,
}

type AWSKMSSigner struct {
	logger    *zap.Logger
	kmsClient KMSAPI
	keyId     string
	publicKey *ecdsa.PublicKey
	address   common.Address
}

// NewAWSKMSSigner builds a KMS client from awsCfg and fetches the public key for keyId.
func NewAWSKMSSigner(ctx context.Context, awsCfg aws.Config, keyId string, logger *zap.Logger) (*AWSKMSSigner, error) {
	return NewAWSKMSSignerWithClient(ctx, kms.NewFromConfig(awsCfg), keyId, logger)
}

// NewAWSKMSSignerWithClient fetches the public key for keyId through an existing client.
func NewAWSKMSSignerWithClient(ctx context.Context, kmsClient KMSAPI, keyId string, logger *zap.Logger) (*AWSKMSSigner, error) {
	if keyId == "" {
		return nil, signingError.BackendResolution(signingError.ErrInvalidKeyFormat, "aws kms key id is empty", nil)
	}

	kmsPubKey, err := kmsClient.GetPublicKey(ctx, &kms.GetPublicKeyInput{
		KeyId: aws.String(keyId),
	})
	if err != nil {
		return nil, signingError.BackendResolution(classifyError(err), "",
			pkgErrors.Wrapf(err, "failed to get public key for key %s", keyId))
	}

	if kmsPubKey.KeySpec != "" && kmsPubKey.KeySpec != types.KeySpecEccSecgP256k1 {
		return nil, signingError.BackendResolution(signingError.ErrInvalidKeyFormat,
			fmt.Sprintf("key %s has spec %s, expected %s", keyId, kmsPubKey.KeySpec, types.KeySpecEccSecgP256k1), nil)
	}

	publicKey, err := crypto.ParseDERPublicKey(kmsPubKey.PublicKey)
	if err != nil {
		return nil, signingError.BackendResolution(signingError.ErrInvalidKeyFormat, "",
			pkgErrors.Wrapf(err, "failed to parse public key for key %s", keyId))
	}

	address := ethcrypto.PubkeyToAddress(*publicKey)

	logger.Sugar().Debugw("Resolved AWS KMS signer",
		"keyId", keyId,
		"address", address.Hex(),
	)

	return &AWSKMSSigner{
		logger:    logger,
		kmsClient: kmsClient,
		keyId:     keyId,
		publicKey: publicKey,
		address:   address,
	}, nil
}

func (a *AWSKMSSigner) Address() common.Address {
	return a.address
}

func (a *AWSKMSSigner) KeyId() string {
	return a.keyId
}

// SignHash asks KMS to sign a 32 byte digest and converts the DER signature
// into [R || S || V].
func (a *AWSKMSSigner) SignHash(ctx context.Context, hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be exactly 32 bytes, got %d", len(hash))
	}

	signOutput, err := a.kmsClient.Sign(ctx, &kms.SignInput{
		KeyId:            aws.String(a.keyId),
		Message:          hash,
		SigningAlgorithm: types.SigningAlgorithmSpecEcdsaSha256,
		MessageType:      types.MessageTypeDigest,
	})
	if err != nil {
		return nil, signingError.Signing(classifyError(err), "",
			pkgErrors.Wrapf(err, "failed to sign with key %s", a.keyId))
	}

	signature, err := crypto.RecoverableSignature(hash, signOutput.Signature, a.publicKey)
	if err != nil {
		return nil, signingError.Signing(nil, "",
			pkgErrors.Wrapf(err, "invalid signature returned for key %s", a.keyId))
	}

	a.logger.Sugar().Debugw("Signed hash with AWS KMS", "keyId", a.keyId, "address", a.address.Hex())

	return signature, nil
}

func classifyError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && authorizationErrorCodes[apiErr.ErrorCode()] {
		return signingError.ErrKmsAuthorization
	}
	return signingError.ErrKmsConnection
}
