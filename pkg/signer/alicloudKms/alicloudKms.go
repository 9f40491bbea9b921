package alicloudKms

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Layr-Labs/eigenx-remote-signer/pkg/crypto"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signingError"
	openapi "github.com/alibabacloud-go/darabonba-openapi/v2/client"
	kms "github.com/alibabacloud-go/kms-20160120/v3/client"
	"github.com/alibabacloud-go/tea/tea"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	pkgErrors "github.com/pkg/errors"
	"go.uber.org/zap"
)

const signingAlgorithm = "ECDSA_SHA_256"

// KMSAPI is the subset of *kms.Client used for remote signing
type KMSAPI interface {
	GetPublicKey(request *kms.GetPublicKeyRequest) (*kms.GetPublicKeyResponse, error)
	AsymmetricSign(request *kms.AsymmetricSignRequest) (*kms.AsymmetricSignResponse, error)
}

var _ KMSAPI = (*kms.Client)(nil)

type AlicloudKMSConfig struct {
	KeyId           string
	KeyVersionId    string
	RegionId        string
	AccessKeyId     string
	AccessKeySecret string
}

func (c *AlicloudKMSConfig) openapiConfig() *openapi.Config {
	return &openapi.Config{
		AccessKeyId:     tea.String(c.AccessKeyId),
		AccessKeySecret: tea.String(c.AccessKeySecret),
		RegionId:        tea.String(c.RegionId),
		Endpoint:        tea.String(fmt.Sprintf("kms.%s.aliyuncs.com", c.RegionId)),
	}
}

type AlicloudKMSSigner struct {
	logger       *zap.Logger
	client       KMSAPI
	keyId        string
	keyVersionId string
	publicKey    *ecdsa.PublicKey
	address      common.Address
}

func NewAlicloudKMSSigner(ctx context.Context, cfg *AlicloudKMSConfig, logger *zap.Logger) (*AlicloudKMSSigner, error) {
	if cfg.RegionId == "" || cfg.AccessKeyId == "" || cfg.AccessKeySecret == "" {
		return nil, signingError.BackendResolution(signingError.ErrRequiredConfigKeyNotFound,
			"alicloud kms requires region, access key id and access key secret", nil)
	}
	client, err := kms.NewClient(cfg.openapiConfig())
	if err != nil {
		// the SDK error may echo the config, so it is not wrapped
		return nil, signingError.BackendResolution(signingError.ErrKmsConnection, "failed to create alicloud kms client", nil)
	}
	return NewAlicloudKMSSignerWithClient(ctx, client, cfg.KeyId, cfg.KeyVersionId, logger)
}

// NewAlicloudKMSSignerWithClient fetches the PEM public key of the key version.
// The Alibaba SDK has no context support, so ctx is only checked before each call.
func NewAlicloudKMSSignerWithClient(ctx context.Context, client KMSAPI, keyId, keyVersionId string, logger *zap.Logger) (*AlicloudKMSSigner, error) {
	if keyId == "" || keyVersionId == "" {
		return nil, signingError.BackendResolution(signingError.ErrInvalidKeyFormat, "alicloud kms key id and key version id are required", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, signingError.BackendResolution(signingError.ErrKmsConnection, "", err)
	}

	resp, err := client.GetPublicKey(&kms.GetPublicKeyRequest{
		KeyId:        tea.String(keyId),
		KeyVersionId: tea.String(keyVersionId),
	})
	if err != nil {
		return nil, signingError.BackendResolution(classifyError(err), "",
			pkgErrors.Wrapf(err, "failed to get public key for key %s", keyId))
	}
	if resp == nil || resp.Body == nil || resp.Body.PublicKey == nil {
		return nil, signingError.BackendResolution(signingError.ErrInvalidKeyFormat,
			fmt.Sprintf("empty public key response for key %s", keyId), nil)
	}

	publicKey, err := crypto.ParsePEMPublicKey([]byte(tea.StringValue(resp.Body.PublicKey)))
	if err != nil {
		return nil, signingError.BackendResolution(signingError.ErrInvalidKeyFormat, "",
			pkgErrors.Wrapf(err, "failed to parse public key for key %s", keyId))
	}
	address := ethcrypto.PubkeyToAddress(*publicKey)

	logger.Sugar().Debugw("Resolved Alicloud KMS signer",
		"keyId", keyId,
		"keyVersionId", keyVersionId,
		"address", address.Hex(),
	)

	return &AlicloudKMSSigner{
		logger:       logger,
		client:       client,
		keyId:        keyId,
		keyVersionId: keyVersionId,
		publicKey:    publicKey,
		address:      address,
	}, nil
}

func (a *AlicloudKMSSigner) Address() common.Address {
	return a.address
}

func (a *AlicloudKMSSigner) SignHash(ctx context.Context, hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be exactly 32 bytes, got %d", len(hash))
	}
	if err := ctx.Err(); err != nil {
		return nil, signingError.Signing(signingError.ErrKmsConnection, "", err)
	}

	resp, err := a.client.AsymmetricSign(&kms.AsymmetricSignRequest{
		KeyId:        tea.String(a.keyId),
		KeyVersionId: tea.String(a.keyVersionId),
		Algorithm:    tea.String(signingAlgorithm),
		Digest:       tea.String(base64.StdEncoding.EncodeToString(hash)),
	})
	if err != nil {
		return nil, signingError.Signing(classifyError(err), "",
			pkgErrors.Wrapf(err, "failed to sign with key %s", a.keyId))
	}
	if resp == nil || resp.Body == nil || resp.Body.Value == nil {
		return nil, signingError.Signing(nil, fmt.Sprintf("empty signature response for key %s", a.keyId), nil)
	}

	derSig, err := base64.StdEncoding.DecodeString(tea.StringValue(resp.Body.Value))
	if err != nil {
		return nil, signingError.Signing(nil, "", pkgErrors.Wrap(err, "failed to decode signature"))
	}

	signature, err := crypto.RecoverableSignature(hash, derSig, a.publicKey)
	if err != nil {
		return nil, signingError.Signing(nil, "",
			pkgErrors.Wrapf(err, "invalid signature returned for key %s", a.keyId))
	}
	return signature, nil
}

func classifyError(err error) error {
	var sdkErr *tea.SDKError
	if !errors.As(err, &sdkErr) {
		return signingError.ErrKmsConnection
	}
	status := tea.IntValue(sdkErr.StatusCode)
	code := tea.StringValue(sdkErr.Code)
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return signingError.ErrKmsAuthorization
	case strings.HasPrefix(code, "Forbidden"),
		strings.HasPrefix(code, "InvalidAccessKeyId"),
		code == "SignatureDoesNotMatch":
		return signingError.ErrKmsAuthorization
	default:
		return signingError.ErrKmsConnection
	}
}
