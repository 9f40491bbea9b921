package signer

import (
	"context"
	"fmt"

	internalAws "github.com/Layr-Labs/eigenx-remote-signer/internal/aws"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signer/alicloudKms"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signer/awsKms"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signer/gcpKms"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signer/localSigner"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signingError"
	"go.uber.org/zap"
)

// Resolve builds the signer described by d. Every failure is a backend
// resolution error; nothing is cached here.
func Resolve(ctx context.Context, d *Descriptor, logger *zap.Logger) (ISigner, error) {
	if d == nil {
		return nil, signingError.BackendResolution(signingError.ErrInvalidSignerType, "no signer configured", nil)
	}

	missing := func(variant string) error {
		return signingError.BackendResolution(signingError.ErrRequiredConfigKeyNotFound,
			fmt.Sprintf("%s parameters are not set", variant), nil)
	}

	var (
		s   ISigner
		err error
	)
	switch d.Kind {
	case KindPrivateKey:
		if d.PrivateKey == nil {
			return nil, missing("private key")
		}
		s, err = localSigner.NewPrivateKeySigner(d.PrivateKey.Key, logger)

	case KindMnemonic:
		if d.Mnemonic == nil {
			return nil, missing("mnemonic")
		}
		s, err = localSigner.NewMnemonicSigner(d.Mnemonic.Phrase, d.Mnemonic.Index, logger)

	case KindKeystore:
		if d.Keystore == nil {
			return nil, missing("keystore")
		}
		s, err = localSigner.NewKeystoreSigner(d.Keystore.Path, d.Keystore.Password, logger)

	case KindAwsKms:
		if d.AwsKms == nil {
			return nil, missing("aws kms")
		}
		awsCfg, cfgErr := internalAws.LoadAWSConfig(ctx, d.AwsKms.Region)
		if cfgErr != nil {
			return nil, signingError.BackendResolution(signingError.ErrKmsConnection, "failed to load aws config", cfgErr)
		}
		s, err = awsKms.NewAWSKMSSigner(ctx, awsCfg, d.AwsKms.KeyID, logger)

	case KindGcpKms:
		if d.GcpKms == nil {
			return nil, missing("gcp kms")
		}
		s, err = gcpKms.NewGCPKMSSigner(ctx, gcpKms.KeyVersion{
			ProjectID: d.GcpKms.ProjectID,
			Location:  d.GcpKms.Location,
			KeyRing:   d.GcpKms.KeyRing,
			Key:       d.GcpKms.Key,
			Version:   d.GcpKms.Version,
		}, logger)

	case KindAlicloudKms:
		if d.AlicloudKms == nil {
			return nil, missing("alicloud kms")
		}
		s, err = alicloudKms.NewAlicloudKMSSigner(ctx, &alicloudKms.AlicloudKMSConfig{
			KeyId:           d.AlicloudKms.KeyID,
			KeyVersionId:    d.AlicloudKms.KeyVersionID,
			RegionId:        d.AlicloudKms.Region,
			AccessKeyId:     d.AlicloudKms.AccessKeyID,
			AccessKeySecret: d.AlicloudKms.AccessKeySecret,
		}, logger)

	case KindAzureKeyVault:
		return nil, signingError.BackendResolution(signingError.ErrUnsupportedBackendKind,
			fmt.Sprintf("signer type '%s' is not supported", d.Kind), nil)

	default:
		return nil, signingError.BackendResolution(signingError.ErrUnsupportedBackendKind,
			fmt.Sprintf("unknown signer type '%s'", d.Kind), nil)
	}

	if err != nil {
		return nil, signingError.AsBackendResolution(err)
	}
	return s, nil
}

type ResolveFunc func(ctx context.Context, d *Descriptor, logger *zap.Logger) (ISigner, error)

// Resolver resolves its descriptor again on every call.
type Resolver struct {
	descriptor *Descriptor
	logger     *zap.Logger
	resolve    ResolveFunc
}

func NewResolver(d *Descriptor, logger *zap.Logger) *Resolver {
	return NewResolverWithFunc(d, Resolve, logger)
}

// NewResolverWithFunc allows replacing the backend construction, mainly for tests.
func NewResolverWithFunc(d *Descriptor, fn ResolveFunc, logger *zap.Logger) *Resolver {
	return &Resolver{
		descriptor: d,
		logger:     logger,
		resolve:    fn,
	}
}

func (r *Resolver) Resolve(ctx context.Context) (ISigner, error) {
	return r.resolve(ctx, r.descriptor, r.logger)
}

// Release closes s; nothing outlives the request that resolved it.
func (r *Resolver) Release(s ISigner) {
	if s == nil {
		return
	}
	closeSigner(s, r.logger)
}

func (r *Resolver) Descriptor() *Descriptor {
	return r.descriptor
}
