package signer

import (
	"context"
	"io"

	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signer/alicloudKms"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signer/awsKms"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signer/gcpKms"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signer/localSigner"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// ISigner is a resolved backend able to sign 32 byte digests.
type ISigner interface {
	// Address is derived from the backend public key and never requires signing.
	Address() common.Address

	// SignHash returns a 65 byte [R || S || V] signature with V in {0, 1}.
	SignHash(ctx context.Context, hash []byte) ([]byte, error)
}

// IResolver turns the configured descriptor into a usable signer.
type IResolver interface {
	Resolve(ctx context.Context) (ISigner, error)

	// Release hands back a signer obtained from Resolve once the caller is
	// done with it. Signers holding connections are closed unless the
	// resolver keeps them.
	Release(s ISigner)

	Descriptor() *Descriptor
}

// closeSigner closes backends that hold a client connection.
func closeSigner(s ISigner, logger *zap.Logger) {
	closer, ok := s.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		logger.Sugar().Warnw("Failed to close signer", "address", s.Address().Hex(), "error", err)
	}
}

var (
	_ ISigner = (*localSigner.LocalSigner)(nil)
	_ ISigner = (*awsKms.AWSKMSSigner)(nil)
	_ ISigner = (*gcpKms.GCPKMSSigner)(nil)
	_ ISigner = (*alicloudKms.AlicloudKMSSigner)(nil)

	_ io.Closer = (*gcpKms.GCPKMSSigner)(nil)
)
