package service

import (
	"context"
	"time"

	"github.com/Layr-Labs/eigenx-remote-signer/pkg/journal"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/metrics"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/rpc"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signer"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signingError"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/transaction"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
)

type SigningServiceConfig struct {
	Resolver      signer.IResolver
	Canonicalizer transaction.ICanonicalizer

	// Optional
	Journal journal.IJournal
	Metrics *metrics.Metrics
}

// SigningService turns sign envelopes into signed, encoded transactions.
type SigningService struct {
	resolver      signer.IResolver
	canonicalizer transaction.ICanonicalizer
	journal       journal.IJournal
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

func NewSigningService(cfg *SigningServiceConfig, logger *zap.Logger) *SigningService {
	canonicalizer := cfg.Canonicalizer
	if canonicalizer == nil {
		canonicalizer = transaction.NewCanonicalizer(transaction.DefaultPolicy())
	}
	return &SigningService{
		resolver:      cfg.Resolver,
		canonicalizer: canonicalizer,
		journal:       cfg.Journal,
		metrics:       cfg.Metrics,
		logger:        logger,
	}
}

func (s *SigningService) backend() string {
	if d := s.resolver.Descriptor(); d != nil {
		return string(d.Kind)
	}
	return ""
}

// Sign always returns an envelope echoing the request id and jsonrpc fields.
// Failures are reported in the envelope's error field.
func (s *SigningService) Sign(ctx context.Context, req *rpc.SignRequest) *rpc.SignResponse {
	started := time.Now()

	record := journal.NewSigningRecord()
	record.RequestID = req.ID
	record.JSONRPC = req.JSONRPC
	record.Method = req.Method
	record.Backend = s.backend()

	encoded, err := s.sign(ctx, req, record)

	var resp *rpc.SignResponse
	if err != nil {
		record.ErrorKind = string(signingError.KindOf(err))
		record.Error = err.Error()
		resp = rpc.NewErrorResponse(req, err)

		s.logger.Sugar().Warnw("Failed to sign transaction",
			"id", req.ID,
			"method", req.Method,
			"backend", record.Backend,
			"requestHash", record.RequestHash,
			"errorKind", record.ErrorKind,
			"error", err,
		)
	} else {
		resp = rpc.NewResultResponse(req, encoded)

		s.logger.Sugar().Infow("Signed transaction",
			"id", req.ID,
			"backend", record.Backend,
			"signer", record.Signer,
			"txKind", record.TxKind,
			"requestHash", record.RequestHash,
			"txHash", record.TxHash,
			"signatureHash", record.SignatureHash,
		)
	}

	if s.metrics != nil {
		s.metrics.RecordSign(record.ErrorKind, started)
	}
	if s.journal != nil {
		if jErr := s.journal.Append(record); jErr != nil {
			s.logger.Sugar().Errorw("Failed to append signing record", "recordId", record.RecordID, "error", jErr)
		}
	}
	return resp
}

func (s *SigningService) sign(ctx context.Context, req *rpc.SignRequest, record *journal.SigningRecord) (string, error) {
	// Step 1: method
	if req.Method != rpc.MethodEthSendTransaction {
		return "", signingError.InvalidRpcMethod(req.Method)
	}

	// Step 2: canonicalize
	txReq := req.Transaction()
	if txReq != nil {
		record.RequestHash = txReq.Hash().Hex()
	}
	canonical, err := s.canonicalizer.Canonicalize(txReq)
	if err != nil {
		return "", asKind(signingError.KindBuildTransaction, err)
	}
	record.TxKind = canonical.Kind.String()

	// Step 3: resolve the backend
	backend, err := s.resolver.Resolve(ctx)
	if s.metrics != nil {
		s.metrics.RecordResolution(record.Backend, err)
	}
	if err != nil {
		return "", signingError.AsBackendResolution(err)
	}
	defer s.resolver.Release(backend)
	address := backend.Address()
	record.Signer = address.Hex()

	// Step 4: sign
	if canonical.From != nil && *canonical.From != address {
		return "", signingError.Signing(signingError.ErrSignerAddressMismatch, canonical.From.Hex(), nil)
	}
	signingHash := canonical.SigningHash()
	signature, err := backend.SignHash(ctx, signingHash[:])
	if err != nil {
		return "", asKind(signingError.KindSigning, err)
	}
	record.SignatureHash = ethcrypto.Keccak256Hash(signature).Hex()

	signedTx, err := canonical.Tx.WithSignature(canonical.Signer(), signature)
	if err != nil {
		return "", signingError.Signing(nil, "backend returned an unusable signature", err)
	}
	record.TxHash = signedTx.Hash().Hex()

	// Step 5: encode
	raw, err := signedTx.MarshalBinary()
	if err != nil {
		return "", signingError.Encoding("failed to encode signed transaction", err)
	}

	s.logger.Sugar().Debugw("Transaction signed",
		"unsignedTxHash", canonical.Tx.Hash().Hex(),
		"chainId", canonical.ChainID.String(),
	)

	if s.metrics != nil {
		s.metrics.RecordSignedTransaction(record.TxKind)
	}
	return hexutil.Encode(raw), nil
}

// Identity resolves the backend and returns its checksummed address.
func (s *SigningService) Identity(ctx context.Context) (string, error) {
	backend, err := s.resolver.Resolve(ctx)
	if s.metrics != nil {
		s.metrics.RecordResolution(s.backend(), err)
		s.metrics.RecordIdentity(err)
	}
	if err != nil {
		s.logger.Sugar().Warnw("Failed to resolve signer identity", "backend", s.backend(), "error", err)
		return "", signingError.AsBackendResolution(err)
	}
	defer s.resolver.Release(backend)
	return backend.Address().Hex(), nil
}

// Descriptor exposes the configured backend descriptor, for read back.
func (s *SigningService) Descriptor() *signer.Descriptor {
	return s.resolver.Descriptor()
}

// Journal returns the configured journal or nil.
func (s *SigningService) Journal() journal.IJournal {
	return s.journal
}

// asKind keeps classified errors untouched and files anything else under kind.
func asKind(kind signingError.Kind, err error) error {
	if signingError.KindOf(err) != signingError.KindUnknown {
		return err
	}
	return signingError.New(kind, nil, "", err)
}
