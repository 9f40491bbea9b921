package transaction

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signingError"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// version byte of a KZG commitment versioned hash
const blobCommitmentVersionKZG = 0x01

type Kind uint8

const (
	KindLegacy     Kind = types.LegacyTxType
	KindAccessList Kind = types.AccessListTxType
	KindDynamicFee Kind = types.DynamicFeeTxType
	KindBlob       Kind = types.BlobTxType
)

func (k Kind) String() string {
	switch k {
	case KindLegacy:
		return "legacy"
	case KindAccessList:
		return "access_list"
	case KindDynamicFee:
		return "dynamic_fee"
	case KindBlob:
		return "blob"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// CanonicalTransaction is a fully specified, unsigned transaction.
type CanonicalTransaction struct {
	Kind    Kind
	ChainID *big.Int
	From    *common.Address
	Tx      *types.Transaction
}

// Signer is the go-ethereum signer used both to hash and to attach signatures.
func (c *CanonicalTransaction) Signer() types.Signer {
	return types.LatestSignerForChainID(c.ChainID)
}

// SigningHash is the digest the backend signs.
func (c *CanonicalTransaction) SigningHash() common.Hash {
	return c.Signer().Hash(c.Tx)
}

// Encode returns the EIP-2718 encoding of the unsigned transaction.
func (c *CanonicalTransaction) Encode() ([]byte, error) {
	return c.Tx.MarshalBinary()
}

type Canonicalizer struct {
	policy *Policy
}

func NewCanonicalizer(policy *Policy) *Canonicalizer {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &Canonicalizer{policy: policy}
}

func (c *Canonicalizer) Policy() *Policy {
	return c.policy
}

func buildError(reason error, format string, args ...any) error {
	return signingError.BuildTransaction(reason, fmt.Sprintf(format, args...))
}

// Canonicalize turns a raw request into exactly one transaction kind, filling
// defaults from the policy. The result depends only on req and the policy.
func (c *Canonicalizer) Canonicalize(req *TransactionRequest) (*CanonicalTransaction, error) {
	if req == nil {
		return nil, buildError(signingError.ErrMissingField, "transaction request is empty")
	}

	// Step 1: payload
	var data []byte
	switch {
	case req.Input != nil && req.Data != nil:
		if !bytes.Equal(*req.Input, *req.Data) {
			return nil, buildError(signingError.ErrAmbiguousTransactionKind, "both input and data are set and differ")
		}
		data = *req.Input
	case req.Input != nil:
		data = *req.Input
	case req.Data != nil:
		data = *req.Data
	}

	// Step 2: kind
	kind, err := selectKind(req)
	if err != nil {
		return nil, err
	}

	// Step 3: required fields
	chainID, err := c.chainID(req)
	if err != nil {
		return nil, err
	}
	var missing []string
	if req.Nonce == nil {
		missing = append(missing, "nonce")
	}
	if req.Gas == nil {
		missing = append(missing, "gas")
	}
	if chainID == nil {
		missing = append(missing, "chainId")
	}
	if kind == KindBlob && req.To == nil {
		missing = append(missing, "to")
	}
	if len(missing) > 0 {
		return nil, buildError(signingError.ErrMissingField, "missing %s", strings.Join(missing, ", "))
	}

	nonce := uint64(*req.Nonce)
	gas := uint64(*req.Gas)
	value := new(big.Int)
	if req.Value != nil {
		value = new(big.Int).Set(req.Value.ToInt())
	}
	var accessList types.AccessList
	if req.AccessList != nil {
		accessList = *req.AccessList
	}

	// Step 4: fees and inner transaction
	var inner types.TxData
	switch kind {
	case KindLegacy, KindAccessList:
		gasPrice := new(big.Int).Set(c.policy.GasPrice)
		if req.GasPrice != nil {
			gasPrice = new(big.Int).Set(req.GasPrice.ToInt())
		}
		if kind == KindLegacy {
			inner = &types.LegacyTx{
				Nonce:    nonce,
				GasPrice: gasPrice,
				Gas:      gas,
				To:       req.To,
				Value:    value,
				Data:     data,
			}
		} else {
			inner = &types.AccessListTx{
				ChainID:    chainID,
				Nonce:      nonce,
				GasPrice:   gasPrice,
				Gas:        gas,
				To:         req.To,
				Value:      value,
				Data:       data,
				AccessList: accessList,
			}
		}

	case KindDynamicFee, KindBlob:
		tip, feeCap, err := c.feeMarket(req)
		if err != nil {
			return nil, err
		}
		if kind == KindDynamicFee {
			inner = &types.DynamicFeeTx{
				ChainID:    chainID,
				Nonce:      nonce,
				GasTipCap:  tip,
				GasFeeCap:  feeCap,
				Gas:        gas,
				To:         req.To,
				Value:      value,
				Data:       data,
				AccessList: accessList,
			}
		} else {
			blobTx, err := newBlobTx(req, chainID, nonce, gas, tip, feeCap, value, data, accessList)
			if err != nil {
				return nil, err
			}
			inner = blobTx
		}
	}

	return &CanonicalTransaction{
		Kind:    kind,
		ChainID: chainID,
		From:    req.From,
		Tx:      types.NewTx(inner),
	}, nil
}

func selectKind(req *TransactionRequest) (Kind, error) {
	feeMarket := req.hasFeeMarketFields()
	blob := req.hasBlobFields()

	if req.GasPrice != nil && (feeMarket || blob) {
		return 0, buildError(signingError.ErrAmbiguousTransactionKind, "gasPrice cannot be combined with fee market or blob fields")
	}

	var kind Kind
	if req.Type != nil {
		switch uint64(*req.Type) {
		case types.LegacyTxType:
			if feeMarket || blob || req.AccessList != nil {
				return 0, buildError(signingError.ErrAmbiguousTransactionKind, "type 0x0 does not accept fee market, blob or access list fields")
			}
			kind = KindLegacy
		case types.AccessListTxType:
			if feeMarket || blob {
				return 0, buildError(signingError.ErrAmbiguousTransactionKind, "type 0x1 does not accept fee market or blob fields")
			}
			kind = KindAccessList
		case types.DynamicFeeTxType:
			if req.GasPrice != nil || blob {
				return 0, buildError(signingError.ErrAmbiguousTransactionKind, "type 0x2 does not accept gasPrice or blob fields")
			}
			kind = KindDynamicFee
		case types.BlobTxType:
			kind = KindBlob
		default:
			return 0, buildError(signingError.ErrUnsupportedTransactionType, "transaction type %#x is not supported", uint64(*req.Type))
		}
	} else {
		switch {
		case blob:
			kind = KindBlob
		case req.GasPrice != nil && req.AccessList != nil:
			kind = KindAccessList
		case req.GasPrice != nil:
			kind = KindLegacy
		default:
			kind = KindDynamicFee
		}
	}

	if kind == KindBlob && (req.MaxFeePerBlobGas == nil || len(req.BlobVersionedHashes) == 0) {
		return 0, buildError(signingError.ErrAmbiguousTransactionKind, "blob transactions need both maxFeePerBlobGas and blobVersionedHashes")
	}
	return kind, nil
}

func (c *Canonicalizer) chainID(req *TransactionRequest) (*big.Int, error) {
	var chainID *big.Int
	switch {
	case req.ChainID != nil && c.policy.ChainID != nil:
		if req.ChainID.ToInt().Cmp(c.policy.ChainID) != 0 {
			return nil, buildError(signingError.ErrChainIDMismatch, "request chainId %s, signer configured for %s",
				req.ChainID.ToInt(), c.policy.ChainID)
		}
		chainID = new(big.Int).Set(c.policy.ChainID)
	case req.ChainID != nil:
		chainID = new(big.Int).Set(req.ChainID.ToInt())
	case c.policy.ChainID != nil:
		chainID = new(big.Int).Set(c.policy.ChainID)
	default:
		return nil, nil
	}
	if chainID.Sign() <= 0 {
		return nil, buildError(signingError.ErrInvalidField, "chainId must be positive")
	}
	return chainID, nil
}

// feeMarket fills the priority fee and fee cap. A missing priority fee never
// exceeds the supplied cap and a missing cap never falls below the tip.
func (c *Canonicalizer) feeMarket(req *TransactionRequest) (*big.Int, *big.Int, error) {
	var tip, feeCap *big.Int
	if req.MaxPriorityFeePerGas != nil {
		tip = new(big.Int).Set(req.MaxPriorityFeePerGas.ToInt())
	}
	if req.MaxFeePerGas != nil {
		feeCap = new(big.Int).Set(req.MaxFeePerGas.ToInt())
	}

	if tip == nil {
		tip = new(big.Int).Set(c.policy.MaxPriorityFeePerGas)
		if feeCap != nil && feeCap.Cmp(tip) < 0 {
			tip = new(big.Int).Set(feeCap)
		}
	}
	if feeCap == nil {
		feeCap = new(big.Int).Set(c.policy.MaxFeePerGas)
		if tip.Cmp(feeCap) > 0 {
			feeCap = new(big.Int).Set(tip)
		}
	}
	if tip.Cmp(feeCap) > 0 {
		return nil, nil, buildError(signingError.ErrInvalidField, "maxPriorityFeePerGas %s exceeds maxFeePerGas %s", tip, feeCap)
	}
	return tip, feeCap, nil
}

func newBlobTx(
	req *TransactionRequest,
	chainID *big.Int,
	nonce, gas uint64,
	tip, feeCap, value *big.Int,
	data []byte,
	accessList types.AccessList,
) (*types.BlobTx, error) {
	for i, h := range req.BlobVersionedHashes {
		if h[0] != blobCommitmentVersionKZG {
			return nil, buildError(signingError.ErrInvalidField, "blobVersionedHashes[%d] has unsupported version %#x", i, h[0])
		}
	}

	fields := map[string]*big.Int{
		"chainId":              chainID,
		"maxPriorityFeePerGas": tip,
		"maxFeePerGas":         feeCap,
		"value":                value,
		"maxFeePerBlobGas":     req.MaxFeePerBlobGas.ToInt(),
	}
	converted := make(map[string]*uint256.Int, len(fields))
	for name, v := range fields {
		u, overflow := uint256.FromBig(v)
		if overflow {
			return nil, buildError(signingError.ErrInvalidField, "%s does not fit in 256 bits", name)
		}
		converted[name] = u
	}

	hashes := make([]common.Hash, len(req.BlobVersionedHashes))
	copy(hashes, req.BlobVersionedHashes)

	return &types.BlobTx{
		ChainID:    converted["chainId"],
		Nonce:      nonce,
		GasTipCap:  converted["maxPriorityFeePerGas"],
		GasFeeCap:  converted["maxFeePerGas"],
		Gas:        gas,
		To:         *req.To,
		Value:      converted["value"],
		Data:       data,
		AccessList: accessList,
		BlobFeeCap: converted["maxFeePerBlobGas"],
		BlobHashes: hashes,
	}, nil
}

// ICanonicalizer builds canonical transactions from raw requests.
type ICanonicalizer interface {
	Canonicalize(req *TransactionRequest) (*CanonicalTransaction, error)
}

var _ ICanonicalizer = (*Canonicalizer)(nil)
