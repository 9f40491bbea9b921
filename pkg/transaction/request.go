package transaction

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// TransactionRequest is the loosely specified transaction object accepted by
// eth_sendTransaction. Every field is optional on the wire.
type TransactionRequest struct {
	From                 *common.Address   `json:"from,omitempty"`
	To                   *common.Address   `json:"to,omitempty"`
	Gas                  *hexutil.Uint64   `json:"gas,omitempty"`
	GasPrice             *hexutil.Big      `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big      `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big      `json:"maxPriorityFeePerGas,omitempty"`
	MaxFeePerBlobGas     *hexutil.Big      `json:"maxFeePerBlobGas,omitempty"`
	BlobVersionedHashes  []common.Hash     `json:"blobVersionedHashes,omitempty"`
	Value                *hexutil.Big      `json:"value,omitempty"`
	Nonce                *hexutil.Uint64   `json:"nonce,omitempty"`
	ChainID              *hexutil.Big      `json:"chainId,omitempty"`
	Input                *hexutil.Bytes    `json:"input,omitempty"`
	Data                 *hexutil.Bytes    `json:"data,omitempty"`
	AccessList           *types.AccessList `json:"accessList,omitempty"`
	Type                 *hexutil.Uint64   `json:"type,omitempty"`
}

// Hash is a keccak256 of the JSON form of the request, used to correlate log lines.
func (r *TransactionRequest) Hash() common.Hash {
	b, err := json.Marshal(r)
	if err != nil {
		return common.Hash{}
	}
	return ethcrypto.Keccak256Hash(b)
}

func (r *TransactionRequest) hasFeeMarketFields() bool {
	return r.MaxFeePerGas != nil || r.MaxPriorityFeePerGas != nil
}

func (r *TransactionRequest) hasBlobFields() bool {
	return r.MaxFeePerBlobGas != nil || r.BlobVersionedHashes != nil
}
