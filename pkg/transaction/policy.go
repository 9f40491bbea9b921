package transaction

import (
	"math/big"
)

// DefaultGasPrice is applied to legacy and access list transactions that do
// not carry a gasPrice, in wei.
const DefaultGasPrice = 90_000

// Policy holds the defaults used to fill fields a request leaves out.
type Policy struct {
	GasPrice             *big.Int
	MaxPriorityFeePerGas *big.Int
	MaxFeePerGas         *big.Int

	// ChainID, when set, is used for requests without chainId and must match
	// requests that carry one.
	ChainID *big.Int
}

func DefaultPolicy() *Policy {
	return &Policy{
		GasPrice:             big.NewInt(DefaultGasPrice),
		MaxPriorityFeePerGas: big.NewInt(DefaultGasPrice),
		MaxFeePerGas:         big.NewInt(DefaultGasPrice),
	}
}

// WithChainID returns a copy of the policy bound to chainID.
func (p *Policy) WithChainID(chainID *big.Int) *Policy {
	c := *p
	if chainID != nil {
		c.ChainID = new(big.Int).Set(chainID)
	}
	return &c
}
