package rpc

import (
	"encoding/json"
	"fmt"

	"github.com/Layr-Labs/eigenx-remote-signer/pkg/transaction"
)

const (
	Version                  = "2.0"
	MethodEthSendTransaction = "eth_sendTransaction"
)

// SignRequest is the inbound JSON-RPC style envelope. Params must hold
// exactly one transaction request.
type SignRequest struct {
	ID      uint64                            `json:"id"`
	JSONRPC string                            `json:"jsonrpc"`
	Method  string                            `json:"method"`
	Params  []*transaction.TransactionRequest `json:"params"`
}

// SignResponse carries either Result or Error, never both. ID and JSONRPC
// always echo the request.
type SignResponse struct {
	ID      uint64  `json:"id"`
	JSONRPC string  `json:"jsonrpc"`
	Result  *string `json:"result,omitempty"`
	Error   *string `json:"error,omitempty"`
}

// DecodeSignRequest parses an envelope and checks its shape. Any error
// returned here is a malformed request, not a signing failure.
func DecodeSignRequest(body []byte) (*SignRequest, error) {
	var req SignRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if len(req.Params) != 1 {
		return nil, fmt.Errorf("params must contain exactly one transaction, got %d", len(req.Params))
	}
	if req.Params[0] == nil {
		return nil, fmt.Errorf("params[0] must be a transaction object")
	}
	return &req, nil
}

// Transaction returns the single transaction request.
func (r *SignRequest) Transaction() *transaction.TransactionRequest {
	if len(r.Params) == 0 {
		return nil
	}
	return r.Params[0]
}

func NewResultResponse(req *SignRequest, result string) *SignResponse {
	return &SignResponse{
		ID:      req.ID,
		JSONRPC: req.JSONRPC,
		Result:  &result,
	}
}

func NewErrorResponse(req *SignRequest, err error) *SignResponse {
	msg := err.Error()
	return &SignResponse{
		ID:      req.ID,
		JSONRPC: req.JSONRPC,
		Error:   &msg,
	}
}

func (r *SignResponse) IsError() bool {
	return r.Error != nil
}
