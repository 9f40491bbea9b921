package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/Layr-Labs/eigenx-remote-signer/pkg/rpc"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/transaction"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// IRemoteSigner is the client side of the signer HTTP surface.
type IRemoteSigner interface {
	SetHttpClient(client *http.Client)

	// Health calls GET /healthz.
	Health(ctx context.Context) error

	// PublicAddress calls GET /pub.
	PublicAddress(ctx context.Context) (common.Address, error)

	// SignTransaction sends one eth_sendTransaction envelope and decodes the
	// signed transaction from the result.
	SignTransaction(ctx context.Context, id uint64, tx *transaction.TransactionRequest) (*types.Transaction, error)

	// SignTx signs a transaction built locally, e.g. by a contract binding.
	SignTx(ctx context.Context, from common.Address, chainID *big.Int, tx *types.Transaction) (*types.Transaction, error)
}

var _ IRemoteSigner = (*Client)(nil)

type Config struct {
	BaseURL string
	Timeout time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		BaseURL: "http://localhost:8000",
		Timeout: 30 * time.Second,
	}
}

// RPCError is an error envelope returned by the signer.
type RPCError struct {
	ID         uint64
	StatusCode int
	Message    string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("signer returned error for request %d (status %d): %s", e.ID, e.StatusCode, e.Message)
}

type Client struct {
	config     *Config
	httpClient *http.Client
	logger     *zap.Logger
	nextID     atomic.Uint64
}

func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Client{
		config: &Config{
			BaseURL: strings.TrimRight(cfg.BaseURL, "/"),
			Timeout: cfg.Timeout,
		},
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}, nil
}

func (c *Client) SetHttpClient(client *http.Client) {
	c.httpClient = client
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to send request to %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response from %s: %w", path, err)
	}
	return resp.StatusCode, respBody, nil
}

func (c *Client) Health(ctx context.Context) error {
	status, body, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("health check returned status %d", status)
	}

	var msg string
	if err := json.Unmarshal(body, &msg); err != nil || msg != "OK" {
		return fmt.Errorf("unexpected health check body: %s", strings.TrimSpace(string(body)))
	}
	return nil
}

func (c *Client) PublicAddress(ctx context.Context) (common.Address, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/pub", nil)
	if err != nil {
		return common.Address{}, err
	}
	if status != http.StatusOK {
		var errResp struct {
			Error string `json:"error"`
		}
		if jsonErr := json.Unmarshal(body, &errResp); jsonErr == nil && errResp.Error != "" {
			return common.Address{}, fmt.Errorf("failed to get public address: %s", errResp.Error)
		}
		return common.Address{}, fmt.Errorf("failed to get public address: status %d", status)
	}

	addr := strings.TrimSpace(string(body))
	if !common.IsHexAddress(addr) {
		return common.Address{}, fmt.Errorf("invalid address returned: %q", addr)
	}
	return common.HexToAddress(addr), nil
}

func (c *Client) SignTransaction(ctx context.Context, id uint64, tx *transaction.TransactionRequest) (*types.Transaction, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction request cannot be nil")
	}

	payload, err := json.Marshal(&rpc.SignRequest{
		ID:      id,
		JSONRPC: rpc.Version,
		Method:  rpc.MethodEthSendTransaction,
		Params:  []*transaction.TransactionRequest{tx},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal sign request: %w", err)
	}

	status, body, err := c.do(ctx, http.MethodPost, "/", payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusBadRequest || status == http.StatusTooManyRequests {
		return nil, fmt.Errorf("signer rejected request with status %d: %s", status, strings.TrimSpace(string(body)))
	}

	var resp rpc.SignResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode sign response (status %d): %w", status, err)
	}
	if resp.ID != id {
		return nil, fmt.Errorf("response id %d does not match request id %d", resp.ID, id)
	}
	if resp.Error != nil {
		return nil, &RPCError{ID: resp.ID, StatusCode: status, Message: *resp.Error}
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("sign response for request %d has neither result nor error", id)
	}

	raw, err := hexutil.Decode(*resp.Result)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signed transaction: %w", err)
	}
	var signed types.Transaction
	if err := signed.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("failed to unmarshal signed transaction: %w", err)
	}

	c.logger.Sugar().Debugw("Received signed transaction", "id", id, "txHash", signed.Hash().Hex())
	return &signed, nil
}

// SignTx converts a locally built transaction into a request and signs it
// remotely.
func (c *Client) SignTx(ctx context.Context, from common.Address, chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	req := RequestFromTransaction(from, chainID, tx)
	return c.SignTransaction(ctx, c.nextID.Add(1), req)
}

// RequestFromTransaction describes tx as a request that canonicalizes back to
// the same transaction kind. chainID may be nil for typed transactions, which
// carry their own; unsigned legacy transactions do not.
func RequestFromTransaction(from common.Address, chainID *big.Int, tx *types.Transaction) *transaction.TransactionRequest {
	gas := hexutil.Uint64(tx.Gas())
	nonce := hexutil.Uint64(tx.Nonce())
	txType := hexutil.Uint64(tx.Type())
	input := hexutil.Bytes(tx.Data())

	req := &transaction.TransactionRequest{
		From:  &from,
		To:    tx.To(),
		Gas:   &gas,
		Nonce: &nonce,
		Type:  &txType,
		Input: &input,
		Value: (*hexutil.Big)(new(big.Int).Set(tx.Value())),
	}
	switch {
	case chainID != nil:
		req.ChainID = (*hexutil.Big)(new(big.Int).Set(chainID))
	case tx.Type() != types.LegacyTxType:
		req.ChainID = (*hexutil.Big)(new(big.Int).Set(tx.ChainId()))
	}

	switch tx.Type() {
	case types.LegacyTxType:
		req.GasPrice = (*hexutil.Big)(new(big.Int).Set(tx.GasPrice()))
	case types.AccessListTxType:
		req.GasPrice = (*hexutil.Big)(new(big.Int).Set(tx.GasPrice()))
		accessList := tx.AccessList()
		req.AccessList = &accessList
	default:
		req.MaxFeePerGas = (*hexutil.Big)(new(big.Int).Set(tx.GasFeeCap()))
		req.MaxPriorityFeePerGas = (*hexutil.Big)(new(big.Int).Set(tx.GasTipCap()))
		accessList := tx.AccessList()
		if len(accessList) > 0 {
			req.AccessList = &accessList
		}
		if tx.Type() == types.BlobTxType {
			req.MaxFeePerBlobGas = (*hexutil.Big)(new(big.Int).Set(tx.BlobGasFeeCap()))
			req.BlobVersionedHashes = tx.BlobHashes()
		}
	}
	return req
}
