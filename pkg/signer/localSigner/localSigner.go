package localSigner

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signingError"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip32"
	"github.com/tyler-smith/go-bip39"
	"go.uber.org/zap"
)

// Source names the kind of key material a LocalSigner was built from
type Source string

const (
	SourcePrivateKey Source = "private_key"
	SourceMnemonic   Source = "mnemonic"
	SourceKeystore   Source = "keystore"
)

// LocalSigner holds a secp256k1 private key in process memory
type LocalSigner struct {
	logger     *zap.Logger
	source     Source
	privateKey *ecdsa.PrivateKey
	address    common.Address
}

func newLocalSigner(source Source, privateKey *ecdsa.PrivateKey, logger *zap.Logger) *LocalSigner {
	address := ethcrypto.PubkeyToAddress(privateKey.PublicKey)

	logger.Debug("Resolved local signer",
		zap.String("source", string(source)),
		zap.String("address", address.Hex()),
	)

	return &LocalSigner{
		logger:     logger,
		source:     source,
		privateKey: privateKey,
		address:    address,
	}
}

// NewPrivateKeySigner parses a 32 byte hex encoded private key, with or without 0x prefix.
func NewPrivateKeySigner(privateKeyHex string, logger *zap.Logger) (*LocalSigner, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x")
	if len(trimmed) != 64 {
		return nil, signingError.BackendResolution(signingError.ErrInvalidKeyFormat,
			fmt.Sprintf("private key must be 64 hex characters, got %d", len(trimmed)), nil)
	}

	// the decode error would quote the offending character, so it is dropped
	keyBytes, err := hex.DecodeString(trimmed)
	if err != nil {
		return nil, signingError.BackendResolution(signingError.ErrInvalidKeyFormat, "private key is not valid hex", nil)
	}

	privateKey, err := ethcrypto.ToECDSA(keyBytes)
	if err != nil {
		return nil, signingError.BackendResolution(signingError.ErrInvalidKeyFormat, "private key is not a valid secp256k1 scalar", nil)
	}

	return newLocalSigner(SourcePrivateKey, privateKey, logger), nil
}

// NewMnemonicSigner derives the key at m/44'/60'/0'/0/{index} from a BIP-39 phrase
// with an empty passphrase.
func NewMnemonicSigner(phrase string, index uint32, logger *zap.Logger) (*LocalSigner, error) {
	if index >= bip32.FirstHardenedChild {
		return nil, signingError.BackendResolution(signingError.ErrInvalidMnemonic,
			fmt.Sprintf("derivation index %d out of range", index), nil)
	}

	normalized := strings.Join(strings.Fields(phrase), " ")
	seed, err := bip39.NewSeedWithErrorChecking(normalized, "")
	if err != nil {
		return nil, signingError.BackendResolution(signingError.ErrInvalidMnemonic, "mnemonic failed word list or checksum validation", nil)
	}

	key, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, signingError.BackendResolution(signingError.ErrInvalidMnemonic, "failed to derive master key", err)
	}

	path := []uint32{
		bip32.FirstHardenedChild + 44,
		bip32.FirstHardenedChild + 60,
		bip32.FirstHardenedChild + 0,
		0,
		index,
	}
	for _, child := range path {
		key, err = key.NewChildKey(child)
		if err != nil {
			return nil, signingError.BackendResolution(signingError.ErrInvalidMnemonic, "failed to derive child key", err)
		}
	}

	privateKey, err := ethcrypto.ToECDSA(key.Key)
	if err != nil {
		return nil, signingError.BackendResolution(signingError.ErrInvalidMnemonic, "derived key is not a valid secp256k1 scalar", nil)
	}

	return newLocalSigner(SourceMnemonic, privateKey, logger), nil
}

// NewKeystoreSigner reads and decrypts a Web3 secret storage file.
func NewKeystoreSigner(path string, password string, logger *zap.Logger) (*LocalSigner, error) {
	keyJSON, err := os.ReadFile(path)
	if err != nil {
		return nil, signingError.BackendResolution(signingError.ErrKeystoreDecryption,
			fmt.Sprintf("failed to read keystore file %s", path), err)
	}

	key, err := keystore.DecryptKey(keyJSON, password)
	if err != nil {
		return nil, signingError.BackendResolution(signingError.ErrKeystoreDecryption,
			fmt.Sprintf("failed to decrypt keystore file %s", path), err)
	}

	return newLocalSigner(SourceKeystore, key.PrivateKey, logger), nil
}

func (l *LocalSigner) Source() Source {
	return l.source
}

func (l *LocalSigner) Address() common.Address {
	return l.address
}

// SignHash signs a 32 byte digest and returns [R || S || V] with V in {0, 1}.
func (l *LocalSigner) SignHash(ctx context.Context, hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("hash must be exactly 32 bytes, got %d", len(hash))
	}

	signature, err := ethcrypto.Sign(hash, l.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign hash with %s key %s: %w", l.source, l.address.Hex(), err)
	}

	l.logger.Debug("Signed hash with local key",
		zap.String("source", string(l.source)),
		zap.String("address", l.address.Hex()),
	)

	return signature, nil
}
