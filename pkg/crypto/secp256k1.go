package crypto

import (
	"crypto/ecdsa"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	oidPublicKeyECDSA = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidSecp256k1      = asn1.ObjectIdentifier{1, 3, 132, 0, 10}

	secp256k1N     = ethcrypto.S256().Params().N
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// ASN.1 structures used by cloud KMS providers for secp256k1 keys and signatures
type asn1EcSig struct {
	R *big.Int
	S *big.Int
}

type asn1EcPublicKey struct {
	EcPublicKeyInfo asn1EcPublicKeyInfo
	PublicKey       asn1.BitString
}

type asn1EcPublicKeyInfo struct {
	Algorithm  asn1.ObjectIdentifier
	Parameters asn1.ObjectIdentifier
}

// ParseDERPublicKey parses a DER-encoded SubjectPublicKeyInfo holding a
// secp256k1 point. crypto/x509 does not know the curve, hence the manual parse.
func ParseDERPublicKey(derBytes []byte) (*ecdsa.PublicKey, error) {
	var asn1pubk asn1EcPublicKey
	rest, err := asn1.Unmarshal(derBytes, &asn1pubk)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ASN.1 public key: %w", err)
	}
	if len(rest) != 0 {
		return nil, fmt.Errorf("trailing data after ASN.1 public key")
	}
	if !asn1pubk.EcPublicKeyInfo.Algorithm.Equal(oidPublicKeyECDSA) {
		return nil, fmt.Errorf("unexpected public key algorithm %s", asn1pubk.EcPublicKeyInfo.Algorithm)
	}
	if !asn1pubk.EcPublicKeyInfo.Parameters.Equal(oidSecp256k1) {
		return nil, fmt.Errorf("unexpected curve %s, expected secp256k1", asn1pubk.EcPublicKeyInfo.Parameters)
	}

	return ethcrypto.UnmarshalPubkey(asn1pubk.PublicKey.Bytes)
}

// ParsePEMPublicKey parses a PEM "PUBLIC KEY" block holding a secp256k1 point.
func ParsePEMPublicKey(pemBytes []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in public key")
	}
	if block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("unexpected PEM block type %q", block.Type)
	}
	return ParseDERPublicKey(block.Bytes)
}

// MarshalDERPublicKey encodes a secp256k1 public key as SubjectPublicKeyInfo.
func MarshalDERPublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	point := ethcrypto.FromECDSAPub(pub)
	if point == nil {
		return nil, fmt.Errorf("public key is nil")
	}
	return asn1.Marshal(asn1EcPublicKey{
		EcPublicKeyInfo: asn1EcPublicKeyInfo{
			Algorithm:  oidPublicKeyECDSA,
			Parameters: oidSecp256k1,
		},
		PublicKey: asn1.BitString{Bytes: point, BitLength: len(point) * 8},
	})
}

// MarshalPEMPublicKey encodes a secp256k1 public key as a PEM "PUBLIC KEY" block.
func MarshalPEMPublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := MarshalDERPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// MarshalDERSignature encodes r and s as an ASN.1 ECDSA-Sig-Value.
func MarshalDERSignature(r, s *big.Int) ([]byte, error) {
	return asn1.Marshal(asn1EcSig{R: r, S: s})
}

// ParseDERSignature decodes an ASN.1 ECDSA-Sig-Value.
func ParseDERSignature(derSig []byte) (*big.Int, *big.Int, error) {
	var sig asn1EcSig
	rest, err := asn1.Unmarshal(derSig, &sig)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse ASN.1 signature: %w", err)
	}
	if len(rest) != 0 {
		return nil, nil, fmt.Errorf("trailing data after ASN.1 signature")
	}
	if sig.R == nil || sig.S == nil || sig.R.Sign() <= 0 || sig.S.Sign() <= 0 {
		return nil, nil, fmt.Errorf("signature values must be positive")
	}
	if sig.R.Cmp(secp256k1N) >= 0 || sig.S.Cmp(secp256k1N) >= 0 {
		return nil, nil, fmt.Errorf("signature values out of range")
	}
	return sig.R, sig.S, nil
}

// RecoverableSignature turns a DER signature over digest into the 65-byte
// [R || S || V] form with V in {0, 1}. S is normalised to the lower half of
// the curve order and V is chosen so that the signature recovers to expected.
func RecoverableSignature(digest []byte, derSig []byte, expected *ecdsa.PublicKey) ([]byte, error) {
	if len(digest) != 32 {
		return nil, fmt.Errorf("digest must be exactly 32 bytes, got %d", len(digest))
	}
	if expected == nil {
		return nil, fmt.Errorf("expected public key is nil")
	}

	r, s, err := ParseDERSignature(derSig)
	if err != nil {
		return nil, err
	}

	// malleability protection (low-S canonicalization)
	if s.Cmp(secp256k1HalfN) > 0 {
		s = new(big.Int).Sub(secp256k1N, s)
	}

	signature := make([]byte, 65)
	r.FillBytes(signature[0:32])
	s.FillBytes(signature[32:64])

	expectedBytes := ethcrypto.FromECDSAPub(expected)
	for recoveryId := byte(0); recoveryId < 2; recoveryId++ {
		signature[64] = recoveryId

		recovered, err := ethcrypto.Ecrecover(digest, signature)
		if err != nil {
			continue
		}
		if string(recovered) == string(expectedBytes) {
			return signature, nil
		}
	}

	return nil, fmt.Errorf("could not determine valid recovery ID - signature recovery failed")
}
