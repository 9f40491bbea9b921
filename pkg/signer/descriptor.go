package signer

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

type Kind string

const (
	KindPrivateKey    Kind = "private_key"
	KindMnemonic      Kind = "mnemonic"
	KindKeystore      Kind = "keystore"
	KindAwsKms        Kind = "awskms"
	KindGcpKms        Kind = "gcpkms"
	KindAlicloudKms   Kind = "alicloudkms"
	KindAzureKeyVault Kind = "azurekeyvault"
)

const redacted = "<redacted>"

// Kinds lists every backend kind a Descriptor may carry, supported or not.
func Kinds() []Kind {
	return []Kind{
		KindPrivateKey,
		KindMnemonic,
		KindKeystore,
		KindAwsKms,
		KindGcpKms,
		KindAlicloudKms,
		KindAzureKeyVault,
	}
}

func ParseKind(s string) (Kind, bool) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

type PrivateKeyConfig struct {
	Key string
}

type MnemonicConfig struct {
	Phrase string
	Index  uint32
}

type KeystoreConfig struct {
	Path     string
	Password string
}

type AwsKmsConfig struct {
	KeyID  string
	Region string
}

type GcpKmsConfig struct {
	ProjectID string
	Location  string
	KeyRing   string
	Key       string
	Version   string
}

type AlicloudKmsConfig struct {
	KeyID           string
	KeyVersionID    string
	Region          string
	AccessKeyID     string
	AccessKeySecret string
}

type AzureKeyVaultConfig struct {
	Key    string
	Secret string
}

// Descriptor selects one signer backend and carries the parameters needed to
// resolve it. Exactly one variant matching Kind is populated.
type Descriptor struct {
	Kind Kind

	PrivateKey    *PrivateKeyConfig
	Mnemonic      *MnemonicConfig
	Keystore      *KeystoreConfig
	AwsKms        *AwsKmsConfig
	GcpKms        *GcpKmsConfig
	AlicloudKms   *AlicloudKmsConfig
	AzureKeyVault *AzureKeyVaultConfig
}

// MarshalJSON renders the descriptor with every secret replaced by "<redacted>".
func (d *Descriptor) MarshalJSON() ([]byte, error) {
	out := map[string]any{"type": string(d.Kind)}

	switch d.Kind {
	case KindPrivateKey:
		out["private_key"] = redacted
	case KindMnemonic:
		out["mnemonic"] = redacted
		if d.Mnemonic != nil {
			out["index"] = d.Mnemonic.Index
		}
	case KindKeystore:
		if d.Keystore != nil {
			out["path"] = d.Keystore.Path
		}
		out["password"] = redacted
	case KindAwsKms:
		if d.AwsKms != nil {
			out["key"] = d.AwsKms.KeyID
			if d.AwsKms.Region != "" {
				out["region"] = d.AwsKms.Region
			}
		}
	case KindGcpKms:
		if d.GcpKms != nil {
			out["project_id"] = d.GcpKms.ProjectID
			out["location"] = d.GcpKms.Location
			out["key_ring"] = d.GcpKms.KeyRing
			out["key"] = d.GcpKms.Key
			out["version"] = d.GcpKms.Version
		}
	case KindAlicloudKms:
		if d.AlicloudKms != nil {
			out["key"] = d.AlicloudKms.KeyID
			out["key_version"] = d.AlicloudKms.KeyVersionID
			out["region"] = d.AlicloudKms.Region
			out["access_key_id"] = d.AlicloudKms.AccessKeyID
		}
		out["access_key_secret"] = redacted
	case KindAzureKeyVault:
		if d.AzureKeyVault != nil {
			out["key"] = d.AzureKeyVault.Key
		}
		out["secret"] = redacted
	}
	return json.Marshal(out)
}

// Fingerprint hashes every field of the descriptor, secrets included. It is
// only used as an in-memory cache key and must never be logged.
func (d *Descriptor) Fingerprint() common.Hash {
	parts := []string{string(d.Kind)}
	if d.PrivateKey != nil {
		parts = append(parts, d.PrivateKey.Key)
	}
	if d.Mnemonic != nil {
		parts = append(parts, d.Mnemonic.Phrase, strconv.FormatUint(uint64(d.Mnemonic.Index), 10))
	}
	if d.Keystore != nil {
		parts = append(parts, d.Keystore.Path, d.Keystore.Password)
	}
	if d.AwsKms != nil {
		parts = append(parts, d.AwsKms.KeyID, d.AwsKms.Region)
	}
	if d.GcpKms != nil {
		parts = append(parts, d.GcpKms.ProjectID, d.GcpKms.Location, d.GcpKms.KeyRing, d.GcpKms.Key, d.GcpKms.Version)
	}
	if d.AlicloudKms != nil {
		parts = append(parts, d.AlicloudKms.KeyID, d.AlicloudKms.KeyVersionID, d.AlicloudKms.Region,
			d.AlicloudKms.AccessKeyID, d.AlicloudKms.AccessKeySecret)
	}
	if d.AzureKeyVault != nil {
		parts = append(parts, d.AzureKeyVault.Key, d.AzureKeyVault.Secret)
	}
	return ethcrypto.Keccak256Hash([]byte(strings.Join(parts, "\x00")))
}
