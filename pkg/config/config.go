package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signer"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signingError"
	"github.com/tyler-smith/go-bip32"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

// Environment variable names for the remote signer
const (
	EnvSignerType = "SIGNER_TYPE"

	EnvPrivateKey = "SIGNER_PRIVATE_KEY"

	EnvMnemonic      = "SIGNER_MNEMONIC"
	EnvMnemonicIndex = "SIGNER_MNEMONIC_INDEX"

	EnvKeystorePath     = "SIGNER_KEYSTORE_PATH"
	EnvKeystorePassword = "SIGNER_KEYSTORE_PASSWORD"

	EnvAwsKmsKey    = "SIGNER_AWSKMS_KEY"
	EnvAwsKmsRegion = "SIGNER_AWSKMS_REGION"

	EnvGcpKmsProjectID = "SIGNER_GCPKMS_PROJECT_ID"
	EnvGcpKmsLocation  = "SIGNER_GCPKMS_LOCATION"
	EnvGcpKmsKeyRing   = "SIGNER_GCPKMS_KEY_RING"
	EnvGcpKmsKey       = "SIGNER_GCPKMS_KEY"
	EnvGcpKmsVersion   = "SIGNER_GCPKMS_VERSION"

	EnvAlicloudKmsKey             = "SIGNER_ALICLOUDKMS_KEY"
	EnvAlicloudKmsKeyVersion      = "SIGNER_ALICLOUDKMS_KEY_VERSION"
	EnvAlicloudKmsRegion          = "SIGNER_ALICLOUDKMS_REGION"
	EnvAlicloudKmsAccessKeyID     = "SIGNER_ALICLOUDKMS_ACCESS_KEY_ID"
	EnvAlicloudKmsAccessKeySecret = "SIGNER_ALICLOUDKMS_ACCESS_KEY_SECRET"

	EnvAzureKeyVaultKey    = "SIGNER_AZUREKEYVAULT_KEY"
	EnvAzureKeyVaultSecret = "SIGNER_AZUREKEYVAULT_SECRET"

	EnvPort      = "PORT"
	EnvChainID   = "SIGNER_CHAIN_ID"
	EnvDebug     = "SIGNER_DEBUG"
	EnvCacheSize = "SIGNER_CACHE_SIZE"
	EnvCacheTTL  = "SIGNER_CACHE_TTL"
	EnvRateLimit = "SIGNER_RATE_LIMIT"
	EnvRateBurst = "SIGNER_RATE_BURST"

	EnvJournalType          = "SIGNER_JOURNAL_TYPE"
	EnvJournalPath          = "SIGNER_JOURNAL_PATH"
	EnvJournalCapacity      = "SIGNER_JOURNAL_CAPACITY"
	EnvJournalRedisAddress  = "SIGNER_JOURNAL_REDIS_ADDRESS"
	EnvJournalRedisPassword = "SIGNER_JOURNAL_REDIS_PASSWORD"
	EnvJournalRedisDB       = "SIGNER_JOURNAL_REDIS_DB"
)

const DefaultPort = 8000

type ChainId uint64

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_EthereumSepolia ChainId = 11155111
	ChainId_EthereumHolesky ChainId = 17000
	ChainId_EthereumAnvil   ChainId = 31337
)

type ChainName string

const (
	ChainName_EthereumMainnet ChainName = "mainnet"
	ChainName_EthereumSepolia ChainName = "sepolia"
	ChainName_EthereumHolesky ChainName = "holesky"
	ChainName_EthereumAnvil   ChainName = "devnet"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_EthereumMainnet: ChainName_EthereumMainnet,
	ChainId_EthereumSepolia: ChainName_EthereumSepolia,
	ChainId_EthereumHolesky: ChainName_EthereumHolesky,
	ChainId_EthereumAnvil:   ChainName_EthereumAnvil,
}

// ChainNameFor returns a well known name for chainId, or "custom".
func ChainNameFor(chainId ChainId) ChainName {
	if name, ok := ChainIdToName[chainId]; ok {
		return name
	}
	return "custom"
}

// SignerConfig is the flat, flag-shaped form of a signer.Descriptor. Only the
// fields belonging to Type are read.
type SignerConfig struct {
	Type string `json:"type"`

	PrivateKey string `json:"-"`

	Mnemonic      string `json:"-"`
	MnemonicIndex uint64 `json:"mnemonic_index"`

	KeystorePath     string `json:"keystore_path"`
	KeystorePassword string `json:"-"`

	AwsKmsKey    string `json:"awskms_key"`
	AwsKmsRegion string `json:"awskms_region"`

	GcpKmsProjectID string `json:"gcpkms_project_id"`
	GcpKmsLocation  string `json:"gcpkms_location"`
	GcpKmsKeyRing   string `json:"gcpkms_key_ring"`
	GcpKmsKey       string `json:"gcpkms_key"`
	GcpKmsVersion   string `json:"gcpkms_version"`

	AlicloudKmsKey             string `json:"alicloudkms_key"`
	AlicloudKmsKeyVersion      string `json:"alicloudkms_key_version"`
	AlicloudKmsRegion          string `json:"alicloudkms_region"`
	AlicloudKmsAccessKeyID     string `json:"alicloudkms_access_key_id"`
	AlicloudKmsAccessKeySecret string `json:"-"`

	AzureKeyVaultKey    string `json:"azurekeyvault_key"`
	AzureKeyVaultSecret string `json:"-"`
}

func required(errs field.ErrorList, value string, path string) field.ErrorList {
	if strings.TrimSpace(value) == "" {
		return append(errs, field.Required(field.NewPath(path), fmt.Sprintf("%s is required", path)))
	}
	return errs
}

func (sc *SignerConfig) validate() field.ErrorList {
	var allErrors field.ErrorList

	if sc.Type == "" {
		return append(allErrors, field.Required(field.NewPath("type"), "signer type is required"))
	}
	kind, ok := signer.ParseKind(sc.Type)
	if !ok {
		supported := make([]string, 0, len(signer.Kinds()))
		for _, k := range signer.Kinds() {
			supported = append(supported, string(k))
		}
		return append(allErrors, field.NotSupported(field.NewPath("type"), sc.Type, supported))
	}

	switch kind {
	case signer.KindPrivateKey:
		allErrors = required(allErrors, sc.PrivateKey, "private-key")
	case signer.KindMnemonic:
		allErrors = required(allErrors, sc.Mnemonic, "mnemonic")
		if sc.MnemonicIndex >= uint64(bip32.FirstHardenedChild) {
			allErrors = append(allErrors, field.Invalid(field.NewPath("mnemonic.index"), sc.MnemonicIndex,
				fmt.Sprintf("must be below %d", uint64(bip32.FirstHardenedChild))))
		}
	case signer.KindKeystore:
		allErrors = required(allErrors, sc.KeystorePath, "keystore.path")
		allErrors = required(allErrors, sc.KeystorePassword, "keystore.password")
	case signer.KindAwsKms:
		allErrors = required(allErrors, sc.AwsKmsKey, "awskms.key")
	case signer.KindGcpKms:
		allErrors = required(allErrors, sc.GcpKmsProjectID, "gcpkms.project_id")
		allErrors = required(allErrors, sc.GcpKmsLocation, "gcpkms.location")
		allErrors = required(allErrors, sc.GcpKmsKeyRing, "gcpkms.key_ring")
		allErrors = required(allErrors, sc.GcpKmsKey, "gcpkms.key")
		allErrors = required(allErrors, sc.GcpKmsVersion, "gcpkms.version")
	case signer.KindAlicloudKms:
		allErrors = required(allErrors, sc.AlicloudKmsKey, "alicloudkms.key")
		allErrors = required(allErrors, sc.AlicloudKmsRegion, "alicloudkms.region")
		allErrors = required(allErrors, sc.AlicloudKmsAccessKeyID, "alicloudkms.access_key_id")
		allErrors = required(allErrors, sc.AlicloudKmsAccessKeySecret, "alicloudkms.access_key_secret")
	case signer.KindAzureKeyVault:
		allErrors = required(allErrors, sc.AzureKeyVaultKey, "azurekeyvault.key")
		allErrors = required(allErrors, sc.AzureKeyVaultSecret, "azurekeyvault.secret")
	}
	return allErrors
}

// Validate reports every missing or unsupported key at once. The returned
// error is a configuration *signingError.Error; it names keys, never values
// of secret keys.
func (sc *SignerConfig) Validate() error {
	return toConfigurationError(sc.validate())
}

// Descriptor validates the configuration and builds the immutable descriptor
// the resolver works from.
func (sc *SignerConfig) Descriptor() (*signer.Descriptor, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	kind, _ := signer.ParseKind(sc.Type)

	d := &signer.Descriptor{Kind: kind}
	switch kind {
	case signer.KindPrivateKey:
		d.PrivateKey = &signer.PrivateKeyConfig{Key: strings.TrimSpace(sc.PrivateKey)}
	case signer.KindMnemonic:
		d.Mnemonic = &signer.MnemonicConfig{Phrase: strings.TrimSpace(sc.Mnemonic), Index: uint32(sc.MnemonicIndex)}
	case signer.KindKeystore:
		d.Keystore = &signer.KeystoreConfig{Path: sc.KeystorePath, Password: sc.KeystorePassword}
	case signer.KindAwsKms:
		d.AwsKms = &signer.AwsKmsConfig{KeyID: sc.AwsKmsKey, Region: sc.AwsKmsRegion}
	case signer.KindGcpKms:
		d.GcpKms = &signer.GcpKmsConfig{
			ProjectID: sc.GcpKmsProjectID,
			Location:  sc.GcpKmsLocation,
			KeyRing:   sc.GcpKmsKeyRing,
			Key:       sc.GcpKmsKey,
			Version:   sc.GcpKmsVersion,
		}
	case signer.KindAlicloudKms:
		d.AlicloudKms = &signer.AlicloudKmsConfig{
			KeyID:           sc.AlicloudKmsKey,
			KeyVersionID:    sc.AlicloudKmsKeyVersion,
			Region:          sc.AlicloudKmsRegion,
			AccessKeyID:     sc.AlicloudKmsAccessKeyID,
			AccessKeySecret: sc.AlicloudKmsAccessKeySecret,
		}
	case signer.KindAzureKeyVault:
		d.AzureKeyVault = &signer.AzureKeyVaultConfig{Key: sc.AzureKeyVaultKey, Secret: sc.AzureKeyVaultSecret}
	}
	return d, nil
}

type JournalType string

const (
	JournalTypeNone   JournalType = "none"
	JournalTypeMemory JournalType = "memory"
	JournalTypeBadger JournalType = "badger"
	JournalTypeRedis  JournalType = "redis"
)

type JournalConfig struct {
	Type          JournalType `json:"type"`
	Path          string      `json:"path"`
	Capacity      int         `json:"capacity"`
	RedisAddress  string      `json:"redis_address"`
	RedisPassword string      `json:"-"`
	RedisDB       int         `json:"redis_db"`
}

func (jc *JournalConfig) validate() field.ErrorList {
	var allErrors field.ErrorList
	switch jc.Type {
	case "", JournalTypeNone:
	case JournalTypeMemory:
		if jc.Capacity < 0 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("journal.capacity"), jc.Capacity, "must not be negative"))
		}
	case JournalTypeBadger:
		allErrors = required(allErrors, jc.Path, "journal.path")
	case JournalTypeRedis:
		allErrors = required(allErrors, jc.RedisAddress, "journal.redis.address")
		if jc.RedisDB < 0 {
			allErrors = append(allErrors, field.Invalid(field.NewPath("journal.redis.db"), jc.RedisDB, "must not be negative"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(field.NewPath("journal.type"), string(jc.Type), []string{
			string(JournalTypeNone), string(JournalTypeMemory), string(JournalTypeBadger), string(JournalTypeRedis),
		}))
	}
	return allErrors
}

// RemoteSignerConfig represents the complete process configuration
type RemoteSignerConfig struct {
	Signer SignerConfig `json:"signer"`

	Port    int     `json:"port"`
	ChainID ChainId `json:"chain_id"`

	CacheSize int           `json:"cache_size"`
	CacheTTL  time.Duration `json:"cache_ttl"`

	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`

	Journal JournalConfig `json:"journal"`

	Debug bool `json:"debug"`
}

// Validate aggregates signer, listener, cache and journal errors.
func (c *RemoteSignerConfig) Validate() error {
	allErrors := c.Signer.validate()

	if c.Port < 1 || c.Port > 65535 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("port"), c.Port, "must be between 1-65535"))
	}
	if c.CacheSize < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("cache.size"), c.CacheSize, "must not be negative"))
	}
	if c.CacheTTL < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("cache.ttl"), c.CacheTTL.String(), "must not be negative"))
	}
	if c.RateLimit < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rate-limit"), c.RateLimit, "must not be negative"))
	}
	if c.RateBurst < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("rate-burst"), c.RateBurst, "must not be negative"))
	}
	allErrors = append(allErrors, c.Journal.validate()...)

	return toConfigurationError(allErrors)
}

// ChainIDBig returns the configured chain id, or nil when none is set.
func (c *RemoteSignerConfig) ChainIDBig() *big.Int {
	if c.ChainID == 0 {
		return nil
	}
	return new(big.Int).SetUint64(uint64(c.ChainID))
}

func toConfigurationError(allErrors field.ErrorList) error {
	if len(allErrors) == 0 {
		return nil
	}
	reason := signingError.ErrRequiredConfigKeyNotFound
	for _, e := range allErrors {
		if e.Field == "type" && e.Type == field.ErrorTypeNotSupported {
			reason = signingError.ErrInvalidSignerType
			break
		}
		if e.Type != field.ErrorTypeRequired {
			reason = signingError.ErrInvalidField
		}
	}
	return signingError.Configuration(reason, allErrors.ToAggregate().Error())
}
