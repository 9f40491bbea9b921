package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	internalAws "github.com/Layr-Labs/eigenx-remote-signer/internal/aws"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/config"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/journal"
	badgerJournal "github.com/Layr-Labs/eigenx-remote-signer/pkg/journal/badger"
	memoryJournal "github.com/Layr-Labs/eigenx-remote-signer/pkg/journal/memory"
	redisJournal "github.com/Layr-Labs/eigenx-remote-signer/pkg/journal/redis"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/logger"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/metrics"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/server"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/service"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/signer"
	"github.com/Layr-Labs/eigenx-remote-signer/pkg/transaction"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func signerTypes() string {
	kinds := make([]string, 0, len(signer.Kinds()))
	for _, k := range signer.Kinds() {
		kinds = append(kinds, string(k))
	}
	return strings.Join(kinds, ", ")
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "remote-signer",
		Usage: "Remote EVM transaction signer",
		Description: `Signs EVM transactions on behalf of callers that never see the key material.

POST an eth_sendTransaction envelope to / and receive the EIP-2718 encoding of
the signed transaction. The key lives in exactly one backend: a raw private
key, a BIP-39 mnemonic, an encrypted keystore file, AWS KMS, GCP Cloud KMS or
Alibaba Cloud KMS.`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "type",
				Aliases:  []string{"t"},
				Usage:    fmt.Sprintf("Signer backend: %s", signerTypes()),
				EnvVars:  []string{config.EnvSignerType},
				Required: true,
			},
			&cli.StringFlag{
				Name:    "private-key",
				Usage:   "Hex encoded secp256k1 private key",
				EnvVars: []string{config.EnvPrivateKey},
			},
			&cli.StringFlag{
				Name:    "mnemonic",
				Usage:   "BIP-39 mnemonic phrase",
				EnvVars: []string{config.EnvMnemonic},
			},
			&cli.Uint64Flag{
				Name:    "mnemonic.index",
				Usage:   "Account index on the m/44'/60'/0'/0 path",
				EnvVars: []string{config.EnvMnemonicIndex},
			},
			&cli.StringFlag{
				Name:    "keystore.path",
				Usage:   "Path to an encrypted JSON keystore",
				EnvVars: []string{config.EnvKeystorePath},
			},
			&cli.StringFlag{
				Name:    "keystore.password",
				Usage:   "Keystore password",
				EnvVars: []string{config.EnvKeystorePassword},
			},
			&cli.StringFlag{
				Name:    "awskms.key",
				Usage:   "AWS KMS key id, ARN or alias",
				EnvVars: []string{config.EnvAwsKmsKey},
			},
			&cli.StringFlag{
				Name:    "awskms.region",
				Usage:   "AWS region override",
				EnvVars: []string{config.EnvAwsKmsRegion},
			},
			&cli.StringFlag{
				Name:    "gcpkms.project_id",
				Usage:   "GCP project id",
				EnvVars: []string{config.EnvGcpKmsProjectID},
			},
			&cli.StringFlag{
				Name:    "gcpkms.location",
				Usage:   "GCP KMS location",
				EnvVars: []string{config.EnvGcpKmsLocation},
			},
			&cli.StringFlag{
				Name:    "gcpkms.key_ring",
				Usage:   "GCP KMS key ring",
				EnvVars: []string{config.EnvGcpKmsKeyRing},
			},
			&cli.StringFlag{
				Name:    "gcpkms.key",
				Usage:   "GCP KMS crypto key",
				EnvVars: []string{config.EnvGcpKmsKey},
			},
			&cli.StringFlag{
				Name:    "gcpkms.version",
				Usage:   "GCP KMS crypto key version",
				EnvVars: []string{config.EnvGcpKmsVersion},
			},
			&cli.StringFlag{
				Name:    "alicloudkms.key",
				Usage:   "Alibaba Cloud KMS key id",
				EnvVars: []string{config.EnvAlicloudKmsKey},
			},
			&cli.StringFlag{
				Name:    "alicloudkms.key_version",
				Usage:   "Alibaba Cloud KMS key version id",
				EnvVars: []string{config.EnvAlicloudKmsKeyVersion},
			},
			&cli.StringFlag{
				Name:    "alicloudkms.region",
				Usage:   "Alibaba Cloud region id",
				EnvVars: []string{config.EnvAlicloudKmsRegion},
			},
			&cli.StringFlag{
				Name:    "alicloudkms.access_key_id",
				Usage:   "Alibaba Cloud access key id",
				EnvVars: []string{config.EnvAlicloudKmsAccessKeyID},
			},
			&cli.StringFlag{
				Name:    "alicloudkms.access_key_secret",
				Usage:   "Alibaba Cloud access key secret",
				EnvVars: []string{config.EnvAlicloudKmsAccessKeySecret},
			},
			&cli.StringFlag{
				Name:    "azurekeyvault.key",
				Usage:   "Azure Key Vault key (not supported yet)",
				EnvVars: []string{config.EnvAzureKeyVaultKey},
			},
			&cli.StringFlag{
				Name:    "azurekeyvault.secret",
				Usage:   "Azure Key Vault secret (not supported yet)",
				EnvVars: []string{config.EnvAzureKeyVaultSecret},
			},
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Value:   config.DefaultPort,
				Usage:   "HTTP server port",
				EnvVars: []string{config.EnvPort},
			},
			&cli.Uint64Flag{
				Name:    "chain-id",
				Aliases: []string{"chain"},
				Usage:   "Chain id applied to requests without one; requests with a different one are rejected",
				EnvVars: []string{config.EnvChainID},
			},
			&cli.IntFlag{
				Name:    "cache.size",
				Usage:   "Resolved signer cache size, 0 resolves the backend on every request",
				EnvVars: []string{config.EnvCacheSize},
			},
			&cli.DurationFlag{
				Name:    "cache.ttl",
				Value:   5 * time.Minute,
				Usage:   "Resolved signer cache TTL",
				EnvVars: []string{config.EnvCacheTTL},
			},
			&cli.Float64Flag{
				Name:    "rate-limit",
				Usage:   "Sign requests per second, 0 disables limiting",
				EnvVars: []string{config.EnvRateLimit},
			},
			&cli.IntFlag{
				Name:    "rate-burst",
				Usage:   "Rate limiter burst size",
				EnvVars: []string{config.EnvRateBurst},
			},
			&cli.StringFlag{
				Name:    "journal.type",
				Value:   string(config.JournalTypeNone),
				Usage:   "Signing journal: none, memory, badger or redis",
				EnvVars: []string{config.EnvJournalType},
			},
			&cli.StringFlag{
				Name:    "journal.path",
				Usage:   "Badger journal directory",
				EnvVars: []string{config.EnvJournalPath},
			},
			&cli.IntFlag{
				Name:    "journal.capacity",
				Value:   1000,
				Usage:   "Records kept by the memory journal",
				EnvVars: []string{config.EnvJournalCapacity},
			},
			&cli.StringFlag{
				Name:    "journal.redis.address",
				Usage:   "Redis journal address (host:port)",
				EnvVars: []string{config.EnvJournalRedisAddress},
			},
			&cli.StringFlag{
				Name:    "journal.redis.password",
				Usage:   "Redis journal password",
				EnvVars: []string{config.EnvJournalRedisPassword},
			},
			&cli.IntFlag{
				Name:    "journal.redis.db",
				Usage:   "Redis journal database",
				EnvVars: []string{config.EnvJournalRedisDB},
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Enable debug logging",
				EnvVars: []string{config.EnvDebug},
			},
		},
		Action: runRemoteSigner,
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func runRemoteSigner(c *cli.Context) error {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("debug")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	// Step 1: configuration is checked before anything is bound
	cfg := parseRemoteSignerConfig(c)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	descriptor, err := cfg.Signer.Descriptor()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if descriptor.Kind == signer.KindAwsKms {
		logAWSCallerIdentity(ctx, cfg.Signer.AwsKmsRegion, l)
	}

	// Step 2: metrics, journal and resolver
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetricsWithRegistry(registry)

	j, err := newJournal(&cfg.Journal, l)
	if err != nil {
		return fmt.Errorf("failed to create journal: %w", err)
	}
	if j != nil {
		defer func() {
			if err := j.Close(); err != nil {
				l.Sugar().Warnw("Failed to close journal", "error", err)
			}
		}()
	}

	var resolver signer.IResolver = signer.NewResolver(descriptor, l)
	if cfg.CacheSize > 0 {
		cache := signer.NewCachingResolver(resolver, &signer.CacheConfig{Size: cfg.CacheSize, TTL: cfg.CacheTTL}, l)
		defer cache.Purge()
		resolver = cache
	}

	policy := transaction.DefaultPolicy().WithChainID(cfg.ChainIDBig())

	svc := service.NewSigningService(&service.SigningServiceConfig{
		Resolver:      resolver,
		Canonicalizer: transaction.NewCanonicalizer(policy),
		Journal:       j,
		Metrics:       m,
	}, l)

	// Step 3: serve until interrupted
	srv := server.NewServer(svc, &server.ServerConfig{
		Port:      cfg.Port,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}, m, registry, l)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	chainFields := []interface{}{"backend", descriptor.Kind, "addr", srv.Addr(), "journal", cfg.Journal.Type, "cache_size", cfg.CacheSize}
	if cfg.ChainID != 0 {
		chainFields = append(chainFields, "chain_id", cfg.ChainID, "chain", config.ChainNameFor(cfg.ChainID))
	}
	l.Sugar().Infow("Remote signer running", chainFields...)
	l.Sugar().Infow("Available endpoints",
		"sign", "POST /",
		"health", "GET /healthz",
		"pub", "GET /pub",
		"config", "GET /config",
		"journal", "GET /journal",
		"metrics", "GET /metrics")

	<-ctx.Done()
	l.Sugar().Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

func parseRemoteSignerConfig(c *cli.Context) *config.RemoteSignerConfig {
	return &config.RemoteSignerConfig{
		Signer: config.SignerConfig{
			Type:                       c.String("type"),
			PrivateKey:                 c.String("private-key"),
			Mnemonic:                   c.String("mnemonic"),
			MnemonicIndex:              c.Uint64("mnemonic.index"),
			KeystorePath:               c.String("keystore.path"),
			KeystorePassword:           c.String("keystore.password"),
			AwsKmsKey:                  c.String("awskms.key"),
			AwsKmsRegion:               c.String("awskms.region"),
			GcpKmsProjectID:            c.String("gcpkms.project_id"),
			GcpKmsLocation:             c.String("gcpkms.location"),
			GcpKmsKeyRing:              c.String("gcpkms.key_ring"),
			GcpKmsKey:                  c.String("gcpkms.key"),
			GcpKmsVersion:              c.String("gcpkms.version"),
			AlicloudKmsKey:             c.String("alicloudkms.key"),
			AlicloudKmsKeyVersion:      c.String("alicloudkms.key_version"),
			AlicloudKmsRegion:          c.String("alicloudkms.region"),
			AlicloudKmsAccessKeyID:     c.String("alicloudkms.access_key_id"),
			AlicloudKmsAccessKeySecret: c.String("alicloudkms.access_key_secret"),
			AzureKeyVaultKey:           c.String("azurekeyvault.key"),
			AzureKeyVaultSecret:        c.String("azurekeyvault.secret"),
		},
		Port:      c.Int("port"),
		ChainID:   config.ChainId(c.Uint64("chain-id")),
		CacheSize: c.Int("cache.size"),
		CacheTTL:  c.Duration("cache.ttl"),
		RateLimit: c.Float64("rate-limit"),
		RateBurst: c.Int("rate-burst"),
		Journal: config.JournalConfig{
			Type:          config.JournalType(c.String("journal.type")),
			Path:          c.String("journal.path"),
			Capacity:      c.Int("journal.capacity"),
			RedisAddress:  c.String("journal.redis.address"),
			RedisPassword: c.String("journal.redis.password"),
			RedisDB:       c.Int("journal.redis.db"),
		},
		Debug: c.Bool("debug"),
	}
}

// newJournal returns nil when journaling is disabled.
func newJournal(cfg *config.JournalConfig, l *zap.Logger) (journal.IJournal, error) {
	switch cfg.Type {
	case config.JournalTypeMemory:
		return memoryJournal.NewMemoryJournal(cfg.Capacity), nil
	case config.JournalTypeBadger:
		return badgerJournal.NewBadgerJournal(cfg.Path, l)
	case config.JournalTypeRedis:
		return redisJournal.NewRedisJournal(&redisJournal.RedisConfig{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		}, l)
	default:
		return nil, nil
	}
}

// logAWSCallerIdentity logs the principal the AWS credentials resolve to.
// Failures are logged and startup continues.
func logAWSCallerIdentity(ctx context.Context, region string, l *zap.Logger) {
	awsCfg, err := internalAws.LoadAWSConfig(ctx, region)
	if err != nil {
		l.Sugar().Warnw("Failed to load AWS config", "error", err)
		return
	}
	identity, err := internalAws.GetCallerIdentity(ctx, awsCfg)
	if err != nil {
		l.Sugar().Warnw("Failed to get AWS caller identity", "error", err)
		return
	}
	l.Sugar().Infow("AWS caller identity",
		"account", identity.Account,
		"arn", identity.Arn,
		"region", awsCfg.Region)
}
