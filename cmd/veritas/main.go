package main

import (
	"context"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/openscholar/veritas/adapters/anchor"
	"github.com/openscholar/veritas/adapters/events"
	"github.com/openscholar/veritas/adapters/store"
	"github.com/openscholar/veritas/internal/eth"
	"github.com/openscholar/veritas/internal/vault"
	"github.com/openscholar/veritas/ports"
	"github.com/openscholar/veritas/service"
	"github.com/openscholar/veritas/transport/http"
)

// Config collects the environment-level inputs.
type Config struct {
	RedisURL       string
	VaultSecret    string
	AnchorRPCURL   string
	AnchorContract string
	SeedWallets    []string
	ListenAddr     string
}

func loadConfig() Config {
	cfg := Config{
		RedisURL:       os.Getenv("REDIS_URL"),
		VaultSecret:    os.Getenv("VAULT_SECRET"),
		AnchorRPCURL:   os.Getenv("ANCHOR_RPC_URL"),
		AnchorContract: os.Getenv("ANCHOR_CONTRACT"),
		ListenAddr:     os.Getenv("LISTEN_ADDR"),
	}
	if cfg.RedisURL == "" {
		cfg.RedisURL = "redis://localhost:6379/0"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":9000"
	}
	if wallets := os.Getenv("SEED_WALLETS"); wallets != "" {
		for _, w := range strings.Split(wallets, ",") {
			if w = strings.TrimSpace(w); w != "" {
				cfg.SeedWallets = append(cfg.SeedWallets, w)
			}
		}
	}
	return cfg
}

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()
	cfg := loadConfig()
	ctx := context.Background()

	v, err := vault.New(cfg.VaultSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("vault initialization failed; set VAULT_SECRET")
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse Redis URL")
	}
	redisClient := redis.NewClient(opts)

	st, err := store.NewRedisStore(ctx, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer st.Close()

	wmLogger := watermill.NewStdLogger(false, false)
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{Client: redisClient},
		wmLogger,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event publisher")
	}
	eventPub := events.NewWatermillPublisher(publisher)

	// The anchor reader is optional: without both the RPC endpoint and
	// the contract address configured, verification runs unanchored.
	var anchorReader ports.AnchorReader
	if cfg.AnchorRPCURL != "" && cfg.AnchorContract != "" {
		reader, err := anchor.NewEthReader(cfg.AnchorRPCURL, cfg.AnchorContract, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to dial anchor RPC endpoint")
		}
		defer reader.Close()
		anchorReader = reader
	} else {
		log.Warn().Msg("anchor reader not configured; credentials will be accepted unanchored")
	}

	authService := service.NewAuthService(st, eth.NewPersonalVerifier(), eventPub, log)
	credentialService := service.NewCredentialService(st, v, anchorReader, eventPub, log)

	// Seed users before accepting traffic; re-running is a no-op.
	var seeds []service.SeedUser
	for _, wallet := range cfg.SeedWallets {
		seeds = append(seeds, service.SeedUser{WalletAddress: wallet, Role: "admin"})
	}
	if err := service.Bootstrap(ctx, st, seeds, log); err != nil {
		log.Fatal().Err(err).Msg("bootstrap failed")
	}

	router := http.SetupRouter(authService, credentialService)

	log.Info().Str("addr", cfg.ListenAddr).Msg("veritas trust core listening")
	if err := router.Run(cfg.ListenAddr); err != nil {
		log.Fatal().Err(err).Msg("server terminated")
	}
}
