package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/openscholar/veritas/core"
	"github.com/openscholar/veritas/ports"
)

// SeedUser describes an identity to guarantee exists at startup.
type SeedUser struct {
	WalletAddress string
	DID           string
	DisplayName   string
	Role          string
}

// Bootstrap seeds users before the service accepts traffic. It is
// idempotent: wallets that already have a row are left untouched, so
// repeated invocations are no-ops.
func Bootstrap(ctx context.Context, store ports.UserStore, seeds []SeedUser, log zerolog.Logger) error {
	for _, seed := range seeds {
		wallet := core.NormalizeAddress(seed.WalletAddress)
		if wallet == "" {
			continue
		}

		_, err := store.GetUserByWallet(ctx, wallet)
		if err == nil {
			continue
		}
		if err != core.ErrUserNotFound {
			return fmt.Errorf("look up seed user %s: %w", wallet, err)
		}

		did := core.NormalizeDID(seed.DID)
		if did == "" {
			did = "did:ethr:" + wallet
		}
		role := seed.Role
		if role == "" {
			role = "admin"
		}

		user := &core.User{
			ID:            uuid.New().String(),
			WalletAddress: wallet,
			DID:           did,
			DisplayName:   seed.DisplayName,
			Role:          role,
			CreatedAt:     time.Now().UTC(),
		}
		if err := store.CreateUser(ctx, user); err != nil {
			return fmt.Errorf("seed user %s: %w", wallet, err)
		}
		log.Info().Str("wallet", wallet).Str("role", role).Msg("seed user created")
	}
	return nil
}
