package ports

import (
	"context"

	"github.com/openscholar/veritas/core"
)

// AnchorReader reads a subject's on-chain credential record. A nil record
// means "no usable anchor": no reader configured, no record on chain, or
// the read failed. The three cases are deliberately indistinguishable to
// callers; verification proceeds unanchored.
type AnchorReader interface {
	ReadAnchor(ctx context.Context, walletAddress string) *core.AnchorRecord
}
