// Package eth wraps go-ethereum's signature recovery for EIP-191
// personal-sign messages.
package eth

import (
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// SignatureLength is the expected r ‖ s ‖ v signature size.
const SignatureLength = 65

// PersonalVerifier verifies EIP-191 personal-sign signatures by public key
// recovery. It is stateless.
type PersonalVerifier struct{}

// NewPersonalVerifier returns a stateless verifier.
func NewPersonalVerifier() *PersonalVerifier {
	return &PersonalVerifier{}
}

// VerifySignature reports whether signature over message recovers to
// address. Every decode or recovery fault is a verification failure.
func (PersonalVerifier) VerifySignature(address, message, signature string) bool {
	if !common.IsHexAddress(address) {
		return false
	}

	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != SignatureLength {
		return false
	}

	// Wallets emit v as 27/28; crypto.SigToPub expects 0/1.
	recovery := make([]byte, SignatureLength)
	copy(recovery, sig)
	if recovery[64] >= 27 {
		recovery[64] -= 27
	}

	digest := accounts.TextHash([]byte(message))
	pub, err := crypto.SigToPub(digest, recovery)
	if err != nil {
		return false
	}

	recovered := crypto.PubkeyToAddress(*pub)
	return recovered == common.HexToAddress(address)
}

// ValidAddress reports whether addr parses as a hex wallet address.
func ValidAddress(addr string) bool {
	return common.IsHexAddress(addr)
}
