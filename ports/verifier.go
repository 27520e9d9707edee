package ports

// WalletVerifier confirms a signature was produced by the claimed wallet
// over the challenge message. Implementations are pure boundary wrappers:
// any fault in the underlying primitive is a verification failure, never a
// success-by-default.
type WalletVerifier interface {
	VerifySignature(address, message, signature string) bool
}
