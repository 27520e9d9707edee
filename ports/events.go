package ports

import "context"

// EventPublisher notifies other platform services about trust-core events.
// Publish failures never fail the originating request.
type EventPublisher interface {
	PublishSessionIssued(ctx context.Context, userID, walletAddress string) error
	PublishSessionRevoked(ctx context.Context, userID, token string) error
	PublishCredentialVerified(ctx context.Context, userID, credentialType, hash string) error
}
