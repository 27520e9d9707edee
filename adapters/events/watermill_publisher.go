package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/openscholar/veritas/ports"
)

const (
	// SessionIssuedTopic carries session issuance notifications.
	SessionIssuedTopic = "veritas.session.issued"
	// SessionRevokedTopic carries logout/revocation notifications.
	SessionRevokedTopic = "veritas.session.revoked"
	// CredentialVerifiedTopic carries credential verification notifications.
	CredentialVerifiedTopic = "veritas.credential.verified"
)

// SessionIssuedEvent notifies other platform services of a new session.
type SessionIssuedEvent struct {
	UserID        string    `json:"user_id"`
	WalletAddress string    `json:"wallet_address"`
	At            time.Time `json:"at"`
}

// SessionRevokedEvent notifies other instances so cached session state can
// be dropped.
type SessionRevokedEvent struct {
	UserID string    `json:"user_id"`
	Token  string    `json:"token"`
	At     time.Time `json:"at"`
}

// CredentialVerifiedEvent announces a freshly verified credential.
type CredentialVerifiedEvent struct {
	UserID         string    `json:"user_id"`
	CredentialType string    `json:"credential_type"`
	Hash           string    `json:"hash"`
	At             time.Time `json:"at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill.
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher.
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

func (p *WatermillPublisher) PublishSessionIssued(ctx context.Context, userID, walletAddress string) error {
	return p.publish(SessionIssuedTopic, SessionIssuedEvent{
		UserID:        userID,
		WalletAddress: walletAddress,
		At:            time.Now().UTC(),
	})
}

func (p *WatermillPublisher) PublishSessionRevoked(ctx context.Context, userID, token string) error {
	return p.publish(SessionRevokedTopic, SessionRevokedEvent{
		UserID: userID,
		Token:  token,
		At:     time.Now().UTC(),
	})
}

func (p *WatermillPublisher) PublishCredentialVerified(ctx context.Context, userID, credentialType, hash string) error {
	return p.publish(CredentialVerifiedTopic, CredentialVerifiedEvent{
		UserID:         userID,
		CredentialType: credentialType,
		Hash:           hash,
		At:             time.Now().UTC(),
	})
}

func (p *WatermillPublisher) publish(topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.New().String(), payload)
	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
