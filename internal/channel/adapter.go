// Package channel defines the messaging-channel adapter contract and its
// HTTP gateway implementation.
package channel

import (
	"context"
)

// SessionStatus reports the connection state of a channel session.
type SessionStatus struct {
	Connected bool   `json:"connected"`
	State     string `json:"state"`
}

// Adapter is the contract with the external channel transport. Calls are
// acknowledged by the remote gateway; there is no delivery confirmation
// beyond that.
type Adapter interface {
	SendText(ctx context.Context, sessionID, to, text string) error
	SendFile(ctx context.Context, sessionID, to, fileURL, caption string) error
	SendImage(ctx context.Context, sessionID, to, imageURL, caption string) error
	GetStatus(ctx context.Context, sessionID string) (SessionStatus, error)
	StartSession(ctx context.Context, sessionID string) error
	Logout(ctx context.Context, sessionID string) error
}
