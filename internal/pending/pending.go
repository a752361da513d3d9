// Package pending holds the single in-flight question a conversation is
// waiting to have answered. Operations are keyed by account and
// conversation, so two accounts sharing a conversation id never see or
// replace each other's question. Expiry is lazy: an operation is only found
// to be expired when its conversation is next read, and that read deletes it.
package pending

import (
	"context"
	"errors"

	"fiado/backend/internal/domain"
)

// ErrExpired is returned once by Get for an operation past its ExpiresAt.
// The operation is already deleted when the caller sees it.
var ErrExpired = errors.New("pending operation expired")

// Store keeps at most one operation per account and conversation. Set
// replaces whatever was there without completing it.
type Store interface {
	// Get returns (nil, nil) when the conversation has nothing pending.
	Get(ctx context.Context, accountID string, conversationID string) (*domain.PendingOperation, error)
	// Set stores op under op.AccountID and op.ConversationID.
	Set(ctx context.Context, op domain.PendingOperation) error
	Delete(ctx context.Context, accountID string, conversationID string) error
}

type opKey struct {
	accountID      string
	conversationID string
}
