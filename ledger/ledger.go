// Package ledger is the append-only record of every accepted callback.
package ledger

import (
	"context"
	"errors"

	"i8gateway/models"
)

// ErrDuplicateTransfer is returned by Create when a record with the same
// transfer id already exists.
var ErrDuplicateTransfer = errors.New("duplicate transfer id")

type Store interface {
	// TransferExists reports whether a record carries transferID.
	TransferExists(ctx context.Context, transferID string) (bool, error)
	// LastByTransaction returns the newest record for a provider
	// transaction id, or nil when there is none.
	LastByTransaction(ctx context.Context, txnID string) (*models.Transaction, error)
	// RoundHistory returns every record of a round, newest first.
	RoundHistory(ctx context.Context, roundID string) ([]models.Transaction, error)
	Create(ctx context.Context, tx *models.Transaction) error
}
