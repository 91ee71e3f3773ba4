package ledger

import (
	"context"
	"errors"
	"fmt"

	"i8gateway/models"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) TransferExists(ctx context.Context, transferID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.Transaction{}).
		Where("transfer_id = ?", transferID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("count by transfer id: %w", err)
	}
	return count > 0, nil
}

func (s *GormStore) LastByTransaction(ctx context.Context, txnID string) (*models.Transaction, error) {
	var tx models.Transaction
	err := s.db.WithContext(ctx).
		Where("transaction_id = ?", txnID).
		Order("id DESC").
		Take(&tx).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last by transaction id: %w", err)
	}
	return &tx, nil
}

func (s *GormStore) RoundHistory(ctx context.Context, roundID string) ([]models.Transaction, error) {
	var txs []models.Transaction
	err := s.db.WithContext(ctx).
		Where("round_id = ?", roundID).
		Order("id DESC").
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("round history: %w", err)
	}
	return txs, nil
}

func (s *GormStore) Create(ctx context.Context, tx *models.Transaction) error {
	err := s.db.WithContext(ctx).Create(tx).Error
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return ErrDuplicateTransfer
	}
	return fmt.Errorf("insert ledger record: %w", err)
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
