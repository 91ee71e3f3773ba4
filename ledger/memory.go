package ledger

import (
	"context"
	"sync"
	"time"

	"i8gateway/models"
)

// Memory is a Store kept in process memory. It backs tests and local runs
// without a database.
type Memory struct {
	mu     sync.RWMutex
	nextID uint64
	rows   []models.Transaction
}

func NewMemory() *Memory {
	return &Memory{nextID: 1}
}

func (m *Memory) TransferExists(_ context.Context, transferID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := range m.rows {
		if m.rows[i].TransferID == transferID {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) LastByTransaction(_ context.Context, txnID string) (*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].TransactionID == txnID {
			tx := m.rows[i]
			return &tx, nil
		}
	}
	return nil, nil
}

func (m *Memory) RoundHistory(_ context.Context, roundID string) ([]models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Transaction
	for i := len(m.rows) - 1; i >= 0; i-- {
		if m.rows[i].RoundID == roundID {
			out = append(out, m.rows[i])
		}
	}
	return out, nil
}

func (m *Memory) Create(_ context.Context, tx *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.rows {
		if m.rows[i].TransferID == tx.TransferID {
			return ErrDuplicateTransfer
		}
	}

	tx.ID = m.nextID
	m.nextID++
	if tx.CreateDate.IsZero() {
		tx.CreateDate = time.Now()
	}
	m.rows = append(m.rows, *tx)
	return nil
}

// All returns a copy of every record in insertion order.
func (m *Memory) All() []models.Transaction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Transaction, len(m.rows))
	copy(out, m.rows)
	return out
}
