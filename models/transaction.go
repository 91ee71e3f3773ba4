package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Action string

const (
	ActionOpen      Action = "OPEN"
	ActionSettled   Action = "SETTLED"
	ActionUnsettled Action = "UNSETTLED"
	ActionRefund    Action = "REFUND"
	ActionVoid      Action = "VOID"
	ActionBonus     Action = "BONUS"
)

// Column limits, matching the size tags below and the SQL migrations.
const (
	MaxUserIDLen   = 64
	MaxRefLen      = 128
	MaxGameCodeLen = 64
)

// MaxAmount is the smallest magnitude numeric(20,2) cannot store.
var MaxAmount = decimal.New(1, 18)

// Transaction is one immutable ledger row. Rows are only ever inserted;
// a correction is a new row with a different action.
type Transaction struct {
	ID uint64 `gorm:"primaryKey;autoIncrement;index:idx_ledger_round,priority:2,sort:desc" json:"id"`

	AgentID       int    `gorm:"not null;index" json:"agentId"`
	UserID        string `gorm:"size:64;not null" json:"userId"`
	TransAction   Action `gorm:"column:trans_action;size:16;not null" json:"action"`
	TransDate     int64  `gorm:"not null" json:"transDate"`
	TransferID    string `gorm:"size:128;not null;uniqueIndex" json:"transferId"`
	TransactionID string `gorm:"size:128;not null;index" json:"transactionId"`
	RoundID       string `gorm:"size:128;not null;index:idx_ledger_round,priority:1" json:"roundId"`

	PlayInfo   datatypes.JSON  `json:"playInfo"`
	GameCode   string          `gorm:"size:64" json:"gameCode"`
	TurnOver   decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"turnOver"`
	IsEndRound bool            `gorm:"not null;default:false" json:"isEndRound"`
	BetAmount  decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"betAmount"`
	WinAmount  decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0" json:"winAmount"`
	CreateDate time.Time       `gorm:"autoCreateTime" json:"createDate"`

	PercentUserCommission       decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"percentUserCommission"`
	PercentAgentShare           decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"percentAgentShare"`
	PercentAgentCommissionShare decimal.Decimal `gorm:"type:numeric(5,2);not null;default:0" json:"percentAgentCommissionShare"`
}

func (Transaction) TableName() string {
	return "ledger_transactions"
}
