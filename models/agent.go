package models

import "github.com/shopspring/decimal"

// Agent is an operator whose wallet backs a set of players. The table is
// owned by the back office; this service only reads it.
type Agent struct {
	AgentID        int    `gorm:"column:agent_id;primaryKey" json:"agentId"`
	AgentPrefix    string `gorm:"column:agent_prefix" json:"agentPrefix"`
	CallbackDomain string `gorm:"column:callback_domain" json:"callbackDomain"`
	AgentKey       string `gorm:"column:agent_key" json:"-"`
	GameKey        string `gorm:"column:game_key" json:"-"`
}

func (Agent) TableName() string {
	return "agent"
}

type Commission struct {
	CasinoGameID string `gorm:"column:casino_game_id;primaryKey"`
	AgentID      int    `gorm:"column:agent_id;primaryKey"`

	PercentUserCommission       decimal.Decimal `gorm:"column:percent_user_commission"`
	PercentAgentShare           decimal.Decimal `gorm:"column:percent_agent_share"`
	PercentAgentCommissionShare decimal.Decimal `gorm:"column:percent_agent_commission_share"`
}

func (Commission) TableName() string {
	return "commission"
}
