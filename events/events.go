// Package events feeds committed ledger records to downstream consumers
// such as settlement audits and reporting.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"i8gateway/metrics"
	"i8gateway/models"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

type Publisher interface {
	Publish(ctx context.Context, tx *models.Transaction) error
	Close()
}

// Nop drops every record. It is used when no NATS server is configured.
type Nop struct{}

func (Nop) Publish(context.Context, *models.Transaction) error { return nil }
func (Nop) Close()                                             {}

// LedgerEvent is the wire form of a committed record.
type LedgerEvent struct {
	ID            uint64          `json:"id"`
	Action        models.Action   `json:"action"`
	AgentID       int             `json:"agentId"`
	UserID        string          `json:"userId"`
	TransferID    string          `json:"transferId"`
	TransactionID string          `json:"transactionId"`
	RoundID       string          `json:"roundId"`
	GameCode      string          `json:"gameCode"`
	BetAmount     string          `json:"betAmount"`
	WinAmount     string          `json:"winAmount"`
	TurnOver      string          `json:"turnOver"`
	IsEndRound    bool            `json:"isEndRound"`
	PlayInfo      json.RawMessage `json:"playInfo,omitempty"`
	TransDate     int64           `json:"transDate"`
}

func NewLedgerEvent(tx *models.Transaction) LedgerEvent {
	ev := LedgerEvent{
		ID:            tx.ID,
		Action:        tx.TransAction,
		AgentID:       tx.AgentID,
		UserID:        tx.UserID,
		TransferID:    tx.TransferID,
		TransactionID: tx.TransactionID,
		RoundID:       tx.RoundID,
		GameCode:      tx.GameCode,
		BetAmount:     tx.BetAmount.StringFixed(2),
		WinAmount:     tx.WinAmount.StringFixed(2),
		TurnOver:      tx.TurnOver.StringFixed(2),
		IsEndRound:    tx.IsEndRound,
		TransDate:     tx.TransDate,
	}
	if len(tx.PlayInfo) > 0 {
		ev.PlayInfo = json.RawMessage(tx.PlayInfo)
	}
	return ev
}

// NATSPublisher publishes each record on <subject>.<action>, for example
// i8gateway.ledger.settled.
type NATSPublisher struct {
	conn    *nats.Conn
	subject string
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func NewNATSPublisher(url, subject string, m *metrics.Metrics, log zerolog.Logger) (*NATSPublisher, error) {
	log = log.With().Str("component", "events").Logger()

	conn, err := nats.Connect(url,
		nats.Name("i8gateway"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return &NATSPublisher{conn: conn, subject: subject, metrics: m, log: log}, nil
}

func (p *NATSPublisher) Publish(_ context.Context, tx *models.Transaction) error {
	data, err := json.Marshal(NewLedgerEvent(tx))
	if err != nil {
		return fmt.Errorf("marshal ledger event: %w", err)
	}

	subject := Subject(p.subject, tx.TransAction)
	if err := p.conn.Publish(subject, data); err != nil {
		p.count("error")
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.count("ok")
	return nil
}

// Close flushes pending messages before closing the connection.
func (p *NATSPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.log.Warn().Err(err).Msg("nats drain failed")
		p.conn.Close()
	}
}

func (p *NATSPublisher) count(result string) {
	if p.metrics != nil {
		p.metrics.Published.WithLabelValues(result).Inc()
	}
}

func Subject(prefix string, action models.Action) string {
	return prefix + "." + strings.ToLower(string(action))
}
