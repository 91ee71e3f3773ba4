package reconcile

import (
	"encoding/json"
	"errors"
	"fmt"
	"unicode/utf8"

	"i8gateway/apperr"
	"i8gateway/identity"
	"i8gateway/models"

	"github.com/shopspring/decimal"
)

type Event string

const (
	EventPlaceBets    Event = "placeBets"
	EventSettleBets   Event = "settleBets"
	EventUnsettleBets Event = "unsettleBets"
	EventCancelBets   Event = "cancelBets"
	EventWinRewards   Event = "winRewards"
	EventVoidBets     Event = "voidBets"
	EventCheckBalance Event = "checkBalance"
)

// Action is the ledger tag written when an event is accepted.
func (e Event) Action() models.Action {
	switch e {
	case EventPlaceBets:
		return models.ActionOpen
	case EventSettleBets:
		return models.ActionSettled
	case EventUnsettleBets:
		return models.ActionUnsettled
	case EventCancelBets:
		return models.ActionRefund
	case EventWinRewards:
		return models.ActionBonus
	case EventVoidBets:
		return models.ActionVoid
	default:
		return ""
	}
}

// Request is the provider callback body. Only the first txn anchors the
// lookups; settleBets sums over all of them.
type Request struct {
	ID              models.FlexibleString `json:"id"`
	ProductID       models.FlexibleString `json:"productId"`
	Username        string                `json:"username"`
	Currency        string                `json:"currency"`
	TimestampMillis json.RawMessage       `json:"timestampMillis"`
	IsEndRound      *bool                 `json:"isEndRound"`
	Txns            []Txn                 `json:"txns"`
}

type Txn struct {
	TxnID        models.FlexibleString `json:"txnId"`
	RoundID      models.FlexibleString `json:"roundId"`
	BetAmount    decimal.Decimal       `json:"betAmount"`
	PayoutAmount decimal.Decimal       `json:"payoutAmount"`
	GameCode     string                `json:"gameCode"`
	TurnOver     decimal.Decimal       `json:"turnOver"`
	PlayInfo     json.RawMessage       `json:"playInfo"`
	IsEndRound   *bool                 `json:"isEndRound"`
}

func (r *Request) first() *Txn {
	if len(r.Txns) == 0 {
		return nil
	}
	return &r.Txns[0]
}

// validate rejects a callback whose record could not be written as sent.
// It runs before any wallet call: a wallet update followed by a failed
// insert would be applied again on redelivery.
func (r *Request) validate(who identity.Identity) error {
	t := r.first()
	if t == nil {
		return invalid("no txns")
	}
	if err := checkRef("id", r.ID.String()); err != nil {
		return err
	}
	if err := checkRef("txnId", t.TxnID.String()); err != nil {
		return err
	}
	if err := checkRef("roundId", t.RoundID.String()); err != nil {
		return err
	}
	if n := utf8.RuneCountInString(who.UserID); n > models.MaxUserIDLen {
		return invalid(fmt.Sprintf("userId has %d characters, limit %d", n, models.MaxUserIDLen))
	}

	for i := range r.Txns {
		tx := &r.Txns[i]
		if n := utf8.RuneCountInString(tx.GameCode); n > models.MaxGameCodeLen {
			return invalid(fmt.Sprintf("gameCode has %d characters, limit %d", n, models.MaxGameCodeLen))
		}
		for name, v := range map[string]decimal.Decimal{
			"betAmount":    tx.BetAmount,
			"payoutAmount": tx.PayoutAmount,
			"turnOver":     tx.TurnOver,
		} {
			if v.Abs().Round(2).GreaterThanOrEqual(models.MaxAmount) {
				return invalid(fmt.Sprintf("%s %s out of range", name, v.String()))
			}
		}
	}
	return nil
}

func checkRef(name, v string) error {
	if v == "" {
		return invalid(name + " is required")
	}
	if n := utf8.RuneCountInString(v); n > models.MaxRefLen {
		return invalid(fmt.Sprintf("%s has %d characters, limit %d", name, n, models.MaxRefLen))
	}
	return nil
}

func invalid(msg string) error {
	return apperr.Validation("callback.request", errors.New(msg))
}

func (r *Request) isEndRound() bool {
	if t := r.first(); t != nil && t.IsEndRound != nil {
		return *t.IsEndRound
	}
	return r.IsEndRound != nil && *r.IsEndRound
}
