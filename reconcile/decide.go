package reconcile

import (
	"i8gateway/models"

	"github.com/shopspring/decimal"
)

type Outcome int

const (
	OutcomeAccepted Outcome = iota
	OutcomeDuplicate
	OutcomeRejected
	OutcomeNotFound
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeRejected:
		return "rejected"
	default:
		return "not_found"
	}
}

// Facts is what the ledger knows about a callback before it is decided.
type Facts struct {
	TransferSeen bool
	LastByTxn    *models.Transaction
	// History holds the round's records, newest first.
	History []models.Transaction
}

func (f Facts) LastByRound() *models.Transaction {
	if len(f.History) == 0 {
		return nil
	}
	return &f.History[0]
}

// replayed is the duplicate rule shared by every event: the transfer id was
// already recorded, or the txn and the round both already sit in state.
func (f Facts) replayed(state models.Action) bool {
	if f.TransferSeen {
		return true
	}
	last := f.LastByRound()
	return f.LastByTxn != nil && last != nil &&
		f.LastByTxn.TransAction == state && last.TransAction == state
}

func (f Facts) has(action models.Action) bool {
	for i := range f.History {
		if f.History[i].TransAction == action {
			return true
		}
	}
	return false
}

// outstanding reports whether the newest record tagged action has no
// UNSETTLED record after it.
func (f Facts) outstanding(action models.Action) bool {
	for i := range f.History {
		switch f.History[i].TransAction {
		case models.ActionUnsettled:
			return false
		case action:
			return true
		}
	}
	return false
}

type Decision struct {
	Outcome Outcome
	Status  Status
	Delta   decimal.Decimal
}

func accept(delta decimal.Decimal) Decision {
	return Decision{Outcome: OutcomeAccepted, Status: StatusSuccess, Delta: delta}
}

func duplicate() Decision {
	return Decision{Outcome: OutcomeDuplicate, Status: StatusDuplicate}
}

func reject(s Status) Decision {
	return Decision{Outcome: OutcomeRejected, Status: s}
}

// debit rejects a delta that would take the balance below zero.
func debit(balance, delta decimal.Decimal) Decision {
	if delta.IsNegative() && balance.Add(delta).IsNegative() {
		return reject(StatusInsufficientBalance)
	}
	return accept(delta)
}

// Decide is the decision table. It performs no I/O.
func Decide(ev Event, balance decimal.Decimal, req *Request, f Facts) Decision {
	switch ev {
	case EventPlaceBets:
		return decidePlace(balance, req, f)
	case EventSettleBets:
		return decideSettle(balance, req, f)
	case EventUnsettleBets:
		return decideUnsettle(balance, f)
	case EventCancelBets:
		return decideCancel(req, f)
	case EventWinRewards:
		return decideWin(req, f)
	case EventVoidBets:
		return decideVoid(balance, req, f)
	default:
		return reject(StatusForbidden)
	}
}

func decidePlace(balance decimal.Decimal, req *Request, f Facts) Decision {
	if f.replayed(models.ActionOpen) {
		return duplicate()
	}

	// A cancel that arrived before its bet already settled the stake.
	if last := f.LastByRound(); last != nil && last.TransAction == models.ActionRefund {
		return accept(decimal.Zero)
	}

	delta := req.first().BetAmount.Abs().Neg()
	if balance.Add(delta).IsNegative() {
		return reject(StatusInsufficientBalance)
	}
	return accept(delta)
}

func decideSettle(balance decimal.Decimal, req *Request, f Facts) Decision {
	if f.replayed(models.ActionSettled) {
		return duplicate()
	}
	if balance.Sub(req.first().BetAmount).IsNegative() {
		return reject(StatusInsufficientBalance)
	}
	if f.outstanding(models.ActionRefund) {
		return reject(StatusAlreadyCanceled)
	}

	// Rounds that were voided or refunded are recorded without moving money.
	if f.has(models.ActionVoid) || f.has(models.ActionRefund) {
		return accept(decimal.Zero)
	}

	delta := decimal.Zero
	for _, t := range req.Txns {
		delta = delta.Add(t.PayoutAmount.Sub(t.BetAmount))
	}
	return debit(balance, delta)
}

func decideUnsettle(balance decimal.Decimal, f Facts) Decision {
	if f.replayed(models.ActionUnsettled) {
		return duplicate()
	}

	last := f.LastByRound()
	if last == nil {
		return Decision{Outcome: OutcomeNotFound, Status: StatusTransactionNotFound}
	}

	amount := last.BetAmount
	if last.TransAction == models.ActionSettled {
		amount = last.WinAmount
	}
	if !amount.IsPositive() {
		return accept(decimal.Zero)
	}
	return debit(balance, amount.Neg())
}

func decideCancel(req *Request, f Facts) Decision {
	if f.replayed(models.ActionRefund) {
		return duplicate()
	}
	if f.outstanding(models.ActionSettled) {
		return reject(StatusAlreadySettled)
	}

	// With nothing to refund the cancel is still recorded, so a late bet
	// for the same round is not debited.
	if f.LastByTxn == nil {
		return accept(decimal.Zero)
	}

	amount := req.first().BetAmount
	if f.LastByTxn.TransAction == models.ActionOpen {
		amount = f.LastByTxn.BetAmount
	}
	if !amount.IsPositive() {
		return accept(decimal.Zero)
	}
	return accept(amount)
}

func decideWin(req *Request, f Facts) Decision {
	if f.replayed(models.ActionOpen) {
		return duplicate()
	}
	// Rewards are applied as sent; only duplication is refused.
	return accept(req.first().PayoutAmount)
}

func decideVoid(balance decimal.Decimal, req *Request, f Facts) Decision {
	if f.replayed(models.ActionVoid) {
		return duplicate()
	}
	if f.LastByRound() == nil {
		return accept(decimal.Zero)
	}

	t := req.first()
	return debit(balance, t.BetAmount.Sub(t.PayoutAmount))
}
