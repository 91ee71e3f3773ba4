package reconcile

import (
	"context"
	"fmt"
	"time"

	"i8gateway/apperr"
	"i8gateway/events"
	"i8gateway/identity"
	"i8gateway/ledger"
	"i8gateway/locks"
	"i8gateway/metrics"
	"i8gateway/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Wallet interface {
	Balance(ctx context.Context, agent *models.Agent, userID string) (decimal.Decimal, error)
	Apply(ctx context.Context, agent *models.Agent, userID string, delta decimal.Decimal, reference string) error
}

type Directory interface {
	Agent(ctx context.Context, agentID int) (*models.Agent, error)
	Commission(ctx context.Context, gameID string, agentID int) (*models.Commission, error)
}

type Deps struct {
	Ledger    ledger.Store
	Wallet    Wallet
	Directory Directory
	Locker    locks.Locker
	Publisher events.Publisher
	Metrics   *metrics.Metrics
	Log       zerolog.Logger
	GameID    string
	// LockWait bounds how long an event queues behind others on its round.
	LockWait time.Duration
}

// Engine applies provider callbacks to agent wallets exactly once and
// records each accepted callback in the ledger.
type Engine struct {
	Deps
	now func() time.Time
}

func NewEngine(d Deps) *Engine {
	if d.Publisher == nil {
		d.Publisher = events.Nop{}
	}
	if d.LockWait <= 0 {
		d.LockWait = 30 * time.Second
	}
	d.Log = d.Log.With().Str("component", "reconcile").Logger()
	return &Engine{Deps: d, now: time.Now}
}

// Result is what a callback handler needs to build its response. Err is
// set when Status is StatusInternal or StatusForbidden and is always
// already logged.
type Result struct {
	Outcome       Outcome
	Status        Status
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Delta         decimal.Decimal
	Err           error
}

// Balance reads the player's current balance.
func (e *Engine) Balance(ctx context.Context, who identity.Identity) (decimal.Decimal, error) {
	agent, err := e.Directory.Agent(ctx, who.AgentID)
	if err != nil {
		return decimal.Zero, e.reported(err, "load agent", who)
	}
	bal, err := e.Wallet.Balance(ctx, agent, who.UserID)
	if err != nil {
		return decimal.Zero, e.reported(err, "read balance", who)
	}
	return bal, nil
}

// Handle runs lookup, decision, wallet update and ledger insert for one
// callback while holding the round and transfer locks.
func (e *Engine) Handle(ctx context.Context, ev Event, who identity.Identity, req *Request) Result {
	res := e.handle(ctx, ev, who, req)
	if e.Metrics != nil {
		e.Metrics.Callbacks.WithLabelValues(string(ev), fmt.Sprint(res.Status.Code)).Inc()
	}
	return res
}

func (e *Engine) handle(ctx context.Context, ev Event, who identity.Identity, req *Request) Result {
	if ev.Action() == "" {
		return e.fail(e.Log, apperr.Validation("callback.event", fmt.Errorf("unknown event %q", ev)))
	}
	if err := req.validate(who); err != nil {
		return e.fail(e.Log.With().Str("event", string(ev)).Str("transferId", req.ID.String()).Logger(), err)
	}
	txn := req.first()
	log := e.Log.With().
		Str("event", string(ev)).
		Str("transferId", req.ID.String()).
		Str("txnId", txn.TxnID.String()).
		Str("roundId", txn.RoundID.String()).
		Int("agentId", who.AgentID).
		Str("userId", who.UserID).
		Logger()

	unlock, err := e.lock(ctx, txn.RoundID.String(), req.ID.String())
	if err != nil {
		return e.fail(log, fmt.Errorf("acquire round lock: %w", err))
	}
	defer unlock()

	agent, err := e.Directory.Agent(ctx, who.AgentID)
	if err != nil {
		return e.fail(log, fmt.Errorf("load agent: %w", err))
	}

	balance, err := e.Wallet.Balance(ctx, agent, who.UserID)
	if err != nil {
		return e.fail(log, err)
	}

	facts, err := e.lookup(ctx, req)
	if err != nil {
		return e.fail(log, err)
	}

	d := Decide(ev, balance, req, facts)
	res := Result{
		Outcome:       d.Outcome,
		Status:        d.Status,
		BalanceBefore: balance,
		BalanceAfter:  balance,
	}
	if d.Outcome != OutcomeAccepted {
		log.Info().Str("outcome", d.Outcome.String()).Int("status", d.Status.Code).Msg("callback not applied")
		return res
	}

	// Config is read before money moves so a missing commission row cannot
	// leave a wallet updated without its ledger record.
	comm, err := e.Directory.Commission(ctx, e.GameID, who.AgentID)
	if err != nil {
		return e.fail(log, fmt.Errorf("load commission: %w", err))
	}

	if !d.Delta.IsZero() {
		if err := e.Wallet.Apply(ctx, agent, who.UserID, d.Delta, req.ID.String()); err != nil {
			return e.fail(log, err)
		}
	}

	now := e.now()
	record := e.record(ev, who, req, comm, now)
	if err := e.Ledger.Create(ctx, record); err != nil {
		// The wallet has moved but the ledger has not; this needs a
		// settlement audit to reconcile.
		log.Error().Err(err).Str("delta", d.Delta.String()).Msg("wallet updated but ledger insert failed")
		return Result{
			Outcome: OutcomeRejected,
			Status:  StatusInternal,
			Err:     apperr.Reported("ledger.create", err),
		}
	}

	if err := e.Publisher.Publish(ctx, record); err != nil {
		log.Warn().Err(err).Uint64("ledgerId", record.ID).Msg("publish ledger event failed")
	}

	res.Delta = d.Delta
	res.BalanceAfter = balance.Add(d.Delta)
	log.Info().
		Str("action", string(record.TransAction)).
		Str("delta", d.Delta.String()).
		Uint64("ledgerId", record.ID).
		Msg("callback applied")
	return res
}

// lock takes the round lock, then the transfer lock. Nothing takes them in
// the other order.
func (e *Engine) lock(ctx context.Context, roundID, transferID string) (locks.Unlock, error) {
	lctx, cancel := context.WithTimeout(ctx, e.LockWait)
	defer cancel()

	return e.Locker.Lock(lctx, "round:"+roundID, "transfer:"+transferID)
}

func (e *Engine) lookup(ctx context.Context, req *Request) (Facts, error) {
	txn := req.first()

	seen, err := e.Ledger.TransferExists(ctx, req.ID.String())
	if err != nil {
		return Facts{}, err
	}
	lastByTxn, err := e.Ledger.LastByTransaction(ctx, txn.TxnID.String())
	if err != nil {
		return Facts{}, err
	}
	history, err := e.Ledger.RoundHistory(ctx, txn.RoundID.String())
	if err != nil {
		return Facts{}, err
	}
	return Facts{TransferSeen: seen, LastByTxn: lastByTxn, History: history}, nil
}

func (e *Engine) record(ev Event, who identity.Identity, req *Request, comm *models.Commission, now time.Time) *models.Transaction {
	txn := req.first()

	var playInfo datatypes.JSON
	if len(txn.PlayInfo) > 0 && string(txn.PlayInfo) != "null" {
		playInfo = datatypes.JSON(txn.PlayInfo)
	}

	return &models.Transaction{
		AgentID:                     who.AgentID,
		UserID:                      who.UserID,
		TransAction:                 ev.Action(),
		TransDate:                   now.Unix(),
		TransferID:                  req.ID.String(),
		TransactionID:               txn.TxnID.String(),
		RoundID:                     txn.RoundID.String(),
		PlayInfo:                    playInfo,
		GameCode:                    txn.GameCode,
		TurnOver:                    txn.TurnOver,
		IsEndRound:                  req.isEndRound(),
		BetAmount:                   txn.BetAmount,
		WinAmount:                   txn.PayoutAmount,
		CreateDate:                  now,
		PercentUserCommission:       comm.PercentUserCommission,
		PercentAgentShare:           comm.PercentAgentShare,
		PercentAgentCommissionShare: comm.PercentAgentCommissionShare,
	}
}

// fail turns err into the callback's answer: validation errors are the
// provider's fault and answer FORBIDDEN_REQUEST, anything else is ours.
func (e *Engine) fail(log zerolog.Logger, err error) Result {
	status := statusOf(err)
	if !apperr.IsReported(err) {
		if status == StatusForbidden {
			log.Warn().Err(err).Msg("callback refused")
		} else {
			log.Error().Err(err).Msg("callback failed")
		}
		err = &apperr.Error{Kind: apperr.KindOf(err), Reported: true, Op: "reconcile", Err: err}
	}
	return Result{Outcome: OutcomeRejected, Status: status, Err: err}
}

func statusOf(err error) Status {
	if apperr.KindOf(err) == apperr.KindValidation {
		return StatusForbidden
	}
	return StatusInternal
}

func (e *Engine) reported(err error, msg string, who identity.Identity) error {
	if apperr.IsReported(err) {
		return err
	}
	e.Log.Error().Err(err).Int("agentId", who.AgentID).Str("userId", who.UserID).Msg(msg)
	return apperr.Reported(msg, err)
}
