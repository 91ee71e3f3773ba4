package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"i8gateway/apperr"
	"i8gateway/identity"
	"i8gateway/ledger"
	"i8gateway/locks"
	"i8gateway/metrics"
	"i8gateway/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWallet struct {
	mu        sync.Mutex
	balance   decimal.Decimal
	applied   []decimal.Decimal
	failApply error
}

func (w *fakeWallet) Balance(context.Context, *models.Agent, string) (decimal.Decimal, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance, nil
}

func (w *fakeWallet) Apply(_ context.Context, _ *models.Agent, _ string, delta decimal.Decimal, _ string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.failApply != nil {
		return apperr.Reported("wallet.update_balance", w.failApply)
	}
	w.applied = append(w.applied, delta)
	w.balance = w.balance.Add(delta)
	return nil
}

func (w *fakeWallet) calls() []decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]decimal.Decimal(nil), w.applied...)
}

type fakeDirectory struct {
	commission *models.Commission
}

func (d *fakeDirectory) Agent(_ context.Context, id int) (*models.Agent, error) {
	return &models.Agent{AgentID: id, AgentPrefix: "amb", CallbackDomain: "http://wallet.test"}, nil
}

func (d *fakeDirectory) Commission(context.Context, string, int) (*models.Commission, error) {
	if d.commission == nil {
		return nil, errors.New("commission config not found")
	}
	return d.commission, nil
}

type harness struct {
	engine *Engine
	ledger *ledger.Memory
	wallet *fakeWallet
	dir    *fakeDirectory
}

func newHarness(t *testing.T, balance string) *harness {
	t.Helper()

	h := &harness{
		ledger: ledger.NewMemory(),
		wallet: &fakeWallet{balance: dec(balance)},
		dir: &fakeDirectory{commission: &models.Commission{
			PercentUserCommission:       dec("1.5"),
			PercentAgentShare:           dec("40"),
			PercentAgentCommissionShare: dec("10"),
		}},
	}
	h.engine = NewEngine(Deps{
		Ledger:    h.ledger,
		Wallet:    h.wallet,
		Directory: h.dir,
		Locker:    locks.NewMemoryLocker(),
		Metrics:   metrics.New(),
		Log:       zerolog.Nop(),
		GameID:    "i8",
	})
	return h
}

var player = identity.Identity{AgentPrefix: "amb", AgentID: 1, UserID: "player1"}

func callback(transferID, txnID, roundID, bet, payout string) *Request {
	return &Request{
		ID:       models.FlexibleString(transferID),
		Username: "amb0001player1",
		Currency: "THB",
		Txns: []Txn{{
			TxnID:        models.FlexibleString(txnID),
			RoundID:      models.FlexibleString(roundID),
			BetAmount:    dec(bet),
			PayoutAmount: dec(payout),
			GameCode:     "slot-1",
		}},
	}
}

func (h *harness) run(ev Event, r *Request) Result {
	return h.engine.Handle(context.Background(), ev, player, r)
}

func (h *harness) countTransfer(transferID string) int {
	n := 0
	for _, r := range h.ledger.All() {
		if r.TransferID == transferID {
			n++
		}
	}
	return n
}

func TestPlaceBetsIsIdempotent(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "100")

	first := h.run(EventPlaceBets, callback("tr-1", "x1", "r1", "10", "0"))
	require.Equal(t, StatusSuccess, first.Status)
	assert.Equal(t, "100.00", first.BalanceBefore.StringFixed(2))
	assert.Equal(t, "90.00", first.BalanceAfter.StringFixed(2))

	second := h.run(EventPlaceBets, callback("tr-1", "x1", "r1", "10", "0"))
	assert.Equal(t, OutcomeDuplicate, second.Outcome)
	assert.Equal(t, StatusDuplicate, second.Status)
	assert.True(t, first.BalanceAfter.Equal(second.BalanceBefore))

	assert.Equal(t, 1, h.countTransfer("tr-1"))
	assert.Len(t, h.wallet.calls(), 1)
}

func TestPlaceBetsRetryWithNewTransferID(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "100")

	require.Equal(t, StatusSuccess, h.run(EventPlaceBets, callback("tr-1", "x1", "r1", "10", "0")).Status)
	res := h.run(EventPlaceBets, callback("tr-2", "x1", "r1", "10", "0"))

	assert.Equal(t, StatusDuplicate, res.Status)
	assert.Len(t, h.wallet.calls(), 1)
}

func TestPlaceBetsInsufficientBalance(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "10.00")

	res := h.run(EventPlaceBets, callback("tr-1", "x1", "r1", "15.00", "0"))

	assert.Equal(t, OutcomeRejected, res.Outcome)
	assert.Equal(t, StatusInsufficientBalance, res.Status)
	assert.Empty(t, h.wallet.calls())
	assert.Empty(t, h.ledger.All())
}

func TestSettleAfterCancel(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "100")

	require.Equal(t, StatusSuccess, h.run(EventPlaceBets, callback("tr-1", "x1", "r1", "10", "0")).Status)
	require.Equal(t, StatusSuccess, h.run(EventCancelBets, callback("tr-2", "x1", "r1", "10", "0")).Status)

	res := h.run(EventSettleBets, callback("tr-3", "x1", "r1", "10", "25"))
	assert.Equal(t, StatusAlreadyCanceled, res.Status)
	assert.Equal(t, "100", h.wallet.balance.String())
}

func TestCancelAfterSettle(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "100")

	require.Equal(t, StatusSuccess, h.run(EventPlaceBets, callback("tr-1", "x1", "r1", "10", "0")).Status)
	require.Equal(t, StatusSuccess, h.run(EventSettleBets, callback("tr-2", "x1", "r1", "10", "25")).Status)

	res := h.run(EventCancelBets, callback("tr-3", "x1", "r1", "10", "0"))
	assert.Equal(t, StatusAlreadySettled, res.Status)
	assert.Len(t, h.ledger.All(), 2)
}

func TestUnsettleReversesWinAmount(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "100")

	require.Equal(t, StatusSuccess, h.run(EventPlaceBets, callback("tr-1", "x1", "r1", "10", "0")).Status)
	require.Equal(t, StatusSuccess, h.run(EventSettleBets, callback("tr-2", "x1", "r1", "10", "50")).Status)

	res := h.run(EventUnsettleBets, callback("tr-3", "x1", "r1", "10", "0"))
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "-50", res.Delta.String())

	calls := h.wallet.calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "-50", calls[2].String())

	// After the reversal the round can be settled again.
	again := h.run(EventSettleBets, callback("tr-4", "x1", "r1", "10", "30"))
	assert.Equal(t, StatusSuccess, again.Status)
}

func TestUnsettleUnknownRound(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "100")

	res := h.run(EventUnsettleBets, callback("tr-1", "x1", "r-missing", "10", "0"))
	assert.Equal(t, OutcomeNotFound, res.Outcome)
	assert.Equal(t, StatusTransactionNotFound, res.Status)
	assert.Empty(t, h.ledger.All())
}

func TestPlaceThenSettleDeltas(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "100")

	place := h.run(EventPlaceBets, callback("tr-1", "x1", "r1", "10", "0"))
	settle := h.run(EventSettleBets, callback("tr-2", "x1", "r1", "10", "25"))

	assert.Equal(t, "-10", place.Delta.String())
	assert.Equal(t, "15", settle.Delta.String())
	assert.Equal(t, "105", h.wallet.balance.String())
	assert.True(t, settle.BalanceAfter.Equal(dec("105")))
}

func TestVoidWithoutNetChangeSkipsWallet(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "100")

	require.Equal(t, StatusSuccess, h.run(EventPlaceBets, callback("tr-1", "x1", "r1", "20", "0")).Status)
	before := len(h.wallet.calls())

	res := h.run(EventVoidBets, callback("tr-2", "x1", "r1", "20", "20"))
	require.Equal(t, StatusSuccess, res.Status)
	assert.Len(t, h.wallet.calls(), before)

	all := h.ledger.All()
	require.Len(t, all, 2)
	assert.Equal(t, models.ActionVoid, all[1].TransAction)
}

func TestWalletFailureWritesNothing(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "100")
	h.wallet.failApply = errors.New("connection reset")

	res := h.run(EventPlaceBets, callback("tr-1", "x1", "r1", "10", "0"))
	assert.Equal(t, StatusInternal, res.Status)
	assert.True(t, apperr.IsReported(res.Err))
	assert.Empty(t, h.ledger.All())

	// Redelivery is a fresh attempt.
	h.wallet.failApply = nil
	res = h.run(EventPlaceBets, callback("tr-1", "x1", "r1", "10", "0"))
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, 1, h.countTransfer("tr-1"))
}

func TestMissingCommissionFailsBeforeWallet(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "100")
	h.dir.commission = nil

	res := h.run(EventWinRewards, callback("tr-1", "b1", "bonus-1", "0", "5"))
	assert.Equal(t, StatusInternal, res.Status)
	assert.True(t, apperr.IsReported(res.Err))
	assert.Empty(t, h.wallet.calls())
	assert.Empty(t, h.ledger.All())
}

func TestRecordCarriesSnapshot(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "100")

	r := callback("tr-1", "x1", "r1", "10", "0")
	r.Txns[0].TurnOver = dec("10")
	r.Txns[0].PlayInfo = []byte(`{"lines":20}`)
	end := true
	r.IsEndRound = &end
	require.Equal(t, StatusSuccess, h.run(EventPlaceBets, r).Status)

	// The snapshot does not follow later config changes.
	h.dir.commission = &models.Commission{PercentUserCommission: dec("9")}

	got := h.ledger.All()[0]
	assert.Equal(t, models.ActionOpen, got.TransAction)
	assert.Equal(t, 1, got.AgentID)
	assert.Equal(t, "player1", got.UserID)
	assert.Equal(t, "x1", got.TransactionID)
	assert.Equal(t, "r1", got.RoundID)
	assert.Equal(t, "slot-1", got.GameCode)
	assert.True(t, got.IsEndRound)
	assert.JSONEq(t, `{"lines":20}`, string(got.PlayInfo))
	assert.True(t, dec("1.5").Equal(got.PercentUserCommission))
	assert.True(t, dec("40").Equal(got.PercentAgentShare))
	assert.True(t, dec("10").Equal(got.PercentAgentCommissionShare))
	assert.NotZero(t, got.TransDate)
}

func TestMalformedRequestIsForbidden(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "100")

	res := h.run(EventPlaceBets, &Request{ID: "tr-1"})
	assert.Equal(t, StatusForbidden, res.Status)
	assert.Empty(t, h.wallet.calls())
}

func TestConcurrentCallbacksOnOneRound(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "1000")

	var wg sync.WaitGroup
	results := make([]Result, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.run(EventPlaceBets, callback(fmt.Sprintf("tr-%d", i), "x1", "r1", "10", "0"))
		}(i)
	}
	wg.Wait()

	accepted := 0
	for _, r := range results {
		if r.Status == StatusSuccess {
			accepted++
		} else {
			assert.Equal(t, StatusDuplicate, r.Status)
		}
	}
	assert.Equal(t, 1, accepted)
	assert.Len(t, h.wallet.calls(), 1)
	assert.Equal(t, "990", h.wallet.balance.String())
}

func TestBalance(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "42.50")

	bal, err := h.engine.Balance(context.Background(), player)
	require.NoError(t, err)
	assert.Equal(t, "42.50", bal.StringFixed(2))
	assert.Empty(t, h.ledger.All())
}

// columnLimitedLedger refuses rows the SQL schema would refuse.
type columnLimitedLedger struct {
	*ledger.Memory
}

func (l columnLimitedLedger) Create(ctx context.Context, tx *models.Transaction) error {
	for _, v := range []string{tx.TransferID, tx.TransactionID, tx.RoundID} {
		if len(v) > models.MaxRefLen {
			return errors.New("value too long for type character varying(128)")
		}
	}
	if len(tx.UserID) > models.MaxUserIDLen || len(tx.GameCode) > models.MaxGameCodeLen {
		return errors.New("value too long for type character varying(64)")
	}
	return l.Memory.Create(ctx, tx)
}

func TestOversizedFieldsRefusedBeforeWallet(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("r", models.MaxRefLen+1)
	tests := []struct {
		name   string
		who    identity.Identity
		mutate func(*Request)
	}{
		{"round id", player, func(r *Request) { r.Txns[0].RoundID = models.FlexibleString(long) }},
		{"txn id", player, func(r *Request) { r.Txns[0].TxnID = models.FlexibleString(long) }},
		{"transfer id", player, func(r *Request) { r.ID = models.FlexibleString(long) }},
		{"game code", player, func(r *Request) { r.Txns[0].GameCode = strings.Repeat("g", models.MaxGameCodeLen+1) }},
		{"user id", identity.Identity{AgentPrefix: "amb", AgentID: 1, UserID: strings.Repeat("u", models.MaxUserIDLen+1)}, func(*Request) {}},
		{"bet amount", player, func(r *Request) { r.Txns[0].BetAmount = dec("1000000000000000000") }},
		{"payout on a later txn", player, func(r *Request) {
			r.Txns = append(r.Txns, Txn{TxnID: "x2", RoundID: "r1", PayoutAmount: dec("-1e18")})
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t, "100")
			h.engine.Ledger = columnLimitedLedger{h.ledger}

			for attempt := 0; attempt < 2; attempt++ {
				r := callback("tr-1", "x1", "r1", "10", "0")
				tt.mutate(r)
				res := h.engine.Handle(context.Background(), EventPlaceBets, tt.who, r)

				assert.Equal(t, StatusForbidden, res.Status)
				assert.Equal(t, apperr.KindValidation, apperr.KindOf(res.Err))
				assert.True(t, apperr.IsReported(res.Err))
			}
			assert.Empty(t, h.wallet.calls())
			assert.Empty(t, h.ledger.All())
		})
	}
}

func TestFieldsAtColumnLimitAreAccepted(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "100")
	h.engine.Ledger = columnLimitedLedger{h.ledger}

	id := strings.Repeat("r", models.MaxRefLen)
	r := callback(id, id, id, "10", "0")
	r.Txns[0].GameCode = strings.Repeat("g", models.MaxGameCodeLen)

	res := h.run(EventPlaceBets, r)
	require.Equal(t, StatusSuccess, res.Status)
	assert.Len(t, h.ledger.All(), 1)
}

func TestUnknownEventIsForbidden(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "100")

	res := h.run(Event("refundAll"), callback("tr-1", "x1", "r1", "10", "0"))
	assert.Equal(t, StatusForbidden, res.Status)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(res.Err))
}

func TestUpstreamFailureKind(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "100")
	h.wallet.failApply = errors.New("connection reset")

	res := h.run(EventPlaceBets, callback("tr-1", "x1", "r1", "10", "0"))
	assert.Equal(t, StatusInternal, res.Status)
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(res.Err))
}

func TestNegativeRewardOnEmptyBalance(t *testing.T) {
	t.Parallel()
	h := newHarness(t, "0")

	res := h.run(EventWinRewards, callback("tr-1", "b1", "bonus-1", "0", "-5"))
	require.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "-5", res.BalanceAfter.String())
	assert.Len(t, h.wallet.calls(), 1)
}
