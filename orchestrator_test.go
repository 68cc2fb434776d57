package ethersub

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orchestratorFixture struct {
	bridge  *fakeBridge
	ledger  *fakeLedger
	session *SessionManager
	catalog *CatalogReader
	orch    *Orchestrator
}

func newOrchestratorFixture(t *testing.T, chainID int64) *orchestratorFixture {
	t.Helper()
	bridge := newFakeBridge(accountA, chainID)
	fake := newFakeLedger()
	seedCatalog(fake)

	session := NewSessionManager(bridge, zerolog.Nop())
	guard := NewNetworkGuard(session, bridge, Sepolia, zerolog.Nop())
	catalog := NewCatalogReader(fake, session, guard, DefaultReadTimeout, zerolog.Nop())
	orch := NewOrchestrator(session, guard, fake, fake, catalog, zerolog.Nop())

	_, err := session.Connect(context.Background())
	require.NoError(t, err)

	return &orchestratorFixture{
		bridge:  bridge,
		ledger:  fake,
		session: session,
		catalog: catalog,
		orch:    orch,
	}
}

func TestSubscribeInvalidDuration(t *testing.T) {
	fx := newOrchestratorFixture(t, 11155111)

	for _, months := range []int64{0, 2, 6, 13, -1} {
		_, err := fx.orch.Subscribe(context.Background(), "Pro", months)
		assert.Equal(t, CodeInvalidInput, CodeOf(err), "months=%d", months)
	}

	// Validation failures never reach the wallet or the contract.
	assert.Equal(t, 0, fx.ledger.subscribeCalls)
}

func TestSubscribeEmptyPlanName(t *testing.T) {
	fx := newOrchestratorFixture(t, 11155111)

	_, err := fx.orch.Subscribe(context.Background(), "", 12)
	assert.Equal(t, CodeInvalidInput, CodeOf(err))
}

func TestSubscribeUsesFreshPriceWithSlippageCeiling(t *testing.T) {
	fx := newOrchestratorFixture(t, 11155111)

	// The catalog was loaded at one price...
	_, err := fx.catalog.LoadCatalog(context.Background())
	require.NoError(t, err)

	// ...then the oracle moves before the user submits.
	fx.ledger.setCost("Pro", 12, 20000)

	op, err := fx.orch.Subscribe(context.Background(), "Pro", 12)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, op.Status())

	// Attached value is ceil(fresh cost x 105 / 100), not the stale figure.
	assert.Equal(t, int64(21000), fx.ledger.lastValue.Int64())
}

func TestSubscribeSlippageCeilingRoundsUp(t *testing.T) {
	tests := []struct {
		cost int64
		pct  int64
		want int64
	}{
		{100, 5, 105},
		{1000, 5, 1050},
		{33, 5, 35},  // 34.65 rounds up
		{1, 5, 2},    // 1.05 rounds up
		{0, 5, 0},
		{10800, 5, 11340},
	}
	for _, tt := range tests {
		got := applySlippageCeiling(big.NewInt(tt.cost), tt.pct)
		assert.Equal(t, tt.want, got.Int64(), "cost=%d", tt.cost)
	}
}

func TestSubscribeDuplicateRejectedWithoutSecondPrompt(t *testing.T) {
	fx := newOrchestratorFixture(t, 11155111)

	gate := make(chan struct{})
	fx.ledger.waitGate = gate

	firstDone := make(chan error, 1)
	go func() {
		_, err := fx.orch.Subscribe(context.Background(), "Pro", 12)
		firstDone <- err
	}()

	// Wait until the first submission is holding the confirmation gate.
	require.Eventually(t, func() bool {
		fx.ledger.mu.Lock()
		defer fx.ledger.mu.Unlock()
		return fx.ledger.subscribeCalls == 1
	}, time.Second, 5*time.Millisecond)

	_, err := fx.orch.Subscribe(context.Background(), "Pro", 12)
	assert.Equal(t, CodeDuplicateOperation, CodeOf(err))

	close(gate)
	require.NoError(t, <-firstDone)

	// A different key is an independent slot.
	_, err = fx.orch.Subscribe(context.Background(), "Basic", 1)
	require.NoError(t, err)

	// Exactly one submission per key: the duplicate never reached the wallet.
	assert.Equal(t, 2, fx.ledger.subscribeCalls)
}

func TestSubscribeOnWrongNetworkSwitchesFirst(t *testing.T) {
	fx := newOrchestratorFixture(t, 1)
	require.False(t, fx.session.ChainID().Cmp(Sepolia.ChainID) == 0)

	op, err := fx.orch.Subscribe(context.Background(), "Pro", 12)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, op.Status())
	assert.GreaterOrEqual(t, fx.bridge.switchCalls, 1)
}

func TestSubscribeNetworkSwitchRejectedBlocksSubmission(t *testing.T) {
	fx := newOrchestratorFixture(t, 1)
	fx.bridge.rejectSwitch = true

	op, err := fx.orch.Subscribe(context.Background(), "Pro", 12)
	assert.Equal(t, CodeNetworkSwitchRejected, CodeOf(err))
	assert.Equal(t, StatusFailed, op.Status())
	assert.Equal(t, 0, fx.ledger.subscribeCalls)
}

func TestAccountChangeDuringSignatureFailsOperation(t *testing.T) {
	fx := newOrchestratorFixture(t, 11155111)

	// The switch lands while the wallet prompt is open, before broadcast
	// returns.
	fx.ledger.onSubscribe = func(string, int64, int64, *big.Int) {
		fx.bridge.emitAccountsChanged([]common.Address{accountB})
	}
	var waited bool
	fx.ledger.beforeMined = func() { waited = true }

	op, err := fx.orch.Subscribe(context.Background(), "Pro", 12)
	require.Error(t, err)
	assert.Equal(t, CodeNetworkChanged, CodeOf(err))
	assert.Equal(t, StatusFailed, op.Status())
	assert.Equal(t, CodeNetworkChanged, op.Reason())

	// The operation never advances to the confirmation wait: a signature
	// obtained under the old identity stays failed.
	assert.False(t, waited)
}

func TestChainChangeDuringSignatureFailsOperation(t *testing.T) {
	fx := newOrchestratorFixture(t, 11155111)

	fx.ledger.onSubscribe = func(string, int64, int64, *big.Int) {
		fx.bridge.emitChainChanged(big.NewInt(1))
	}

	op, err := fx.orch.Subscribe(context.Background(), "Pro", 12)
	require.Error(t, err)
	assert.Equal(t, CodeNetworkChanged, CodeOf(err))
	assert.Equal(t, StatusFailed, op.Status())
}

func TestChainChangeWhileAwaitingConfirmationFailsOperation(t *testing.T) {
	fx := newOrchestratorFixture(t, 11155111)

	fx.ledger.beforeMined = func() {
		fx.bridge.emitChainChanged(big.NewInt(1))
	}

	op, err := fx.orch.Subscribe(context.Background(), "Pro", 12)
	require.Error(t, err)
	assert.Equal(t, CodeNetworkChanged, CodeOf(err))
	assert.Equal(t, StatusFailed, op.Status())
	assert.Equal(t, CodeNetworkChanged, op.Reason())
}

func TestDisconnectWhileAwaitingConfirmationFailsOperation(t *testing.T) {
	fx := newOrchestratorFixture(t, 11155111)

	fx.ledger.beforeMined = func() {
		fx.bridge.emitAccountsChanged(nil)
	}

	op, err := fx.orch.Subscribe(context.Background(), "Pro", 12)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, op.Status())
	assert.Equal(t, CodeNetworkChanged, op.Reason())
}

func TestSubscribeConfirmationTriggersRefresh(t *testing.T) {
	fx := newOrchestratorFixture(t, 11155111)

	fx.ledger.onSubscribe = func(plan string, months, slippage int64, value *big.Int) {
		fx.ledger.addActive(accountA, plan, value.Int64())
	}

	op, err := fx.orch.Subscribe(context.Background(), "Pro", 12)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, op.Status())

	// The refresh ran before Subscribe returned: the cached views already
	// include the new position.
	views := fx.catalog.Subscriptions(accountA)
	require.Len(t, views, 1)
	assert.Equal(t, "Pro", views[0].PlanName)
	assert.Greater(t, views[0].SecondsRemaining, int64(0))
}

func TestCancelMarksOptimisticRemoval(t *testing.T) {
	fx := newOrchestratorFixture(t, 11155111)
	fx.ledger.addActive(accountA, "Pro", 10800)

	_, err := fx.catalog.LoadActiveSubscriptions(context.Background(), accountA)
	require.NoError(t, err)

	op, err := fx.orch.CancelSubscription(context.Background(), "Pro")
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, op.Status())

	// The contract still reports the plan active in this fake, so the
	// refreshed view keeps it; the cancel path exercised the optimistic
	// marking before the authoritative re-read replaced the snapshot.
	assert.NotEqual(t, common.Hash{}, op.TxHash())
}

func TestCreateFeatureValidation(t *testing.T) {
	fx := newOrchestratorFixture(t, 11155111)

	for _, tt := range []struct{ id, name, desc string }{
		{"", "Name", "Desc"},
		{"id", "", "Desc"},
		{"id", "Name", ""},
	} {
		_, err := fx.orch.CreateFeature(context.Background(), tt.id, tt.name, tt.desc)
		assert.Equal(t, CodeInvalidInput, CodeOf(err))
	}

	_, err := fx.orch.CreateFeature(context.Background(), "analytics", "Analytics", "Usage dashboards")
	require.NoError(t, err)
}

func TestCreatePlanValidation(t *testing.T) {
	fx := newOrchestratorFixture(t, 11155111)

	_, err := fx.orch.CreatePlan(context.Background(), "", big.NewInt(10), []string{"api"})
	assert.Equal(t, CodeInvalidInput, CodeOf(err))

	_, err = fx.orch.CreatePlan(context.Background(), "Team", nil, []string{"api"})
	assert.Equal(t, CodeInvalidInput, CodeOf(err))

	_, err = fx.orch.CreatePlan(context.Background(), "Team", big.NewInt(0), []string{"api"})
	assert.Equal(t, CodeInvalidInput, CodeOf(err))

	_, err = fx.orch.CreatePlan(context.Background(), "Team", big.NewInt(10), nil)
	assert.Equal(t, CodeInvalidInput, CodeOf(err))

	_, err = fx.orch.CreatePlan(context.Background(), "Team", big.NewInt(10), []string{"api"})
	require.NoError(t, err)
}

func TestWithdrawUnauthorizedClassification(t *testing.T) {
	fx := newOrchestratorFixture(t, 11155111)
	fx.ledger.writeErr = errors.New("execution reverted: Ownable: caller is not the owner")

	op, err := fx.orch.Withdraw(context.Background())
	assert.Equal(t, CodeUnauthorized, CodeOf(err))
	assert.Equal(t, StatusFailed, op.Status())
	assert.Equal(t, CodeUnauthorized, op.Reason())
}

func TestSubscribeUserRejectsSignature(t *testing.T) {
	fx := newOrchestratorFixture(t, 11155111)
	fx.ledger.subscribeErr = errors.New("MetaMask Tx Signature: User denied transaction signature")

	op, err := fx.orch.Subscribe(context.Background(), "Pro", 12)
	assert.Equal(t, CodeUserRejected, CodeOf(err))
	assert.Equal(t, StatusFailed, op.Status())

	// The slot is released: an immediate retry is allowed.
	fx.ledger.subscribeErr = nil
	_, err = fx.orch.Subscribe(context.Background(), "Pro", 12)
	require.NoError(t, err)
}

func TestRevertedTransaction(t *testing.T) {
	fx := newOrchestratorFixture(t, 11155111)
	fx.ledger.minedRevert = true

	op, err := fx.orch.Subscribe(context.Background(), "Pro", 12)
	assert.Equal(t, CodeContractUnavailable, CodeOf(err))
	assert.Equal(t, StatusFailed, op.Status())
}

func TestSubscribeWithoutConnectedAccount(t *testing.T) {
	bridge := newFakeBridge(accountA, 11155111)
	fake := newFakeLedger()
	seedCatalog(fake)

	session := NewSessionManager(bridge, zerolog.Nop())
	guard := NewNetworkGuard(session, bridge, Sepolia, zerolog.Nop())
	catalog := NewCatalogReader(fake, session, guard, DefaultReadTimeout, zerolog.Nop())
	orch := NewOrchestrator(session, guard, fake, fake, catalog, zerolog.Nop())

	_, err := orch.Subscribe(context.Background(), "Pro", 12)
	assert.Equal(t, CodeWalletUnavailable, CodeOf(err))
	assert.Equal(t, 0, fake.subscribeCalls)
}
