package ethersub

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethersub/ethersub-go/ledger"
	"github.com/ethersub/ethersub-go/wallet"
)

// fakeBridge simulates a browser wallet extension: a configurable account
// list, chain state, rejection behavior, and notification fan-out.
type fakeBridge struct {
	mu          sync.Mutex
	accounts    []common.Address
	chainID     *big.Int
	knownChains map[string]bool

	requestErr   error
	rejectSwitch bool
	addErr       error
	sendErr      error

	nextHash  common.Hash
	sentTxs   []wallet.TxRequest
	listeners []wallet.Listener

	requestCalls int
	switchCalls  int
	addCalls     int
	sendCalls    int
}

func newFakeBridge(account common.Address, chainID int64) *fakeBridge {
	return &fakeBridge{
		accounts:    []common.Address{account},
		chainID:     big.NewInt(chainID),
		knownChains: map[string]bool{big.NewInt(chainID).String(): true},
		nextHash:    common.HexToHash("0xdeadbeef"),
	}
}

func (b *fakeBridge) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requestCalls++
	if b.requestErr != nil {
		return nil, b.requestErr
	}
	return append([]common.Address(nil), b.accounts...), nil
}

func (b *fakeBridge) Accounts(ctx context.Context) ([]common.Address, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]common.Address(nil), b.accounts...), nil
}

func (b *fakeBridge) ChainID(ctx context.Context) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.chainID), nil
}

func (b *fakeBridge) SwitchChain(ctx context.Context, chainID *big.Int) error {
	b.mu.Lock()
	b.switchCalls++
	if b.rejectSwitch {
		b.mu.Unlock()
		return wallet.NewRPCError(wallet.CodeUserRejected, "user rejected the request")
	}
	if !b.knownChains[chainID.String()] {
		b.mu.Unlock()
		return wallet.NewRPCError(wallet.CodeUnrecognizedChain, "unrecognized chain")
	}
	b.chainID = new(big.Int).Set(chainID)
	listeners := append([]wallet.Listener(nil), b.listeners...)
	b.mu.Unlock()

	for _, l := range listeners {
		l.ChainChanged(chainID)
	}
	return nil
}

func (b *fakeBridge) AddChain(ctx context.Context, desc wallet.ChainDescriptor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addCalls++
	if b.addErr != nil {
		return b.addErr
	}
	b.knownChains[desc.ChainID.String()] = true
	return nil
}

func (b *fakeBridge) SendTransaction(ctx context.Context, tx wallet.TxRequest) (common.Hash, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendCalls++
	if b.sendErr != nil {
		return common.Hash{}, b.sendErr
	}
	b.sentTxs = append(b.sentTxs, tx)
	return b.nextHash, nil
}

func (b *fakeBridge) Subscribe(l wallet.Listener) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
	idx := len(b.listeners) - 1
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if idx < len(b.listeners) {
			b.listeners[idx] = nopListener{}
		}
	}
}

func (b *fakeBridge) emitAccountsChanged(accounts []common.Address) {
	b.mu.Lock()
	b.accounts = accounts
	listeners := append([]wallet.Listener(nil), b.listeners...)
	b.mu.Unlock()
	for _, l := range listeners {
		l.AccountsChanged(accounts)
	}
}

func (b *fakeBridge) emitChainChanged(chainID *big.Int) {
	b.mu.Lock()
	b.chainID = new(big.Int).Set(chainID)
	listeners := append([]wallet.Listener(nil), b.listeners...)
	b.mu.Unlock()
	for _, l := range listeners {
		l.ChainChanged(chainID)
	}
}

type nopListener struct{}

func (nopListener) AccountsChanged([]common.Address) {}
func (nopListener) ChainChanged(*big.Int)            {}

// fakeLedger is an in-memory stand-in for the contract: a feature and plan
// catalog, a movable price oracle, per-account positions, and scripted
// failures.
type fakeLedger struct {
	mu       sync.Mutex
	owner    common.Address
	features []ledger.Feature
	plans    []ledger.Plan

	// ethCosts is keyed by "plan-months"; usd quote is derived as 2x for
	// simplicity.
	ethCosts map[string]*big.Int
	priceErr map[string]error

	featuresErr  error
	plansErr     error
	featuresHang bool

	active map[common.Address]map[string]ledger.SubscriptionStatus
	order  map[common.Address][]string

	subscribeErr   error
	onSubscribe    func(plan string, months, slippage int64, value *big.Int)
	lastValue      *big.Int
	subscribeCalls int

	waitGate    chan struct{}
	beforeMined func()
	minedRevert bool
	nextHash    common.Hash
	submitted   []common.Hash
	writeErr    error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		ethCosts: make(map[string]*big.Int),
		priceErr: make(map[string]error),
		active:   make(map[common.Address]map[string]ledger.SubscriptionStatus),
		order:    make(map[common.Address][]string),
		nextHash: common.HexToHash("0xfeedface"),
	}
}

func costKey(plan string, months int64) string {
	return fmt.Sprintf("%s-%d", plan, months)
}

func (f *fakeLedger) setCost(plan string, months int64, wei int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ethCosts[costKey(plan, months)] = big.NewInt(wei)
}

func (f *fakeLedger) addActive(account common.Address, plan string, amountPaid int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.active[account] == nil {
		f.active[account] = make(map[string]ledger.SubscriptionStatus)
	}
	f.active[account][plan] = ledger.SubscriptionStatus{
		Active:     true,
		StartTime:  big.NewInt(0),
		AmountPaid: big.NewInt(amountPaid),
	}
	f.order[account] = append(f.order[account], plan)
}

// LedgerReader

func (f *fakeLedger) Owner(ctx context.Context) (common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owner, nil
}

func (f *fakeLedger) Features(ctx context.Context) ([]ledger.Feature, error) {
	f.mu.Lock()
	hang := f.featuresHang
	err := f.featuresErr
	features := append([]ledger.Feature(nil), f.features...)
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}
	return features, nil
}

func (f *fakeLedger) Plans(ctx context.Context) ([]ledger.Plan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.plansErr != nil {
		return nil, f.plansErr
	}
	return append([]ledger.Plan(nil), f.plans...), nil
}

func (f *fakeLedger) SubscriptionCost(ctx context.Context, planName string, months int64) (*big.Int, *big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.priceErr[planName]; err != nil {
		return nil, nil, err
	}
	cost, ok := f.ethCosts[costKey(planName, months)]
	if !ok {
		return nil, nil, fmt.Errorf("execution reverted: unknown plan %s", planName)
	}
	eth := new(big.Int).Set(cost)
	return eth, new(big.Int).Mul(eth, big.NewInt(2)), nil
}

func (f *fakeLedger) ActiveSubscriptions(ctx context.Context, account common.Address) ([]string, []*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	var remaining []*big.Int
	for _, plan := range f.order[account] {
		if status, ok := f.active[account][plan]; ok && status.Active {
			names = append(names, plan)
			remaining = append(remaining, big.NewInt(86400*30))
		}
	}
	return names, remaining, nil
}

func (f *fakeLedger) SubscriptionStatus(ctx context.Context, account common.Address, planName string) (ledger.SubscriptionStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.active[account][planName]
	if !ok {
		return ledger.SubscriptionStatus{}, fmt.Errorf("execution reverted: no subscription for %s", planName)
	}
	return status, nil
}

func (f *fakeLedger) PlanDetails(ctx context.Context, planName string) (ledger.PlanDetails, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, plan := range f.plans {
		if plan.Name == planName {
			var feats []ledger.Feature
			for _, id := range plan.AllowedFeatures {
				for _, known := range f.features {
					if known.FeatureId == id {
						feats = append(feats, known)
					}
				}
			}
			return ledger.PlanDetails{
				Name:           plan.Name,
				AmountPerMonth: plan.AmountPerMonth,
				Active:         true,
				Features:       feats,
			}, nil
		}
	}
	return ledger.PlanDetails{}, fmt.Errorf("execution reverted: unknown plan %s", planName)
}

func (f *fakeLedger) TreasuryBalance(ctx context.Context) (*big.Int, error) {
	return big.NewInt(1e18), nil
}

func (f *fakeLedger) AccountBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	return big.NewInt(5e18), nil
}

// LedgerWriter

func (f *fakeLedger) submit() (common.Hash, error) {
	if f.writeErr != nil {
		return common.Hash{}, f.writeErr
	}
	f.submitted = append(f.submitted, f.nextHash)
	return f.nextHash, nil
}

func (f *fakeLedger) CreateFeature(ctx context.Context, featureID, name, description string) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash, err := f.submit()
	if err == nil {
		f.features = append(f.features, ledger.Feature{FeatureId: featureID, Name: name, Description: description})
	}
	return hash, err
}

func (f *fakeLedger) CreatePlan(ctx context.Context, name string, amountUSD *big.Int, featureIDs []string) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash, err := f.submit()
	if err == nil {
		f.plans = append(f.plans, ledger.Plan{Name: name, AmountPerMonth: amountUSD, AllowedFeatures: featureIDs})
	}
	return hash, err
}

func (f *fakeLedger) Subscribe(ctx context.Context, planName string, months, slippagePercent int64, value *big.Int, gasLimit uint64) (common.Hash, error) {
	f.mu.Lock()
	f.subscribeCalls++
	f.lastValue = new(big.Int).Set(value)
	hook := f.onSubscribe
	err := f.subscribeErr
	f.mu.Unlock()

	if err != nil {
		return common.Hash{}, err
	}
	if hook != nil {
		hook(planName, months, slippagePercent, value)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submit()
}

func (f *fakeLedger) CancelSubscription(ctx context.Context, planName string) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submit()
}

func (f *fakeLedger) Withdraw(ctx context.Context) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submit()
}

func (f *fakeLedger) AutoCleanup(ctx context.Context) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submit()
}

func (f *fakeLedger) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	gate := f.waitGate
	hook := f.beforeMined
	revert := f.minedRevert
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if hook != nil {
		hook()
	}
	if revert {
		return &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(100)}, ledger.ErrTxReverted
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(100)}, nil
}

var (
	_ LedgerReader  = (*fakeLedger)(nil)
	_ LedgerWriter  = (*fakeLedger)(nil)
	_ wallet.Bridge = (*fakeBridge)(nil)
)
