package ethersub

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"

	"github.com/ethersub/ethersub-go/ledger"
)

// DefaultSlippagePercent is the fixed upward buffer applied to a freshly read
// subscription cost to absorb oracle movement between read and inclusion.
const DefaultSlippagePercent = 5

// DefaultSubscribeGasLimit is the fixed gas limit attached to subscribe
// calls, matching what the contract's subscribe path consumes.
const DefaultSubscribeGasLimit = 300000

// LedgerWriter is the mutating surface of the contract consumed by the
// orchestrator. Satisfied by *ledger.Writer.
type LedgerWriter interface {
	CreateFeature(ctx context.Context, featureID, name, description string) (common.Hash, error)
	CreatePlan(ctx context.Context, name string, amountUSD *big.Int, featureIDs []string) (common.Hash, error)
	Subscribe(ctx context.Context, planName string, months, slippagePercent int64, value *big.Int, gasLimit uint64) (common.Hash, error)
	CancelSubscription(ctx context.Context, planName string) (common.Hash, error)
	Withdraw(ctx context.Context) (common.Hash, error)
	AutoCleanup(ctx context.Context) (common.Hash, error)
	WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Orchestrator runs one state machine per mutating action: Validating →
// AwaitingSignature → Submitted → Confirmed | Failed. It re-reads prices at
// submission time, bounds the attached payment with a slippage ceiling,
// rejects duplicate (kind, key) submissions, and refreshes catalog state
// before a confirmed result becomes visible to the caller.
type Orchestrator struct {
	session *SessionManager
	guard   *NetworkGuard
	reader  LedgerReader
	writer  LedgerWriter
	catalog *CatalogReader
	ops     *operationRegistry
	log     zerolog.Logger

	slippagePercent   int64
	subscribeGasLimit uint64
	removeListener    func()
}

// NewOrchestrator creates an orchestrator and registers it for identity
// changes so in-flight operations fail rather than straddle a new account or
// chain.
func NewOrchestrator(session *SessionManager, guard *NetworkGuard, reader LedgerReader, writer LedgerWriter, catalog *CatalogReader, log zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		session:           session,
		guard:             guard,
		reader:            reader,
		writer:            writer,
		catalog:           catalog,
		ops:               newOperationRegistry(),
		log:               log.With().Str("component", "orchestrator").Logger(),
		slippagePercent:   DefaultSlippagePercent,
		subscribeGasLimit: DefaultSubscribeGasLimit,
	}
	o.removeListener = session.AddListener(o)
	return o
}

// Close deregisters the session listener.
func (o *Orchestrator) Close() {
	if o.removeListener != nil {
		o.removeListener()
		o.removeListener = nil
	}
}

// Pending returns the non-terminal operations for status display.
func (o *Orchestrator) Pending() []*PendingOperation {
	return o.ops.active()
}

// Subscribe purchases a plan for 1 or 12 months. The native value attached
// is recomputed from a fresh contract pricing read at submission time —
// never from a previously displayed cost — with the slippage ceiling
// ceil(cost × (100 + slippage) / 100) in integer arithmetic.
func (o *Orchestrator) Subscribe(ctx context.Context, planName string, months int64) (*PendingOperation, error) {
	key := subscribeKey(planName, months)
	return o.run(ctx, OpSubscribe, key,
		func() error {
			if planName == "" {
				return NewFlowError(CodeInvalidInput, "plan name is required", nil)
			}
			if months != 1 && months != 12 {
				return NewFlowError(CodeInvalidInput, "duration must be 1 or 12 months", nil)
			}
			return nil
		},
		func(ctx context.Context) (common.Hash, error) {
			ethCost, _, err := o.reader.SubscriptionCost(ctx, planName, months)
			if err != nil {
				return common.Hash{}, classified(err, "reading current subscription cost failed")
			}
			value := applySlippageCeiling(ethCost, o.slippagePercent)
			o.log.Info().Str("plan", planName).Int64("months", months).
				Str("cost", ethCost.String()).Str("value", value.String()).
				Msg("submitting subscribe")
			return o.writer.Subscribe(ctx, planName, months, o.slippagePercent, value, o.subscribeGasLimit)
		},
		func(ctx context.Context) {
			o.refreshCatalog(ctx)
			o.refreshSubscriptions(ctx)
		},
	)
}

// CancelSubscription cancels an active plan; the contract pays the prorated
// refund. The cached view is optimistically marked removed so the UI reflects
// the cancel before the authoritative refresh lands.
func (o *Orchestrator) CancelSubscription(ctx context.Context, planName string) (*PendingOperation, error) {
	return o.run(ctx, OpCancel, planName,
		func() error {
			if planName == "" {
				return NewFlowError(CodeInvalidInput, "plan name is required", nil)
			}
			return nil
		},
		func(ctx context.Context) (common.Hash, error) {
			return o.writer.CancelSubscription(ctx, planName)
		},
		func(ctx context.Context) {
			if account, ok := o.session.Account(); ok {
				o.catalog.MarkOptimisticallyRemoved(account, planName)
			}
			o.refreshSubscriptions(ctx)
		},
	)
}

// CreateFeature registers a catalog feature. Operator only; the contract is
// authoritative and an owner rejection surfaces as Unauthorized.
func (o *Orchestrator) CreateFeature(ctx context.Context, featureID, name, description string) (*PendingOperation, error) {
	return o.run(ctx, OpCreateFeature, featureID,
		func() error {
			if featureID == "" || name == "" || description == "" {
				return NewFlowError(CodeInvalidInput, "feature id, name, and description are required", nil)
			}
			return nil
		},
		func(ctx context.Context) (common.Hash, error) {
			return o.writer.CreateFeature(ctx, featureID, name, description)
		},
		func(ctx context.Context) { o.refreshCatalog(ctx) },
	)
}

// CreatePlan registers a plan referencing at least one existing feature.
func (o *Orchestrator) CreatePlan(ctx context.Context, name string, amountUSD *big.Int, featureIDs []string) (*PendingOperation, error) {
	return o.run(ctx, OpCreatePlan, name,
		func() error {
			if name == "" {
				return NewFlowError(CodeInvalidInput, "plan name is required", nil)
			}
			if amountUSD == nil || amountUSD.Sign() <= 0 {
				return NewFlowError(CodeInvalidInput, "monthly amount must be positive", nil)
			}
			if len(featureIDs) == 0 {
				return NewFlowError(CodeInvalidInput, "at least one feature must be selected", nil)
			}
			return nil
		},
		func(ctx context.Context) (common.Hash, error) {
			return o.writer.CreatePlan(ctx, name, amountUSD, featureIDs)
		},
		func(ctx context.Context) { o.refreshCatalog(ctx) },
	)
}

// Withdraw moves the contract balance to the owner.
func (o *Orchestrator) Withdraw(ctx context.Context) (*PendingOperation, error) {
	return o.run(ctx, OpWithdraw, "withdraw",
		func() error { return nil },
		func(ctx context.Context) (common.Hash, error) {
			return o.writer.Withdraw(ctx)
		},
		func(ctx context.Context) {},
	)
}

// Cleanup removes expired subscriptions from contract storage.
func (o *Orchestrator) Cleanup(ctx context.Context) (*PendingOperation, error) {
	return o.run(ctx, OpCleanup, "cleanup",
		func() error { return nil },
		func(ctx context.Context) (common.Hash, error) {
			return o.writer.AutoCleanup(ctx)
		},
		func(ctx context.Context) { o.refreshSubscriptions(ctx) },
	)
}

// run drives the per-operation state machine. Steps are strictly sequential;
// validation failures never reach the wallet, and the (kind, key) slot is
// released on any terminal state so a retry is possible.
func (o *Orchestrator) run(
	ctx context.Context,
	kind OpKind,
	key string,
	validate func() error,
	submit func(ctx context.Context) (common.Hash, error),
	refresh func(ctx context.Context),
) (*PendingOperation, error) {
	op, err := o.ops.begin(kind, key)
	if err != nil {
		return nil, err
	}

	// Validating.
	if err := validate(); err != nil {
		op.fail(CodeInvalidInput)
		o.ops.release(op)
		return op, err
	}

	if _, ok := o.session.Account(); !ok {
		op.fail(CodeWalletUnavailable)
		o.ops.release(op)
		return op, NewFlowError(CodeWalletUnavailable, "no connected account to sign with", nil)
	}

	if err := o.guard.EnsureRequiredNetwork(ctx); err != nil {
		op.fail(CodeOf(err))
		o.ops.release(op)
		return op, err
	}

	// AwaitingSignature: the wallet prompt is dispatched inside submit; from
	// here the operation cannot be locally cancelled and runs to a terminal
	// state.
	txHash, err := submit(ctx)
	if err != nil {
		flowErr := classified(err, string(kind)+" submission failed")
		op.fail(flowErr.Code)
		o.ops.release(op)
		return op, flowErr
	}

	// Submitted — unless an identity change during the signature phase
	// already failed the operation. The broadcast transaction then belongs to
	// the old identity and must never be treated as confirmed.
	if !op.submitted(txHash) {
		o.ops.release(op)
		return op, NewFlowError(op.Reason(), string(kind)+" invalidated during signing", nil)
	}
	o.log.Info().Str("kind", string(kind)).Str("key", key).
		Str("tx", txHash.Hex()).Msg("transaction submitted")

	receipt, err := o.writer.WaitMined(ctx, txHash)
	if err != nil {
		code := CodeContractUnavailable
		if !errors.Is(err, ledger.ErrTxReverted) {
			code = Classify(err)
		}
		op.fail(code)
		o.ops.release(op)
		return op, NewFlowError(code, string(kind)+" transaction failed", err)
	}

	// An identity change while awaiting confirmation already failed the
	// operation; the receipt must not be treated as applying to the
	// pre-change context.
	if !op.confirm() {
		o.ops.release(op)
		return op, NewFlowError(op.Reason(), string(kind)+" invalidated before confirmation", nil)
	}

	// Confirmed: re-sync local state before the caller observes success.
	refresh(ctx)
	o.ops.release(op)

	o.log.Info().Str("kind", string(kind)).Str("key", key).
		Uint64("block", receipt.BlockNumber.Uint64()).Msg("transaction confirmed")
	return op, nil
}

func (o *Orchestrator) refreshCatalog(ctx context.Context) {
	if _, err := o.catalog.LoadCatalog(ctx); err != nil {
		o.log.Warn().Err(err).Msg("post-confirmation catalog refresh failed")
	}
}

func (o *Orchestrator) refreshSubscriptions(ctx context.Context) {
	account, ok := o.session.Account()
	if !ok {
		return
	}
	if _, err := o.catalog.LoadActiveSubscriptions(ctx, account); err != nil {
		o.log.Warn().Err(err).Msg("post-confirmation subscription refresh failed")
	}
}

// applySlippageCeiling returns ceil(cost × (100 + pct) / 100) in integer
// arithmetic so the payment never under-attaches relative to the last read
// price and over-attachment stays bounded.
func applySlippageCeiling(cost *big.Int, pct int64) *big.Int {
	scaled := new(big.Int).Mul(cost, big.NewInt(100+pct))
	quo, rem := new(big.Int).QuoRem(scaled, big.NewInt(100), new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}

func subscribeKey(planName string, months int64) string {
	return fmt.Sprintf("%s-%d", planName, months)
}

// SessionListener implementation: an identity change fails in-flight
// operations with NetworkChanged so signatures or confirmations obtained
// under the old identity are never applied to the new one. Landing on the
// required chain is the one exception: the guard drives that switch as part
// of submission, so it must not invalidate the operation it belongs to.

func (o *Orchestrator) AccountChanged(common.Address) { o.ops.failInFlight(CodeNetworkChanged) }

func (o *Orchestrator) ChainChanged(chainID *big.Int) {
	if chainID != nil && chainID.Cmp(o.guard.Required().ChainID) == 0 {
		return
	}
	o.ops.failInFlight(CodeNetworkChanged)
}

func (o *Orchestrator) SessionClosed() { o.ops.failInFlight(CodeNetworkChanged) }
