package ethersub

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/ethersub/ethersub-go/ledger"
)

// DefaultReadTimeout bounds a whole catalog or subscription load so an
// unresponsive node cannot leave the caller spinning indefinitely.
const DefaultReadTimeout = 30 * time.Second

// LedgerReader is the read surface of the contract consumed by the catalog.
// Satisfied by *ledger.Reader.
type LedgerReader interface {
	Owner(ctx context.Context) (common.Address, error)
	Features(ctx context.Context) ([]ledger.Feature, error)
	Plans(ctx context.Context) ([]ledger.Plan, error)
	SubscriptionCost(ctx context.Context, planName string, months int64) (ethCost, usdCost *big.Int, err error)
	ActiveSubscriptions(ctx context.Context, account common.Address) ([]string, []*big.Int, error)
	SubscriptionStatus(ctx context.Context, account common.Address, planName string) (ledger.SubscriptionStatus, error)
	PlanDetails(ctx context.Context, planName string) (ledger.PlanDetails, error)
	TreasuryBalance(ctx context.Context) (*big.Int, error)
	AccountBalance(ctx context.Context, account common.Address) (*big.Int, error)
}

// CatalogReader aggregates contract reads into display-ready snapshots. Reads
// are idempotent and side-effect free, so concurrent refreshes are allowed;
// the snapshot is last-writer-wins since each contract read is internally
// consistent at call time.
type CatalogReader struct {
	reader  LedgerReader
	session *SessionManager
	guard   *NetworkGuard
	timeout time.Duration
	log     zerolog.Logger

	mu             sync.RWMutex
	catalog        *Catalog
	subs           map[common.Address][]SubscriptionView
	removeListener func()
}

// NewCatalogReader creates a catalog reader. It registers with the session
// manager so account and chain changes drop cached snapshots.
func NewCatalogReader(reader LedgerReader, session *SessionManager, guard *NetworkGuard, timeout time.Duration, log zerolog.Logger) *CatalogReader {
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	c := &CatalogReader{
		reader:  reader,
		session: session,
		guard:   guard,
		timeout: timeout,
		log:     log.With().Str("component", "catalog").Logger(),
		subs:    make(map[common.Address][]SubscriptionView),
	}
	c.removeListener = session.AddListener(c)
	return c
}

// Close deregisters the session listener.
func (c *CatalogReader) Close() {
	if c.removeListener != nil {
		c.removeListener()
		c.removeListener = nil
	}
}

// LoadCatalog fetches the full feature and plan sets, then prices each plan
// for one and twelve months. A pricing failure for an individual plan is
// non-fatal: the plan is returned with nil costs and PriceFailed set. A
// failure of the feature or plan read itself fails the whole call with
// CatalogUnavailable. Plans keep the contract's insertion order.
func (c *CatalogReader) LoadCatalog(ctx context.Context) (*Catalog, error) {
	if err := c.failClosed(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	features, err := c.reader.Features(ctx)
	if err != nil {
		return nil, c.unavailable("loading features failed", err)
	}

	plans, err := c.reader.Plans(ctx)
	if err != nil {
		return nil, c.unavailable("loading plans failed", err)
	}

	featureIndex := make(map[string]Feature, len(features))
	for _, f := range features {
		featureIndex[f.FeatureId] = featureFromLedger(f)
	}

	priced := make([]PricedPlan, 0, len(plans))
	for _, plan := range plans {
		pp := PricedPlan{
			Name:       plan.Name,
			MonthlyUSD: plan.AmountPerMonth,
		}
		for _, id := range plan.AllowedFeatures {
			if f, ok := featureIndex[id]; ok {
				pp.Features = append(pp.Features, f)
			}
		}

		oneEth, oneUSD, err1 := c.reader.SubscriptionCost(ctx, plan.Name, 1)
		twelveEth, twelveUSD, err12 := c.reader.SubscriptionCost(ctx, plan.Name, 12)
		if err1 != nil || err12 != nil {
			pp.PriceFailed = true
			c.log.Warn().Str("plan", plan.Name).
				AnErr("one_month", err1).AnErr("twelve_month", err12).
				Msg("pricing read failed, listing plan without costs")
		} else {
			pp.OneMonthCost = &Cost{Native: oneEth, Quote: oneUSD}
			pp.TwelveMonthCost = &Cost{Native: twelveEth, Quote: twelveUSD}
		}

		priced = append(priced, pp)
	}

	catalog := &Catalog{
		Plans:    priced,
		Features: featureIndex,
		LoadedAt: time.Now(),
	}

	c.mu.Lock()
	c.catalog = catalog
	c.mu.Unlock()

	return catalog, nil
}

// LoadActiveSubscriptions fetches the account's active positions, enriching
// each with its paid amount and feature names. Per-subscription enrichment is
// best effort: a malformed position is logged and skipped so it does not
// block the rest.
func (c *CatalogReader) LoadActiveSubscriptions(ctx context.Context, account common.Address) ([]SubscriptionView, error) {
	if err := c.failClosed(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	names, timeLeft, err := c.reader.ActiveSubscriptions(ctx, account)
	if err != nil {
		return nil, c.unavailable("loading active subscriptions failed", err)
	}

	views := make([]SubscriptionView, 0, len(names))
	for i, name := range names {
		status, err := c.reader.SubscriptionStatus(ctx, account, name)
		if err != nil {
			c.log.Warn().Str("plan", name).Err(err).Msg("status read failed, skipping subscription")
			continue
		}
		if !status.Active {
			continue
		}

		details, err := c.reader.PlanDetails(ctx, name)
		if err != nil {
			c.log.Warn().Str("plan", name).Err(err).Msg("plan detail read failed, skipping subscription")
			continue
		}

		featureNames := make([]string, 0, len(details.Features))
		for _, f := range details.Features {
			featureNames = append(featureNames, f.Name)
		}

		var seconds int64
		if i < len(timeLeft) && timeLeft[i] != nil {
			seconds = timeLeft[i].Int64()
		}

		views = append(views, SubscriptionView{
			ActiveSubscription: ActiveSubscription{
				PlanName:         name,
				SecondsRemaining: seconds,
				AmountPaid:       status.AmountPaid,
				Features:         featureNames,
			},
			State: Authoritative,
		})
	}

	c.mu.Lock()
	c.subs[account] = views
	c.mu.Unlock()

	return views, nil
}

// Catalog returns the last successful snapshot, or nil if none is cached.
func (c *CatalogReader) Catalog() *Catalog {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.catalog
}

// Subscriptions returns the cached views for an account, reflecting any
// optimistic removals since the last authoritative load.
func (c *CatalogReader) Subscriptions(account common.Address) []SubscriptionView {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.subs[account]
}

// MarkOptimisticallyRemoved flags a cached subscription as removed ahead of
// the next authoritative refresh, keeping reconciliation in one place instead
// of ad hoc flags at call sites.
func (c *CatalogReader) MarkOptimisticallyRemoved(account common.Address, planName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	views := c.subs[account]
	for i := range views {
		if views[i].PlanName == planName {
			views[i].State = OptimisticallyRemoved
		}
	}
}

// Invalidate drops all cached snapshots, forcing the next read to hit the
// contract.
func (c *CatalogReader) Invalidate() {
	c.mu.Lock()
	c.catalog = nil
	c.subs = make(map[common.Address][]SubscriptionView)
	c.mu.Unlock()
}

// failClosed refuses reads while a connected session sits on the wrong
// network: a wrong-chain read would be silently wrong, not merely stale.
func (c *CatalogReader) failClosed() error {
	if c.session.Status() == Connected && !c.guard.OnRequiredNetwork() {
		return NewFlowError(CodeCatalogUnavailable, "connected session is on the wrong network",
			NewFlowError(CodeNetworkUnavailable, "required network not active", nil))
	}
	return nil
}

func (c *CatalogReader) unavailable(message string, err error) error {
	code := Classify(err)
	c.log.Error().Err(err).Str("cause", string(code)).Msg(message)
	return NewFlowError(CodeCatalogUnavailable, message, NewFlowError(code, message, err))
}

// SessionListener implementation: every identity change invalidates cached
// pricing and subscription snapshots.

func (c *CatalogReader) AccountChanged(common.Address) { c.Invalidate() }
func (c *CatalogReader) ChainChanged(*big.Int)         { c.Invalidate() }
func (c *CatalogReader) SessionClosed()                { c.Invalidate() }
