package ethersub

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/ethersub/ethersub-go/ledger"
	"github.com/ethersub/ethersub-go/wallet"
)

// Client wires the session manager, network guard, catalog reader, and
// transaction orchestrator into one entry point for the subscription
// contract.
type Client struct {
	session      *SessionManager
	guard        *NetworkGuard
	catalog      *CatalogReader
	orchestrator *Orchestrator
	reader       LedgerReader
	log          zerolog.Logger
}

// ClientOption configures the client.
type ClientOption func(*clientConfig)

type clientConfig struct {
	network     NetworkRequirement
	readTimeout time.Duration
	slippage    int64
	gasLimit    uint64
	log         zerolog.Logger
	reader      LedgerReader
	writer      LedgerWriter
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *clientConfig) { c.log = log }
}

// WithNetworkRequirement overrides the required network. Defaults to Sepolia.
func WithNetworkRequirement(req NetworkRequirement) ClientOption {
	return func(c *clientConfig) { c.network = req }
}

// WithReadTimeout overrides the overall catalog read timeout.
func WithReadTimeout(d time.Duration) ClientOption {
	return func(c *clientConfig) { c.readTimeout = d }
}

// WithSlippagePercent overrides the payment slippage tolerance.
func WithSlippagePercent(pct int64) ClientOption {
	return func(c *clientConfig) { c.slippage = pct }
}

// WithSubscribeGasLimit overrides the fixed gas limit for subscribe calls.
func WithSubscribeGasLimit(limit uint64) ClientOption {
	return func(c *clientConfig) { c.gasLimit = limit }
}

// withLedger swaps the contract boundary, used by tests to substitute fakes.
func withLedger(reader LedgerReader, writer LedgerWriter) ClientOption {
	return func(c *clientConfig) {
		c.reader = reader
		c.writer = writer
	}
}

// NewClient creates a client for the subscription contract at the given
// address. backend serves reads and receipt polling (an *ethclient.Client in
// production); bridge supplies signing and may be nil for a read-only
// client.
func NewClient(contract common.Address, backend ReadBackend, bridge wallet.Bridge, opts ...ClientOption) *Client {
	cfg := &clientConfig{
		network:     Sepolia,
		readTimeout: DefaultReadTimeout,
		slippage:    DefaultSlippagePercent,
		gasLimit:    DefaultSubscribeGasLimit,
		log:         zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.reader == nil {
		cfg.reader = ledger.NewReader(contract, backend)
	}
	if cfg.writer == nil {
		cfg.writer = ledger.NewWriter(contract, bridge, backend)
	}

	session := NewSessionManager(bridge, cfg.log)
	guard := NewNetworkGuard(session, bridge, cfg.network, cfg.log)
	catalog := NewCatalogReader(cfg.reader, session, guard, cfg.readTimeout, cfg.log)
	orchestrator := NewOrchestrator(session, guard, cfg.reader, cfg.writer, catalog, cfg.log)
	orchestrator.slippagePercent = cfg.slippage
	orchestrator.subscribeGasLimit = cfg.gasLimit

	return &Client{
		session:      session,
		guard:        guard,
		catalog:      catalog,
		orchestrator: orchestrator,
		reader:       cfg.reader,
		log:          cfg.log,
	}
}

// ReadBackend combines the node capabilities the client needs outside the
// wallet: view calls, balance reads, and receipt polling. Satisfied by
// *ethclient.Client.
type ReadBackend interface {
	ledger.CallBackend
	ledger.ReceiptBackend
}

// Close tears down listener registrations. The client is not usable
// afterwards.
func (c *Client) Close() {
	c.orchestrator.Close()
	c.catalog.Close()
	c.session.Disconnect()
}

// Connect establishes the wallet session and then enforces the required
// network so the first catalog read never runs against the wrong chain.
func (c *Client) Connect(ctx context.Context) (Session, error) {
	if _, err := c.session.Connect(ctx); err != nil {
		return Session{}, err
	}
	if err := c.guard.EnsureRequiredNetwork(ctx); err != nil {
		return c.session.Snapshot(), err
	}
	return c.session.Snapshot(), nil
}

// Disconnect tears down the session. Idempotent.
func (c *Client) Disconnect() {
	c.session.Disconnect()
}

// Session returns the current identity snapshot.
func (c *Client) Session() Session {
	return c.session.Snapshot()
}

// EnsureRequiredNetwork re-runs the network guard on demand.
func (c *Client) EnsureRequiredNetwork(ctx context.Context) error {
	return c.guard.EnsureRequiredNetwork(ctx)
}

// LoadCatalog fetches a fresh priced catalog.
func (c *Client) LoadCatalog(ctx context.Context) (*Catalog, error) {
	return c.catalog.LoadCatalog(ctx)
}

// LoadActiveSubscriptions fetches the connected account's positions.
func (c *Client) LoadActiveSubscriptions(ctx context.Context) ([]SubscriptionView, error) {
	account, ok := c.session.Account()
	if !ok {
		return nil, NewFlowError(CodeWalletUnavailable, "no connected account", nil)
	}
	return c.catalog.LoadActiveSubscriptions(ctx, account)
}

// Subscriptions returns the cached subscription views for the connected
// account, including optimistic removals.
func (c *Client) Subscriptions() []SubscriptionView {
	account, ok := c.session.Account()
	if !ok {
		return nil
	}
	return c.catalog.Subscriptions(account)
}

// Subscribe purchases a plan for 1 or 12 months.
func (c *Client) Subscribe(ctx context.Context, planName string, months int64) (*PendingOperation, error) {
	return c.orchestrator.Subscribe(ctx, planName, months)
}

// CancelSubscription cancels an active plan.
func (c *Client) CancelSubscription(ctx context.Context, planName string) (*PendingOperation, error) {
	return c.orchestrator.CancelSubscription(ctx, planName)
}

// CreateFeature registers a catalog feature (operator only).
func (c *Client) CreateFeature(ctx context.Context, featureID, name, description string) (*PendingOperation, error) {
	return c.orchestrator.CreateFeature(ctx, featureID, name, description)
}

// CreatePlan registers a plan (operator only).
func (c *Client) CreatePlan(ctx context.Context, name string, amountUSD *big.Int, featureIDs []string) (*PendingOperation, error) {
	return c.orchestrator.CreatePlan(ctx, name, amountUSD, featureIDs)
}

// Withdraw moves the contract balance to the owner (operator only).
func (c *Client) Withdraw(ctx context.Context) (*PendingOperation, error) {
	return c.orchestrator.Withdraw(ctx)
}

// Cleanup removes expired subscriptions from contract storage.
func (c *Client) Cleanup(ctx context.Context) (*PendingOperation, error) {
	return c.orchestrator.Cleanup(ctx)
}

// PendingOperations returns the non-terminal operations for status display.
func (c *Client) PendingOperations() []*PendingOperation {
	return c.orchestrator.Pending()
}

// IsOwner compares the contract owner with the connected account so callers
// can disable operator controls proactively. The contract remains the
// authority; a stale result only affects presentation.
func (c *Client) IsOwner(ctx context.Context) (bool, error) {
	account, ok := c.session.Account()
	if !ok {
		return false, nil
	}
	owner, err := c.reader.Owner(ctx)
	if err != nil {
		return false, classified(err, "reading contract owner failed")
	}
	return strings.EqualFold(owner.Hex(), account.Hex()), nil
}

// TreasuryBalance returns the native balance held by the contract.
func (c *Client) TreasuryBalance(ctx context.Context) (*big.Int, error) {
	balance, err := c.reader.TreasuryBalance(ctx)
	if err != nil {
		return nil, classified(err, "reading treasury balance failed")
	}
	return balance, nil
}

// AccountBalance returns the connected account's native balance.
func (c *Client) AccountBalance(ctx context.Context) (*big.Int, error) {
	account, ok := c.session.Account()
	if !ok {
		return nil, NewFlowError(CodeWalletUnavailable, "no connected account", nil)
	}
	balance, err := c.reader.AccountBalance(ctx, account)
	if err != nil {
		return nil, classified(err, "reading account balance failed")
	}
	return balance, nil
}

// AutoRefresh re-reads the catalog on a fixed interval until ctx ends. Ticks
// that overlap a still-running load run concurrently — reads are idempotent —
// and mutations are never triggered from here. The returned channel closes
// when the loop exits.
func (c *Client) AutoRefresh(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				go func() {
					if _, err := c.catalog.LoadCatalog(ctx); err != nil {
						c.log.Debug().Err(err).Msg("periodic catalog refresh failed")
					}
				}()
			}
		}
	}()
	return done
}
