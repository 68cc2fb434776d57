package ethersub

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/ethersub/ethersub-go/wallet"
)

// SessionStatus is the lifecycle state of the wallet session.
type SessionStatus int

const (
	// Uninitialized means Connect has never been attempted.
	Uninitialized SessionStatus = iota
	// Disconnected means the session was torn down or the wallet revoked
	// access.
	Disconnected
	// Connecting means an account request is in flight.
	Connecting
	// Connected means an account and chain id are established.
	Connected
)

func (s SessionStatus) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Session is a read-only snapshot of the current wallet identity.
type Session struct {
	Account common.Address
	ChainID *big.Int
	Status  SessionStatus
}

// HasAccount reports whether an account is established.
func (s Session) HasAccount() bool {
	return s.Account != (common.Address{})
}

// SessionListener receives identity lifecycle notifications. Components that
// cache identity-scoped data (catalog snapshots, pending operations) register
// here so account and chain changes invalidate them.
type SessionListener interface {
	AccountChanged(account common.Address)
	ChainChanged(chainID *big.Int)
	SessionClosed()
}

// SessionManager owns the wallet session: it is the only component that
// mutates identity state, in response to explicit Connect/Disconnect calls
// or wallet-originated notifications. Everything else reads snapshots.
type SessionManager struct {
	bridge wallet.Bridge
	log    zerolog.Logger

	mu          sync.RWMutex
	status      SessionStatus
	account     common.Address
	chainID     *big.Int
	unsubscribe func()
	listeners   map[int]SessionListener
	nextID      int
}

// NewSessionManager creates a session manager over the given wallet bridge.
// A nil bridge is legal; Connect then fails with WalletUnavailable, matching
// a browser without an extension installed.
func NewSessionManager(bridge wallet.Bridge, log zerolog.Logger) *SessionManager {
	return &SessionManager{
		bridge:    bridge,
		log:       log.With().Str("component", "session").Logger(),
		status:    Uninitialized,
		listeners: make(map[int]SessionListener),
	}
}

// Connect requests account access from the wallet and establishes the
// session. It fails with WalletUnavailable when no wallet capability exists,
// UserRejected when the prompt is declined, and RequestAlreadyPending when a
// prior request has not resolved.
func (m *SessionManager) Connect(ctx context.Context) (Session, error) {
	if m.bridge == nil {
		return Session{}, NewFlowError(CodeWalletUnavailable, "no wallet capability installed", nil)
	}

	m.mu.Lock()
	if m.status == Connecting {
		m.mu.Unlock()
		return Session{}, NewFlowError(CodeRequestAlreadyPending, "a connection request is already in flight", nil)
	}
	m.status = Connecting
	m.mu.Unlock()

	accounts, err := m.bridge.RequestAccounts(ctx)
	if err != nil {
		m.setStatus(Disconnected)
		return Session{}, classified(err, "wallet account request failed")
	}
	if len(accounts) == 0 {
		m.setStatus(Disconnected)
		return Session{}, NewFlowError(CodeWalletUnavailable, "wallet returned no accounts; is it unlocked?", nil)
	}

	chainID, err := m.bridge.ChainID(ctx)
	if err != nil {
		m.setStatus(Disconnected)
		return Session{}, classified(err, "reading wallet chain id failed")
	}

	m.mu.Lock()
	m.account = accounts[0]
	m.chainID = chainID
	m.status = Connected
	if m.unsubscribe == nil {
		m.unsubscribe = m.bridge.Subscribe(&bridgeListener{m})
	}
	snapshot := m.snapshotLocked()
	m.mu.Unlock()

	m.log.Info().Str("account", snapshot.Account.Hex()).Str("chain", chainID.String()).Msg("wallet connected")
	m.notifyAccountChanged(snapshot.Account)
	return snapshot, nil
}

// Disconnect clears all session state and deregisters wallet notifications.
// It is idempotent.
func (m *SessionManager) Disconnect() {
	m.mu.Lock()
	wasConnected := m.status == Connected || m.status == Connecting
	m.account = common.Address{}
	m.chainID = nil
	m.status = Disconnected
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	if wasConnected {
		m.log.Info().Msg("wallet disconnected")
		m.notifySessionClosed()
	}
}

// Snapshot returns the current session state.
func (m *SessionManager) Snapshot() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

// Account returns the active account, if one is established.
func (m *SessionManager) Account() (common.Address, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.status != Connected {
		return common.Address{}, false
	}
	return m.account, true
}

// ChainID returns the chain the wallet currently reports, or nil before
// connection.
func (m *SessionManager) ChainID() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.chainID
}

// Status returns the session lifecycle state.
func (m *SessionManager) Status() SessionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// AddListener registers an identity lifecycle listener. The returned function
// removes it; callers deregister on teardown to avoid leaks across
// reconnects.
func (m *SessionManager) AddListener(l SessionListener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners, id)
	}
}

func (m *SessionManager) snapshotLocked() Session {
	return Session{Account: m.account, ChainID: m.chainID, Status: m.status}
}

func (m *SessionManager) setStatus(s SessionStatus) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()
}

func (m *SessionManager) notifyAccountChanged(account common.Address) {
	for _, l := range m.listenersCopy() {
		l.AccountChanged(account)
	}
}

func (m *SessionManager) notifyChainChanged(chainID *big.Int) {
	for _, l := range m.listenersCopy() {
		l.ChainChanged(chainID)
	}
}

func (m *SessionManager) notifySessionClosed() {
	for _, l := range m.listenersCopy() {
		l.SessionClosed()
	}
}

func (m *SessionManager) listenersCopy() []SessionListener {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]SessionListener, 0, len(m.listeners))
	for _, l := range m.listeners {
		out = append(out, l)
	}
	return out
}

// bridgeListener adapts wallet notifications onto the session manager.
type bridgeListener struct {
	m *SessionManager
}

// AccountsChanged handles the wallet's account-list notification. An empty
// list means access was revoked and the session is torn down; a different
// head account re-establishes the session for it.
func (b *bridgeListener) AccountsChanged(accounts []common.Address) {
	m := b.m
	if len(accounts) == 0 {
		m.log.Info().Msg("wallet revoked account access")
		m.Disconnect()
		return
	}

	m.mu.Lock()
	changed := accounts[0] != m.account
	if changed {
		m.account = accounts[0]
	}
	account := m.account
	m.mu.Unlock()

	if changed {
		m.log.Info().Str("account", account.Hex()).Msg("active account switched")
		m.notifyAccountChanged(account)
	}
}

// ChainChanged records the new chain id and notifies listeners so caches and
// in-flight operations tied to the old chain are invalidated, never silently
// carried over.
func (b *bridgeListener) ChainChanged(chainID *big.Int) {
	m := b.m
	m.mu.Lock()
	m.chainID = chainID
	m.mu.Unlock()

	m.log.Info().Str("chain", chainID.String()).Msg("wallet chain changed")
	m.notifyChainChanged(chainID)
}
