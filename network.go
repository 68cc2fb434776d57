package ethersub

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/ethersub/ethersub-go/wallet"
)

// NetworkGuard enforces the required-network precondition before any catalog
// read or transaction submission. The common case, wallet already on the
// required chain, returns without any wallet interaction.
type NetworkGuard struct {
	session  *SessionManager
	bridge   wallet.Bridge
	required NetworkRequirement
	log      zerolog.Logger
}

// NewNetworkGuard creates a guard for the given requirement.
func NewNetworkGuard(session *SessionManager, bridge wallet.Bridge, required NetworkRequirement, log zerolog.Logger) *NetworkGuard {
	return &NetworkGuard{
		session:  session,
		bridge:   bridge,
		required: required,
		log:      log.With().Str("component", "network").Logger(),
	}
}

// Required returns the network this client is pinned to.
func (g *NetworkGuard) Required() NetworkRequirement {
	return g.required
}

// OnRequiredNetwork reports whether the session already points at the
// required chain, without touching the wallet.
func (g *NetworkGuard) OnRequiredNetwork() bool {
	current := g.session.ChainID()
	return current != nil && current.Cmp(g.required.ChainID) == 0
}

// EnsureRequiredNetwork validates the session's chain against the
// requirement and drives the switch flow when it differs: switch first, and
// if the wallet does not know the chain, add it from the requirement's
// descriptor and retry the switch once. Both NetworkSwitchRejected and
// NetworkUnavailable are terminal for the current user action.
func (g *NetworkGuard) EnsureRequiredNetwork(ctx context.Context) error {
	if g.OnRequiredNetwork() {
		return nil
	}
	if g.bridge == nil {
		return NewFlowError(CodeWalletUnavailable, "no wallet capability installed", nil)
	}

	g.log.Info().
		Str("required", g.required.ChainID.String()).
		Msg("wrong network, requesting switch")

	err := g.bridge.SwitchChain(ctx, g.required.ChainID)
	if err != nil {
		var rpcErr *wallet.RPCError
		switch {
		case errors.As(err, &rpcErr) && rpcErr.Code == wallet.CodeUnrecognizedChain:
			if addErr := g.bridge.AddChain(ctx, g.descriptor()); addErr != nil {
				return NewFlowError(CodeNetworkUnavailable, "adding the required network failed", addErr)
			}
			if retryErr := g.bridge.SwitchChain(ctx, g.required.ChainID); retryErr != nil {
				return g.switchError(retryErr)
			}
		default:
			return g.switchError(err)
		}
	}

	// Confirm the wallet actually landed on the required chain before
	// letting the caller proceed.
	current, err := g.bridge.ChainID(ctx)
	if err != nil {
		return NewFlowError(CodeNetworkUnavailable, "reading chain id after switch failed", err)
	}
	if current.Cmp(g.required.ChainID) != 0 {
		return NewFlowError(CodeNetworkUnavailable, "wallet did not move to the required network", nil)
	}
	return nil
}

func (g *NetworkGuard) switchError(err error) error {
	if Classify(err) == CodeUserRejected {
		return NewFlowError(CodeNetworkSwitchRejected, "network switch rejected by user", err)
	}
	return NewFlowError(CodeNetworkUnavailable, "network switch failed", err)
}

func (g *NetworkGuard) descriptor() wallet.ChainDescriptor {
	return wallet.ChainDescriptor{
		ChainID:          g.required.ChainID,
		Name:             g.required.Name,
		RPCURLs:          []string{g.required.RPCURL},
		CurrencyName:     g.required.CurrencyName,
		CurrencySymbol:   g.required.CurrencySymbol,
		CurrencyDecimals: g.required.CurrencyDecimals,
		ExplorerURLs:     []string{g.required.ExplorerURL},
	}
}
