// Package wallet defines the capability boundary between the subscription
// client and whatever holds the user's keys. The Bridge interface mirrors the
// EIP-1193 provider surface: account access, chain inspection, chain
// switching, and transaction submission, plus notifications for account and
// chain changes.
package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// EIP-1193 provider error codes surfaced by wallet implementations.
const (
	// CodeUserRejected is returned when the user declines a wallet prompt.
	CodeUserRejected = 4001
	// CodeRequestPending is returned when a prior wallet request has not
	// resolved yet.
	CodeRequestPending = -32002
	// CodeUnrecognizedChain is returned by switch-chain when the wallet does
	// not know the requested chain and it must be added first.
	CodeUnrecognizedChain = 4902
)

// RPCError is a provider-level failure carrying an EIP-1193 error code.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("wallet rpc error %d: %s", e.Code, e.Message)
}

// NewRPCError creates a provider error with the given code and message.
func NewRPCError(code int, message string) *RPCError {
	return &RPCError{Code: code, Message: message}
}

// ChainDescriptor describes a chain for wallet_addEthereumChain requests.
type ChainDescriptor struct {
	ChainID          *big.Int
	Name             string
	RPCURLs          []string
	CurrencyName     string
	CurrencySymbol   string
	CurrencyDecimals uint8
	ExplorerURLs     []string
}

// TxRequest is a state-changing call to be signed and broadcast by the wallet.
// Value may be nil for non-payable calls. A zero GasLimit lets the wallet
// estimate gas itself.
type TxRequest struct {
	To       common.Address
	Value    *big.Int
	Data     []byte
	GasLimit uint64
}

// Listener receives wallet-originated notifications. An empty accounts slice
// means the wallet revoked access entirely.
type Listener interface {
	AccountsChanged(accounts []common.Address)
	ChainChanged(chainID *big.Int)
}

// Bridge is the wallet capability consumed by the subscription client. All
// methods take a context because every call may suspend on user interaction
// or a remote node.
type Bridge interface {
	// RequestAccounts prompts the wallet for account access. Implementations
	// return an RPCError with CodeUserRejected or CodeRequestPending when the
	// prompt is declined or already open.
	RequestAccounts(ctx context.Context) ([]common.Address, error)

	// Accounts returns the accounts already authorized, without prompting.
	Accounts(ctx context.Context) ([]common.Address, error)

	// ChainID reports the chain the wallet is currently pointed at.
	ChainID(ctx context.Context) (*big.Int, error)

	// SwitchChain asks the wallet to move to the given chain. Returns an
	// RPCError with CodeUnrecognizedChain when the chain must be added first.
	SwitchChain(ctx context.Context, chainID *big.Int) error

	// AddChain asks the wallet to register a new chain.
	AddChain(ctx context.Context, desc ChainDescriptor) error

	// SendTransaction signs and broadcasts a transaction, returning its hash.
	// It does not wait for inclusion.
	SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error)

	// Subscribe registers a listener for account and chain notifications.
	// The returned function deregisters it.
	Subscribe(l Listener) (unsubscribe func())
}
