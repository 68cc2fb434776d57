package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// NodeBackend is the subset of ethclient.Client the key signer needs to build
// and broadcast transactions.
type NodeBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// KeySigner implements Bridge using a raw ECDSA private key and a node
// endpoint. Unlike a browser extension it holds exactly one account, never
// prompts, and is pinned to whatever chain its endpoint serves: SwitchChain
// succeeds only when the endpoint already matches, and AddChain is not
// supported.
type KeySigner struct {
	privateKey *ecdsa.PrivateKey
	address    common.Address
	backend    NodeBackend

	mu        sync.Mutex
	listeners map[int]Listener
	nextID    int
}

// NewKeySigner creates a key-backed wallet bridge from a hex-encoded private
// key (with or without the "0x" prefix) and a node backend.
func NewKeySigner(privateKeyHex string, backend NodeBackend) (*KeySigner, error) {
	privateKeyHex = strings.TrimPrefix(privateKeyHex, "0x")

	privateKey, err := crypto.HexToECDSA(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}

	return &KeySigner{
		privateKey: privateKey,
		address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		backend:    backend,
		listeners:  make(map[int]Listener),
	}, nil
}

// Address returns the account derived from the private key.
func (s *KeySigner) Address() common.Address {
	return s.address
}

// RequestAccounts returns the single derived account. There is no prompt to
// reject, so this never fails with CodeUserRejected.
func (s *KeySigner) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{s.address}, nil
}

// Accounts returns the single derived account.
func (s *KeySigner) Accounts(ctx context.Context) ([]common.Address, error) {
	return []common.Address{s.address}, nil
}

// ChainID reports the chain served by the configured endpoint.
func (s *KeySigner) ChainID(ctx context.Context) (*big.Int, error) {
	return s.backend.ChainID(ctx)
}

// SwitchChain verifies the endpoint already serves the requested chain. A key
// signer cannot repoint its endpoint, so a mismatch is reported as an
// unrecognized chain.
func (s *KeySigner) SwitchChain(ctx context.Context, chainID *big.Int) error {
	current, err := s.backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}
	if current.Cmp(chainID) != 0 {
		return NewRPCError(CodeUnrecognizedChain,
			fmt.Sprintf("endpoint serves chain %s, cannot switch to %s", current, chainID))
	}
	return nil
}

// AddChain is not supported: the key signer's endpoint is fixed at
// construction time.
func (s *KeySigner) AddChain(ctx context.Context, desc ChainDescriptor) error {
	return fmt.Errorf("key signer cannot add chain %s: endpoint is fixed", desc.ChainID)
}

// SendTransaction builds, signs, and broadcasts a transaction from the
// derived account.
func (s *KeySigner) SendTransaction(ctx context.Context, req TxRequest) (common.Hash, error) {
	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("read chain id: %w", err)
	}

	nonce, err := s.backend.PendingNonceAt(ctx, s.address)
	if err != nil {
		return common.Hash{}, fmt.Errorf("read nonce: %w", err)
	}

	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("suggest gas price: %w", err)
	}

	gasLimit := req.GasLimit
	if gasLimit == 0 {
		gasLimit, err = s.backend.EstimateGas(ctx, ethereum.CallMsg{
			From:  s.address,
			To:    &req.To,
			Value: req.Value,
			Data:  req.Data,
		})
		if err != nil {
			return common.Hash{}, fmt.Errorf("estimate gas: %w", err)
		}
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &req.To,
		Value:    req.Value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     req.Data,
	})

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.privateKey)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign transaction: %w", err)
	}

	if err := s.backend.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, fmt.Errorf("broadcast transaction: %w", err)
	}

	return signed.Hash(), nil
}

// Subscribe registers a listener. A key signer never changes account or chain
// on its own, so listeners only fire if an embedder calls notify helpers.
func (s *KeySigner) Subscribe(l Listener) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.listeners[id] = l

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

var _ Bridge = (*KeySigner)(nil)
