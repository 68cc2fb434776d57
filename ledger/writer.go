package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/ethersub/ethersub-go/wallet"
)

// ReceiptBackend is the subset of ethclient.Client needed to wait for
// transaction inclusion. It is satisfied by *ethclient.Client.
type ReceiptBackend interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ErrTxReverted is returned by WaitMined when a transaction was included but
// its execution reverted.
var ErrTxReverted = errors.New("transaction reverted")

// Writer submits state-changing calls to the subscription contract through a
// wallet bridge. It packs calldata and attaches value; the wallet owns
// signing and broadcast.
type Writer struct {
	contract common.Address
	abi      abi.ABI
	bridge   wallet.Bridge
	receipts ReceiptBackend

	// pollInterval controls how often WaitMined checks for a receipt.
	pollInterval time.Duration
}

// NewWriter creates a Writer for the contract at the given address.
func NewWriter(contract common.Address, bridge wallet.Bridge, receipts ReceiptBackend) *Writer {
	return &Writer{
		contract:     contract,
		abi:          contractABI,
		bridge:       bridge,
		receipts:     receipts,
		pollInterval: 2 * time.Second,
	}
}

// send packs a method call and hands it to the wallet for signing and
// broadcast. value may be nil for non-payable methods.
func (w *Writer) send(ctx context.Context, method string, value *big.Int, gasLimit uint64, args ...interface{}) (common.Hash, error) {
	data, err := w.abi.Pack(method, args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", method, err)
	}

	hash, err := w.bridge.SendTransaction(ctx, wallet.TxRequest{
		To:       w.contract,
		Value:    value,
		Data:     data,
		GasLimit: gasLimit,
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("send %s: %w", method, err)
	}
	return hash, nil
}

// CreateFeature registers a new feature in the catalog. Operator only; the
// contract enforces ownership.
func (w *Writer) CreateFeature(ctx context.Context, featureID, name, description string) (common.Hash, error) {
	return w.send(ctx, methodCreateFeature, nil, 0, featureID, name, description)
}

// CreatePlan registers a new plan referencing existing feature ids.
func (w *Writer) CreatePlan(ctx context.Context, name string, amountUSD *big.Int, featureIDs []string) (common.Hash, error) {
	return w.send(ctx, methodCreatePlan, nil, 0, name, amountUSD, featureIDs)
}

// Subscribe purchases a plan for the given number of months, attaching value
// as payment. The contract validates the attached value against its live
// price within the declared slippage percentage.
func (w *Writer) Subscribe(ctx context.Context, planName string, months, slippagePercent int64, value *big.Int, gasLimit uint64) (common.Hash, error) {
	return w.send(ctx, methodSubscribe, value, gasLimit, planName, big.NewInt(months), big.NewInt(slippagePercent))
}

// CancelSubscription cancels an active subscription; the contract issues the
// prorated refund.
func (w *Writer) CancelSubscription(ctx context.Context, planName string) (common.Hash, error) {
	return w.send(ctx, methodCancelSubscription, nil, 0, planName)
}

// Withdraw moves the contract's balance to the owner. Operator only.
func (w *Writer) Withdraw(ctx context.Context) (common.Hash, error) {
	return w.send(ctx, methodWithdraw, nil, 0)
}

// AutoCleanup removes expired subscriptions from contract storage.
func (w *Writer) AutoCleanup(ctx context.Context) (common.Hash, error) {
	return w.send(ctx, methodAutoCleanup, nil, 0)
}

// WaitMined polls for the transaction receipt until the transaction is
// included or the context ends. It returns ErrTxReverted when the receipt
// reports a failed execution. There is no internal timeout: abandoning a
// genuinely pending transaction would desynchronize local and remote state,
// so the wait is bounded only by the caller's context.
func (w *Writer) WaitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := w.receipts.TransactionReceipt(ctx, txHash)
		if err == nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, ErrTxReverted
			}
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("read receipt: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
