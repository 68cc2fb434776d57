package ledger

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Feature is a purchasable capability registered in the contract catalog.
type Feature struct {
	FeatureId   string
	Name        string
	Description string
}

// Plan is a subscription plan as stored on chain. AmountPerMonth is the
// USD-denominated monthly price in 18-decimal fixed point.
type Plan struct {
	Name            string
	AmountPerMonth  *big.Int
	AllowedFeatures []string
}

// PlanDetails is the expanded per-plan view returned by getPlanDetails.
type PlanDetails struct {
	Name           string
	AmountPerMonth *big.Int
	Active         bool
	Features       []Feature
}

// SubscriptionStatus is the per-account, per-plan position held by the
// contract.
type SubscriptionStatus struct {
	Active     bool
	StartTime  *big.Int
	AmountPaid *big.Int
}

// CallBackend is the subset of ethclient.Client needed for view calls. It is
// satisfied by *ethclient.Client.
type CallBackend interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Reader issues read-only calls against the subscription contract.
type Reader struct {
	contract common.Address
	abi      abi.ABI
	backend  CallBackend
}

// NewReader creates a Reader for the contract at the given address.
func NewReader(contract common.Address, backend CallBackend) *Reader {
	return &Reader{
		contract: contract,
		abi:      contractABI,
		backend:  backend,
	}
}

// call packs a view call, executes it, and unpacks the raw outputs.
func (r *Reader) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	raw, err := r.backend.CallContract(ctx, ethereum.CallMsg{To: &r.contract, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}

	out, err := r.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return out, nil
}

// Owner returns the contract owner address.
func (r *Reader) Owner(ctx context.Context) (common.Address, error) {
	out, err := r.call(ctx, methodOwner)
	if err != nil {
		return common.Address{}, err
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// Features returns the full feature catalog in contract order.
func (r *Reader) Features(ctx context.Context) ([]Feature, error) {
	out, err := r.call(ctx, methodViewFeatures)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]Feature)).(*[]Feature), nil
}

// Plans returns the full plan catalog in contract order.
func (r *Reader) Plans(ctx context.Context) ([]Plan, error) {
	out, err := r.call(ctx, methodViewPlans)
	if err != nil {
		return nil, err
	}
	return *abi.ConvertType(out[0], new([]Plan)).(*[]Plan), nil
}

// SubscriptionCost returns the live native (wei) and USD cost for subscribing
// to a plan for the given number of months. The contract computes this from
// its price oracle, so the result is only valid at read time.
func (r *Reader) SubscriptionCost(ctx context.Context, planName string, months int64) (ethCost, usdCost *big.Int, err error) {
	out, err := r.call(ctx, methodSubscriptionCost, planName, big.NewInt(months))
	if err != nil {
		return nil, nil, err
	}
	ethCost = *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	usdCost = *abi.ConvertType(out[1], new(*big.Int)).(**big.Int)
	return ethCost, usdCost, nil
}

// ActiveSubscriptions returns the account's active plan names and a parallel
// slice of remaining seconds.
func (r *Reader) ActiveSubscriptions(ctx context.Context, account common.Address) ([]string, []*big.Int, error) {
	out, err := r.call(ctx, methodActiveSubscriptions, account)
	if err != nil {
		return nil, nil, err
	}
	names := *abi.ConvertType(out[0], new([]string)).(*[]string)
	timeLeft := *abi.ConvertType(out[1], new([]*big.Int)).(*[]*big.Int)
	return names, timeLeft, nil
}

// SubscriptionStatus returns the account's position in a single plan.
func (r *Reader) SubscriptionStatus(ctx context.Context, account common.Address, planName string) (SubscriptionStatus, error) {
	out, err := r.call(ctx, methodSubscriptionStatus, account, planName)
	if err != nil {
		return SubscriptionStatus{}, err
	}
	return SubscriptionStatus{
		Active:     *abi.ConvertType(out[0], new(bool)).(*bool),
		StartTime:  *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		AmountPaid: *abi.ConvertType(out[2], new(*big.Int)).(**big.Int),
	}, nil
}

// PlanDetails returns the expanded view of a single plan, including resolved
// feature records.
func (r *Reader) PlanDetails(ctx context.Context, planName string) (PlanDetails, error) {
	out, err := r.call(ctx, methodPlanDetails, planName)
	if err != nil {
		return PlanDetails{}, err
	}
	return PlanDetails{
		Name:           *abi.ConvertType(out[0], new(string)).(*string),
		AmountPerMonth: *abi.ConvertType(out[1], new(*big.Int)).(**big.Int),
		Active:         *abi.ConvertType(out[2], new(bool)).(*bool),
		Features:       *abi.ConvertType(out[3], new([]Feature)).(*[]Feature),
	}, nil
}

// TreasuryBalance returns the native balance held by the contract.
func (r *Reader) TreasuryBalance(ctx context.Context) (*big.Int, error) {
	balance, err := r.backend.BalanceAt(ctx, r.contract, nil)
	if err != nil {
		return nil, fmt.Errorf("read contract balance: %w", err)
	}
	return balance, nil
}

// AccountBalance returns the native balance of an arbitrary account.
func (r *Reader) AccountBalance(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := r.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, fmt.Errorf("read account balance: %w", err)
	}
	return balance, nil
}
