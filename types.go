// Package ethersub is the client-side orchestration layer for the EtherSub
// on-chain subscription service. It owns the wallet session state machine,
// the required-network guard, catalog aggregation, and transaction
// orchestration with slippage-bounded payments; the contract itself remains
// the sole authority on pricing, proration, and refunds.
package ethersub

import (
	"math/big"
	"time"

	"github.com/ethersub/ethersub-go/ledger"
)

// Feature is a purchasable capability in the catalog.
type Feature struct {
	ID          string
	Name        string
	Description string
}

// Cost pairs the native-currency (wei) and USD-quote figures returned by the
// contract's pricing read. Both are 18-decimal fixed point.
type Cost struct {
	Native *big.Int
	Quote  *big.Int
}

// PricedPlan is a plan joined with its live pricing. Costs are nil and
// PriceFailed is set when the pricing read for this plan failed; the plan is
// still listed so one bad price feed does not blank the catalog. The
// twelve-month figure comes straight from the contract (which applies its
// own discount) and is never derived locally.
type PricedPlan struct {
	Name            string
	MonthlyUSD      *big.Int
	Features        []Feature
	OneMonthCost    *Cost
	TwelveMonthCost *Cost
	PriceFailed     bool
}

// Catalog is the aggregated, display-ready view of plans and features.
// Figures are only valid at LoadedAt; every refresh re-reads them.
type Catalog struct {
	Plans    []PricedPlan
	Features map[string]Feature
	LoadedAt time.Time
}

// ActiveSubscription is a read-time snapshot of one on-chain position. It is
// advisory only: the contract owns the authoritative state.
type ActiveSubscription struct {
	PlanName         string
	SecondsRemaining int64
	AmountPaid       *big.Int
	Features         []string
}

// ViewState tags how a displayed subscription relates to the last
// authoritative read.
type ViewState int

const (
	// Authoritative means the entry reflects the most recent contract read.
	Authoritative ViewState = iota
	// OptimisticallyRemoved means a cancel confirmed locally and the entry is
	// hidden pending the next authoritative refresh.
	OptimisticallyRemoved
	// Refreshing means a refresh covering this entry is in flight.
	Refreshing
)

func (s ViewState) String() string {
	switch s {
	case Authoritative:
		return "authoritative"
	case OptimisticallyRemoved:
		return "optimistically-removed"
	case Refreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// SubscriptionView is a subscription snapshot plus its reconciliation state.
type SubscriptionView struct {
	ActiveSubscription
	State ViewState
}

// NetworkRequirement is the single network this client operates against,
// immutable for the process lifetime.
type NetworkRequirement struct {
	ChainID          *big.Int
	Name             string
	RPCURL           string
	CurrencyName     string
	CurrencySymbol   string
	CurrencyDecimals uint8
	ExplorerURL      string
}

// Sepolia is the network the deployed EtherSub contract lives on.
var Sepolia = NetworkRequirement{
	ChainID:          big.NewInt(11155111),
	Name:             "Sepolia Test Network",
	RPCURL:           "https://sepolia.infura.io/v3/",
	CurrencyName:     "SepoliaETH",
	CurrencySymbol:   "ETH",
	CurrencyDecimals: 18,
	ExplorerURL:      "https://sepolia.etherscan.io/",
}

// DefaultContractAddress is the deployed EtherSub contract address.
var DefaultContractAddress = ledger.DefaultContractAddress

func featureFromLedger(f ledger.Feature) Feature {
	return Feature{ID: f.FeatureId, Name: f.Name, Description: f.Description}
}
