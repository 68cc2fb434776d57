// Package ledger wraps the on-chain EtherSub subscription contract behind
// typed read and write calls. It owns the ABI, calldata packing, result
// decoding, and receipt waiting; all pricing, proration, and refund math
// lives in the contract itself.
package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DefaultContractAddress is the deployed EtherSub contract on Sepolia.
var DefaultContractAddress = common.HexToAddress("0x78d75aB348c07E7095c83F104e91Ee98F406E723")

// Contract method names.
const (
	methodOwner               = "owner"
	methodViewFeatures        = "viewFeatures"
	methodViewPlans           = "viewPlans"
	methodSubscriptionCost    = "getSubscriptionCost"
	methodActiveSubscriptions = "getUserActiveSubscriptions"
	methodSubscriptionStatus  = "getSubscriptionStatus"
	methodPlanDetails         = "getPlanDetails"
	methodCreateFeature       = "createFeature"
	methodCreatePlan          = "createPlan"
	methodSubscribe           = "subscribe"
	methodCancelSubscription  = "cancelSubscription"
	methodWithdraw            = "withdraw"
	methodAutoCleanup         = "autoCleanup"
)

const etherSubABI = `[
	{"inputs":[],"name":"owner","outputs":[{"internalType":"address","name":"","type":"address"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"viewFeatures","outputs":[{"components":[{"internalType":"string","name":"featureId","type":"string"},{"internalType":"string","name":"name","type":"string"},{"internalType":"string","name":"description","type":"string"}],"internalType":"struct EtherSub.Feature[]","name":"","type":"tuple[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"viewPlans","outputs":[{"components":[{"internalType":"string","name":"name","type":"string"},{"internalType":"uint256","name":"amountPerMonth","type":"uint256"},{"internalType":"string[]","name":"allowedFeatures","type":"string[]"}],"internalType":"struct EtherSub.Plan[]","name":"","type":"tuple[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"string","name":"planName","type":"string"},{"internalType":"uint256","name":"durationMonths","type":"uint256"}],"name":"getSubscriptionCost","outputs":[{"internalType":"uint256","name":"ethCost","type":"uint256"},{"internalType":"uint256","name":"usdCost","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"getUserActiveSubscriptions","outputs":[{"internalType":"string[]","name":"planNames","type":"string[]"},{"internalType":"uint256[]","name":"timeLeft","type":"uint256[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"address","name":"user","type":"address"},{"internalType":"string","name":"planName","type":"string"}],"name":"getSubscriptionStatus","outputs":[{"internalType":"bool","name":"active","type":"bool"},{"internalType":"uint256","name":"startTime","type":"uint256"},{"internalType":"uint256","name":"amountPaid","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"string","name":"planName","type":"string"}],"name":"getPlanDetails","outputs":[{"internalType":"string","name":"name","type":"string"},{"internalType":"uint256","name":"amountPerMonth","type":"uint256"},{"internalType":"bool","name":"active","type":"bool"},{"components":[{"internalType":"string","name":"featureId","type":"string"},{"internalType":"string","name":"name","type":"string"},{"internalType":"string","name":"description","type":"string"}],"internalType":"struct EtherSub.Feature[]","name":"features","type":"tuple[]"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"internalType":"string","name":"featureId","type":"string"},{"internalType":"string","name":"name","type":"string"},{"internalType":"string","name":"description","type":"string"}],"name":"createFeature","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"string","name":"name","type":"string"},{"internalType":"uint256","name":"amountInUsd","type":"uint256"},{"internalType":"string[]","name":"allowedFeatures","type":"string[]"}],"name":"createPlan","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[{"internalType":"string","name":"planName","type":"string"},{"internalType":"uint256","name":"durationMonths","type":"uint256"},{"internalType":"uint256","name":"maxSlippagePercent","type":"uint256"}],"name":"subscribe","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[{"internalType":"string","name":"planName","type":"string"}],"name":"cancelSubscription","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"withdraw","outputs":[],"stateMutability":"nonpayable","type":"function"},
	{"inputs":[],"name":"autoCleanup","outputs":[],"stateMutability":"nonpayable","type":"function"}
]`

var contractABI = mustParseABI(etherSubABI)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("ledger: invalid embedded ABI: " + err.Error())
	}
	return parsed
}

// ABI returns the parsed EtherSub contract ABI.
func ABI() abi.ABI {
	return contractABI
}
