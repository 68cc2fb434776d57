package ethersub

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/params"
)

// FormatAddress shortens an address for display: 0x1234…abcd.
func FormatAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "…" + hex[len(hex)-4:]
}

// FormatRemaining renders a seconds-remaining figure the way the
// subscription UI shows it: largest two units, "Expired" at or below zero.
func FormatRemaining(seconds int64) string {
	if seconds <= 0 {
		return "Expired"
	}

	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60

	switch {
	case days > 0:
		return fmt.Sprintf("%d days, %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh, %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

// FormatEther renders a wei amount as a decimal ether string with four
// fractional digits, for display only.
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "-"
	}
	f := new(big.Float).Quo(new(big.Float).SetInt(wei), big.NewFloat(params.Ether))
	return f.Text('f', 4)
}
