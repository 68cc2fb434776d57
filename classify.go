package ethersub

import (
	"context"
	"errors"
	"strings"

	"github.com/ethersub/ethersub-go/wallet"
)

// Classify maps a raw wallet or node failure to a taxonomy code. It is a
// pure, total function: any error it cannot recognize maps to CodeUnknown
// rather than escaping unclassified. Classification looks at wallet RPC
// error codes first, then falls back to substring matching on the message,
// since node errors rarely carry structured codes.
func Classify(err error) Code {
	if err == nil {
		return CodeUnknown
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout
	}

	var rpcErr *wallet.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case wallet.CodeUserRejected:
			return CodeUserRejected
		case wallet.CodeRequestPending:
			return CodeRequestAlreadyPending
		case wallet.CodeUnrecognizedChain:
			return CodeNetworkUnavailable
		}
	}

	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "user rejected"),
		strings.Contains(msg, "user denied"),
		strings.Contains(msg, "rejected by user"):
		return CodeUserRejected

	case strings.Contains(msg, "insufficient funds"),
		strings.Contains(msg, "insufficient balance"):
		return CodeInsufficientFunds

	case strings.Contains(msg, "not the owner"),
		strings.Contains(msg, "caller is not"),
		strings.Contains(msg, "onlyowner"),
		strings.Contains(msg, "unauthorized"):
		return CodeUnauthorized

	case strings.Contains(msg, "revert"),
		strings.Contains(msg, "execution failed"),
		strings.Contains(msg, "transaction reverted"):
		return CodeContractUnavailable

	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "timed out"),
		strings.Contains(msg, "deadline exceeded"):
		return CodeTimeout

	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "eof"):
		return CodeNetworkUnavailable
	}

	return CodeUnknown
}

// classified wraps a raw error into a FlowError with its classified code,
// unless it is already a FlowError.
func classified(err error, message string) *FlowError {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe
	}
	return NewFlowError(Classify(err), message, err)
}
