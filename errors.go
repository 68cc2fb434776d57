package ethersub

import (
	"errors"
	"fmt"
)

// Code identifies a classified failure surfaced to callers. The UI layer
// keys its messaging off these codes rather than raw wallet or node errors.
type Code string

// Failure taxonomy.
const (
	// CodeInvalidInput means a local precondition was violated; no remote
	// call was made.
	CodeInvalidInput Code = "invalid_input"
	// CodeWalletUnavailable means no wallet capability is installed or it
	// reported no usable accounts.
	CodeWalletUnavailable Code = "wallet_unavailable"
	// CodeUserRejected means the user declined a wallet prompt.
	CodeUserRejected Code = "user_rejected"
	// CodeRequestAlreadyPending means a prior wallet request has not resolved.
	CodeRequestAlreadyPending Code = "request_already_pending"
	// CodeNetworkSwitchRejected means the user declined the network switch.
	CodeNetworkSwitchRejected Code = "network_switch_rejected"
	// CodeNetworkUnavailable means the node or network could not be reached
	// or the required network could not be added.
	CodeNetworkUnavailable Code = "network_unavailable"
	// CodeDuplicateOperation means an operation with the same kind and key is
	// already in flight.
	CodeDuplicateOperation Code = "duplicate_operation"
	// CodeInsufficientFunds means the account cannot cover value plus gas.
	CodeInsufficientFunds Code = "insufficient_funds"
	// CodeUnauthorized means the contract rejected an operator-only call.
	CodeUnauthorized Code = "unauthorized"
	// CodeContractUnavailable means the contract call reverted or the
	// contract is not deployed as expected.
	CodeContractUnavailable Code = "contract_unavailable"
	// CodeCatalogUnavailable means a catalog load failed as a whole.
	CodeCatalogUnavailable Code = "catalog_unavailable"
	// CodeTimeout means a read operation exceeded its deadline.
	CodeTimeout Code = "timeout"
	// CodeNetworkChanged means the wallet identity or chain changed while an
	// operation was in flight, invalidating it.
	CodeNetworkChanged Code = "network_changed"
	// CodeUnknown is the total fallback for unclassified failures.
	CodeUnknown Code = "unknown"
)

// FlowError is a classified failure carrying the taxonomy code, a
// human-readable message, and the underlying cause when one exists.
type FlowError struct {
	Code    Code
	Message string
	Cause   error
}

func (e *FlowError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewFlowError creates a classified failure.
func NewFlowError(code Code, message string, cause error) *FlowError {
	return &FlowError{Code: code, Message: message, Cause: cause}
}

// CodeOf extracts the taxonomy code from an error. Errors that are not
// FlowErrors are classified on the spot, so the result is always a valid
// taxonomy member for any non-nil error.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return Classify(err)
}
