package ethersub

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// OpKind identifies a mutating action against the contract.
type OpKind string

const (
	OpSubscribe     OpKind = "subscribe"
	OpCancel        OpKind = "cancel"
	OpCreateFeature OpKind = "create-feature"
	OpCreatePlan    OpKind = "create-plan"
	OpWithdraw      OpKind = "withdraw"
	OpCleanup       OpKind = "cleanup"
)

// OpStatus is the lifecycle state of a pending operation.
type OpStatus int

const (
	// StatusSubmitting means the operation passed validation and is being
	// handed to the wallet.
	StatusSubmitting OpStatus = iota
	// StatusAwaitingConfirmation means the transaction was broadcast and the
	// client is waiting for inclusion.
	StatusAwaitingConfirmation
	// StatusConfirmed is terminal success.
	StatusConfirmed
	// StatusFailed is terminal failure; Reason carries the classified code.
	StatusFailed
)

func (s OpStatus) String() string {
	switch s {
	case StatusSubmitting:
		return "submitting"
	case StatusAwaitingConfirmation:
		return "awaiting-confirmation"
	case StatusConfirmed:
		return "confirmed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PendingOperation tracks one logical in-flight mutating action. At most one
// non-terminal operation may exist per (kind, key) pair; the registry rejects
// duplicates before they reach the wallet.
type PendingOperation struct {
	ID          string
	Kind        OpKind
	Key         string
	SubmittedAt time.Time

	mu     sync.Mutex
	status OpStatus
	reason Code
	txHash common.Hash
}

// Status returns the operation's current lifecycle state.
func (op *PendingOperation) Status() OpStatus {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.status
}

// Reason returns the classified failure code for a failed operation.
func (op *PendingOperation) Reason() Code {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.reason
}

// TxHash returns the broadcast transaction hash, zero until submission.
func (op *PendingOperation) TxHash() common.Hash {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.txHash
}

func (op *PendingOperation) terminal() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.status == StatusConfirmed || op.status == StatusFailed
}

// submitted records the broadcast hash and moves the operation to
// AwaitingConfirmation, unless it already reached a terminal state — an
// identity change during the signature phase fails the operation, and the
// transaction signed under the old identity must stay failed. Returns whether
// the transition happened.
func (op *PendingOperation) submitted(txHash common.Hash) bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.status == StatusConfirmed || op.status == StatusFailed {
		return false
	}
	op.txHash = txHash
	op.status = StatusAwaitingConfirmation
	return true
}

// fail marks the operation failed unless it is already terminal. Returns
// whether the transition happened.
func (op *PendingOperation) fail(reason Code) bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.status == StatusConfirmed || op.status == StatusFailed {
		return false
	}
	op.status = StatusFailed
	op.reason = reason
	return true
}

// confirm marks the operation confirmed unless it was already failed (for
// example by an identity change while awaiting confirmation). Returns whether
// the transition happened.
func (op *PendingOperation) confirm() bool {
	op.mu.Lock()
	defer op.mu.Unlock()
	if op.status == StatusFailed || op.status == StatusConfirmed {
		return false
	}
	op.status = StatusConfirmed
	return true
}

// operationRegistry holds the non-terminal operations keyed by (kind, key).
// A terminal operation releases its slot immediately so a retry under the
// same key is possible.
type operationRegistry struct {
	mu  sync.Mutex
	ops map[string]*PendingOperation
}

func newOperationRegistry() *operationRegistry {
	return &operationRegistry{ops: make(map[string]*PendingOperation)}
}

func slotKey(kind OpKind, key string) string {
	return fmt.Sprintf("%s:%s", kind, key)
}

// begin claims the (kind, key) slot, rejecting the request with
// DuplicateOperation when a non-terminal operation already holds it.
func (r *operationRegistry) begin(kind OpKind, key string) (*PendingOperation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	slot := slotKey(kind, key)
	if existing, ok := r.ops[slot]; ok && !existing.terminal() {
		return nil, NewFlowError(CodeDuplicateOperation,
			fmt.Sprintf("a %s operation for %q is already in flight", kind, key), nil)
	}

	op := &PendingOperation{
		ID:          uuid.NewString(),
		Kind:        kind,
		Key:         key,
		SubmittedAt: time.Now(),
		status:      StatusSubmitting,
	}
	r.ops[slot] = op
	return op, nil
}

// release frees the slot after the operation reached a terminal state.
func (r *operationRegistry) release(op *PendingOperation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot := slotKey(op.Kind, op.Key)
	if r.ops[slot] == op {
		delete(r.ops, slot)
	}
}

// failInFlight marks every non-terminal operation failed with the given
// reason and frees its slot. Used when the wallet identity or chain changes
// under in-flight operations.
func (r *operationRegistry) failInFlight(reason Code) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for slot, op := range r.ops {
		if op.fail(reason) {
			delete(r.ops, slot)
		}
	}
}

// active returns the non-terminal operations, for status display.
func (r *operationRegistry) active() []*PendingOperation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*PendingOperation, 0, len(r.ops))
	for _, op := range r.ops {
		if !op.terminal() {
			out = append(out, op)
		}
	}
	return out
}
