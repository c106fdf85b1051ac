package ledger

import (
	"github.com/lunar-bby/AgoraAI/internal/types"
)

// transactionRequiredFields are the fields a submitted transaction envelope
// must carry to pass a full audit.
var transactionRequiredFields = []string{"id", "timestamp", "type", "data"}

// paymentRequiredFields are the fields a payment record must carry.
var paymentRequiredFields = []string{"amount", "sender", "recipient", "contract_id"}

// TransactionValidator audits individual transaction records.
type TransactionValidator struct{}

// NewTransactionValidator creates a transaction validator.
func NewTransactionValidator() *TransactionValidator {
	return &TransactionValidator{}
}

// ValidateTransaction checks that the record carries all required fields and
// a numeric timestamp that is not in the future.
func (v *TransactionValidator) ValidateTransaction(tx types.Record) bool {
	if !hasRequiredFields(tx, transactionRequiredFields) {
		return false
	}
	ts, ok := numericValue(tx["timestamp"])
	if !ok {
		return false
	}
	return ts <= types.Now()
}

// ValidatePayment checks a payment record: all required fields, a positive
// amount and distinct sender and recipient.
func (v *TransactionValidator) ValidatePayment(payment types.Record) bool {
	if !hasRequiredFields(payment, paymentRequiredFields) {
		return false
	}
	amount, ok := numericValue(payment["amount"])
	if !ok || amount <= 0 {
		return false
	}
	return payment["sender"] != payment["recipient"]
}

// ChainValidator independently re-verifies a chain's structural and
// cryptographic integrity. It works on plain block values, never on the live
// manager, so an externally received chain can be audited without trusting
// its self-reported fields.
type ChainValidator struct {
	difficulty  int
	txValidator *TransactionValidator
}

// NewChainValidator creates a chain validator for the given proof-of-work
// difficulty.
func NewChainValidator(difficulty int) *ChainValidator {
	return &ChainValidator{
		difficulty:  difficulty,
		txValidator: NewTransactionValidator(),
	}
}

// ValidateBlock checks a single block: link to the expected previous hash,
// independent hash recomputation, the proof-of-work target, and every
// contained transaction.
func (v *ChainValidator) ValidateBlock(block types.Block, previousHash string) bool {
	if block.PreviousHash != previousHash {
		return false
	}
	if block.Hash != block.ComputeHash() {
		return false
	}
	if !block.MeetsDifficulty(v.difficulty) {
		return false
	}
	for _, tx := range block.Transactions {
		if !v.txValidator.ValidateTransaction(tx) {
			return false
		}
	}
	return true
}

// ValidateChain audits every adjacent pair of blocks plus the monotonic
// sequence requirements: indexes increment by one and timestamps strictly
// increase. It is a pure function of the chain value and idempotent.
func (v *ChainValidator) ValidateChain(chain []types.Block) bool {
	for i := 1; i < len(chain); i++ {
		current := chain[i]
		previous := chain[i-1]

		if !v.ValidateBlock(current, previous.Hash) {
			return false
		}
		if current.Index != previous.Index+1 {
			return false
		}
		if current.Timestamp <= previous.Timestamp {
			return false
		}
	}
	return true
}

func hasRequiredFields(record types.Record, required []string) bool {
	for _, field := range required {
		if _, ok := record[field]; !ok {
			return false
		}
	}
	return true
}

// numericValue normalizes the numeric types a record field can hold after a
// decode round-trip.
func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
